package signal

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/xsect/alphabench/internal/features"
	"github.com/xsect/alphabench/internal/xsection"
)

// sample is one complete-case training observation: every configured z
// column present plus a computable forward return.
type sample struct {
	x []float64
	y float64
}

// model is anything fitted on a feature matrix that predicts one scalar.
type model interface {
	predict(x []float64) float64
}

// fittedScores trains the configured model on historical feature/target
// pairs with a forward-chaining time-ordered split, then scores every row
// whose feature vector is complete. Rows with any missing input keep a
// missing score.
func fittedScores(rows []xsection.Row, src Source) ([]Row, error) {
	horizon := src.ForwardHorizon
	if horizon <= 0 {
		horizon = 5
	}

	targets := forwardReturns(rows, horizon)

	var train []sample
	for i, r := range rows {
		x, complete := featureVector(r, src.Columns)
		if !complete || features.IsMissing(targets[i]) {
			continue
		}
		train = append(train, sample{x: x, y: targets[i]})
	}

	if len(train) < 2*(len(src.Columns)+1) {
		return nil, fmt.Errorf("fitted signal %q: only %d complete observations for %d features", src.Kind, len(train), len(src.Columns))
	}

	// Rows arrive (date, ticker) ordered, so sample order is time order and
	// every fold trains strictly before the slice it validates on.
	validateForwardChaining(train, src)

	fitted, err := fitModel(train, src)
	if err != nil {
		return nil, err
	}

	out := make([]Row, len(rows))
	for i, r := range rows {
		score := features.Missing()
		if x, complete := featureVector(r, src.Columns); complete {
			score = fitted.predict(x)
		}
		out[i] = Row{Date: r.Date, Ticker: r.Ticker, Score: score, Ret1D: r.Ret1D, Vol21: r.Vol21}
	}
	return out, nil
}

// featureVector extracts the configured z columns; complete is false if any
// is missing.
func featureVector(r xsection.Row, columns []features.Ref) ([]float64, bool) {
	x := make([]float64, len(columns))
	for j, col := range columns {
		v, ok := r.Z[col]
		if !ok || features.IsMissing(v) {
			return nil, false
		}
		x[j] = v
	}
	return x, true
}

// forwardReturns compounds the next horizon 1-day returns per ticker into
// the fitted-model target. Missing where the forward window is incomplete.
func forwardReturns(rows []xsection.Row, horizon int) []float64 {
	byTicker := make(map[string][]int)
	for i, r := range rows {
		byTicker[r.Ticker] = append(byTicker[r.Ticker], i)
	}

	out := make([]float64, len(rows))
	for _, idx := range byTicker {
		sort.SliceStable(idx, func(a, b int) bool { return rows[idx[a]].Date.Before(rows[idx[b]].Date) })
		for pos, i := range idx {
			out[i] = features.Missing()
			if pos+horizon >= len(idx) {
				continue
			}
			growth := 1.0
			ok := true
			for k := 1; k <= horizon; k++ {
				ret := rows[idx[pos+k]].Ret1D
				if features.IsMissing(ret) {
					ok = false
					break
				}
				growth *= 1 + ret
			}
			if ok {
				out[i] = growth - 1
			}
		}
	}
	return out
}

// validateForwardChaining reports per-fold validation MSE; each fold trains
// on samples strictly preceding its validation slice.
func validateForwardChaining(train []sample, src Source) {
	folds := src.Folds
	if folds <= 0 {
		folds = 5
	}
	chunk := len(train) / (folds + 1)
	if chunk == 0 {
		return
	}

	for i := 1; i <= folds; i++ {
		trainEnd := i * chunk
		valEnd := trainEnd + chunk
		if i == folds {
			valEnd = len(train)
		}
		fitted, err := fitModel(train[:trainEnd], src)
		if err != nil {
			log.Debug().Err(err).Int("fold", i).Msg("signal fold fit failed")
			continue
		}
		mse := 0.0
		val := train[trainEnd:valEnd]
		for _, s := range val {
			d := fitted.predict(s.x) - s.y
			mse += d * d
		}
		mse /= float64(len(val))
		log.Debug().Int("fold", i).Int("train", trainEnd).Int("validate", len(val)).Float64("mse", mse).Msg("signal fold")
	}
}

// fitModel fits the full training set with the configured learner.
func fitModel(train []sample, src Source) (model, error) {
	switch src.Kind {
	case SourceLinear:
		return fitLinear(train)
	case SourceBoosted:
		return fitBoosted(train, src.Estimators, src.LearningRate), nil
	default:
		return nil, fmt.Errorf("unsupported fitted signal source %q", src.Kind)
	}
}

// linearModel is ordinary least squares with an intercept.
type linearModel struct {
	intercept float64
	coef      []float64
}

func (m *linearModel) predict(x []float64) float64 {
	v := m.intercept
	for j, c := range m.coef {
		v += c * x[j]
	}
	return v
}

// fitLinear solves the least-squares system through a QR factorization.
func fitLinear(train []sample) (*linearModel, error) {
	n := len(train)
	p := len(train[0].x) + 1

	a := mat.NewDense(n, p, nil)
	b := mat.NewVecDense(n, nil)
	for i, s := range train {
		a.Set(i, 0, 1)
		for j, v := range s.x {
			a.Set(i, j+1, v)
		}
		b.SetVec(i, s.y)
	}

	var qr mat.QR
	qr.Factorize(a)

	beta := mat.NewVecDense(p, nil)
	if err := qr.SolveVecTo(beta, false, b); err != nil {
		return nil, fmt.Errorf("linear signal fit: %w", err)
	}

	m := &linearModel{intercept: beta.AtVec(0), coef: make([]float64, p-1)}
	for j := 1; j < p; j++ {
		m.coef[j-1] = beta.AtVec(j)
	}
	return m, nil
}

// stump is a depth-1 regression tree on a single feature column.
type stump struct {
	col       int
	threshold float64
	left      float64
	right     float64
}

// boostedModel is a deterministic gradient-boosted ensemble of stumps fit to
// squared-error residuals. No randomness, so repeated runs are bit-identical.
type boostedModel struct {
	base   float64
	rate   float64
	stumps []stump
}

func (m *boostedModel) predict(x []float64) float64 {
	v := m.base
	for _, s := range m.stumps {
		if x[s.col] <= s.threshold {
			v += m.rate * s.left
		} else {
			v += m.rate * s.right
		}
	}
	return v
}

func fitBoosted(train []sample, estimators int, rate float64) *boostedModel {
	if estimators <= 0 {
		estimators = 200
	}
	if rate <= 0 {
		rate = 0.1
	}

	base := 0.0
	for _, s := range train {
		base += s.y
	}
	base /= float64(len(train))

	m := &boostedModel{base: base, rate: rate}

	resid := make([]float64, len(train))
	for i, s := range train {
		resid[i] = s.y - base
	}

	for e := 0; e < estimators; e++ {
		best, ok := bestStump(train, resid)
		if !ok {
			break
		}
		m.stumps = append(m.stumps, best)
		for i, s := range train {
			if s.x[best.col] <= best.threshold {
				resid[i] -= rate * best.left
			} else {
				resid[i] -= rate * best.right
			}
		}
	}
	return m
}

// bestStump scans every column and every midpoint between consecutive
// distinct values for the split minimizing residual SSE. Columns and
// thresholds are scanned in a fixed order and only strict improvements are
// taken, keeping fits deterministic.
func bestStump(train []sample, resid []float64) (stump, bool) {
	cols := len(train[0].x)
	bestSSE := math.Inf(1)
	var best stump
	found := false

	order := make([]int, len(train))

	for col := 0; col < cols; col++ {
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return train[order[a]].x[col] < train[order[b]].x[col] })

		// Prefix sums over the sorted order for O(1) split evaluation.
		total, totalSq := 0.0, 0.0
		for _, i := range order {
			total += resid[i]
			totalSq += resid[i] * resid[i]
		}

		leftSum := 0.0
		for k := 0; k < len(order)-1; k++ {
			leftSum += resid[order[k]]
			lv := train[order[k]].x[col]
			rv := train[order[k+1]].x[col]
			if lv == rv {
				continue
			}

			nl := float64(k + 1)
			nr := float64(len(order) - k - 1)
			rightSum := total - leftSum
			// SSE after replacing each side with its mean.
			sse := totalSq - leftSum*leftSum/nl - rightSum*rightSum/nr
			if sse < bestSSE {
				bestSSE = sse
				best = stump{
					col:       col,
					threshold: (lv + rv) / 2,
					left:      leftSum / nl,
					right:     rightSum / nr,
				}
				found = true
			}
		}
	}
	return best, found
}
