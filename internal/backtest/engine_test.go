package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/xsect/alphabench/internal/portfolio"
)

func day(d int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func pos(ticker string, d int, weight, ret float64) portfolio.Position {
	return portfolio.Position{Date: day(d), Ticker: ticker, Weight: weight, Ret1D: ret}
}

func TestRun_WeightedSumMinusCost(t *testing.T) {
	positions := []portfolio.Position{
		pos("AAA", 0, 1.0, 0.01),
		pos("BBB", 0, -1.0, -0.02),
	}

	series := Run(positions, 5) // 5 bps flat
	if len(series) != 1 {
		t.Fatalf("got %d points, want 1", len(series))
	}
	want := 0.01 + 0.02 - 0.0005
	if math.Abs(series[0].Return-want) > 1e-12 {
		t.Errorf("return = %v, want %v", series[0].Return, want)
	}
}

func TestRun_ZeroCost(t *testing.T) {
	positions := []portfolio.Position{pos("AAA", 0, 0.5, 0.02)}

	series := Run(positions, 0)
	if math.Abs(series[0].Return-0.01) > 1e-12 {
		t.Errorf("return = %v, want 0.01", series[0].Return)
	}
}

func TestRun_CostAppliedEveryPeriod(t *testing.T) {
	positions := []portfolio.Position{
		pos("AAA", 0, 1.0, 0),
		pos("AAA", 1, 1.0, 0),
		pos("AAA", 2, 1.0, 0),
	}

	series := Run(positions, 10)
	for _, p := range series {
		if math.Abs(p.Return-(-0.001)) > 1e-12 {
			t.Errorf("return on %s = %v, want -0.001", p.Date.Format("2006-01-02"), p.Return)
		}
	}
}

func TestRun_HigherCostNeverImprovesAnyDay(t *testing.T) {
	positions := []portfolio.Position{
		pos("AAA", 0, 1.0, 0.01), pos("BBB", 0, -1.0, -0.02),
		pos("AAA", 1, 0.5, -0.03), pos("BBB", 1, -0.5, 0.01),
		pos("AAA", 2, 1.0, 0.02), pos("BBB", 2, -1.0, 0.02),
	}

	cheap := Run(positions, 5)
	expensive := Run(positions, 25)
	if len(cheap) != len(expensive) {
		t.Fatalf("series lengths differ: %d vs %d", len(cheap), len(expensive))
	}

	for i := range cheap {
		if expensive[i].Return > cheap[i].Return {
			t.Errorf("day %s: return at 25 bps (%v) exceeds return at 5 bps (%v)",
				cheap[i].Date.Format("2006-01-02"), expensive[i].Return, cheap[i].Return)
		}
		want := cheap[i].Return - 0.0020
		if math.Abs(expensive[i].Return-want) > 1e-12 {
			t.Errorf("day %s: cost gap = %v, want 20 bps", cheap[i].Date.Format("2006-01-02"), expensive[i].Return-cheap[i].Return)
		}
	}
}

func TestRun_DatesAscending(t *testing.T) {
	positions := []portfolio.Position{
		pos("AAA", 2, 1.0, 0.01),
		pos("AAA", 0, 1.0, 0.01),
		pos("AAA", 1, 1.0, 0.01),
	}

	series := Run(positions, 0)
	if len(series) != 3 {
		t.Fatalf("got %d points, want 3", len(series))
	}
	for i := 1; i < len(series); i++ {
		if !series[i-1].Date.Before(series[i].Date) {
			t.Errorf("series not ascending at %d: %v then %v", i, series[i-1].Date, series[i].Date)
		}
	}
}

func TestRun_Empty(t *testing.T) {
	if series := Run(nil, 5); len(series) != 0 {
		t.Errorf("got %d points from no positions, want 0", len(series))
	}
}

func TestReturns(t *testing.T) {
	s := Series{{Date: day(0), Return: 0.01}, {Date: day(1), Return: -0.02}}
	got := s.Returns()
	if len(got) != 2 || got[0] != 0.01 || got[1] != -0.02 {
		t.Errorf("Returns() = %v", got)
	}
}

func TestTurnover_EntryFromFlat(t *testing.T) {
	positions := []portfolio.Position{
		pos("AAA", 0, 1.0, 0),
		pos("BBB", 0, -1.0, 0),
	}

	// One date, entering from flat: |1| + |-1| over 1 day.
	if got := Turnover(positions); math.Abs(got-2.0) > 1e-12 {
		t.Errorf("turnover = %v, want 2.0", got)
	}
}

func TestTurnover_UnchangedBookIsFree(t *testing.T) {
	positions := []portfolio.Position{
		pos("AAA", 0, 1.0, 0), pos("BBB", 0, -1.0, 0),
		pos("AAA", 1, 1.0, 0), pos("BBB", 1, -1.0, 0),
	}

	// Day 0 enters 2.0, day 1 trades nothing: mean is 1.0.
	if got := Turnover(positions); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("turnover = %v, want 1.0", got)
	}
}

func TestTurnover_ExitCounts(t *testing.T) {
	positions := []portfolio.Position{
		pos("AAA", 0, 1.0, 0),
		pos("BBB", 1, 1.0, 0),
	}

	// Day 0: enter AAA (1.0). Day 1: exit AAA, enter BBB (2.0). Mean 1.5.
	if got := Turnover(positions); math.Abs(got-1.5) > 1e-12 {
		t.Errorf("turnover = %v, want 1.5", got)
	}
}

func TestTurnover_Empty(t *testing.T) {
	if got := Turnover(nil); got != 0 {
		t.Errorf("turnover = %v, want 0", got)
	}
}
