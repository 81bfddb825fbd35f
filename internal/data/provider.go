// Package data is the boundary to the external price-history collaborator.
// It hands the pipeline a validated long-format panel and has no algorithmic
// content of its own.
package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/xsect/alphabench/internal/backtest"
	"github.com/xsect/alphabench/internal/panel"
)

// Provider returns the validated price panel for a universe and date range.
type Provider interface {
	Prices(ctx context.Context, universe []string, start, end time.Time) (panel.Table, error)
}

// CSVProvider reads a long-format panel from a local CSV file with the
// column order date,open,high,low,close,adj_close,volume,ticker.
type CSVProvider struct {
	Path string
}

// Prices loads, filters and validates the panel. A zero end date leaves the
// range open-ended.
func (p *CSVProvider) Prices(ctx context.Context, universe []string, start, end time.Time) (panel.Table, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price csv %s: %w", p.Path, err)
	}
	defer f.Close()

	wanted := make(map[string]bool, len(universe))
	for _, t := range universe {
		wanted[t] = true
	}

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) < 8 {
		return nil, fmt.Errorf("price csv %s: want 8 columns, got %d", p.Path, len(header))
	}

	var table panel.Table
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("price csv line %d: %w", line, err)
		}

		row, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("price csv line %d: %w", line, err)
		}
		if len(wanted) > 0 && !wanted[row.Ticker] {
			continue
		}
		if row.Date.Before(start) {
			continue
		}
		if !end.IsZero() && row.Date.After(end) {
			continue
		}
		table = append(table, row)
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("price csv %s: %w", p.Path, err)
	}
	if err := table.CheckUniverse(universe); err != nil {
		return nil, fmt.Errorf("price csv %s: %w", p.Path, err)
	}
	table.SortByTickerDate()
	return table, nil
}

func parseRow(record []string) (panel.Row, error) {
	if len(record) < 8 {
		return panel.Row{}, fmt.Errorf("want 8 fields, got %d", len(record))
	}

	date, err := time.Parse("2006-01-02", record[0])
	if err != nil {
		return panel.Row{}, fmt.Errorf("bad date %q: %w", record[0], err)
	}

	fields := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(record[i+1], 64)
		if err != nil {
			return panel.Row{}, fmt.Errorf("bad numeric field %q: %w", record[i+1], err)
		}
		fields[i] = v
	}

	return panel.Row{
		Date:     date,
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		AdjClose: fields[4],
		Volume:   fields[5],
		Ticker:   record[7],
	}, nil
}

// LoadReturnSeries reads an externally supplied benchmark return series from
// a two-column CSV (date,return) for direct comparison against the strategy.
func LoadReturnSeries(path string) (backtest.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open return series %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("failed to read return series header: %w", err)
	}

	var series backtest.Series
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("return series %s: %w", path, err)
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("return series %s: want 2 fields, got %d", path, len(record))
		}
		date, err := time.Parse("2006-01-02", record[0])
		if err != nil {
			return nil, fmt.Errorf("return series %s: bad date %q: %w", path, record[0], err)
		}
		ret, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("return series %s: bad return %q: %w", path, record[1], err)
		}
		series = append(series, backtest.Point{Date: date, Return: ret})
	}
	return series, nil
}
