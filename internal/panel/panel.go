package panel

import (
	"fmt"
	"sort"
	"time"
)

// Row is one daily observation for one ticker in the long-format price panel.
type Row struct {
	Date     time.Time `json:"date"`
	Ticker   string    `json:"ticker"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close"`
	Volume   float64   `json:"volume"`
}

// Table is a price panel, one Row per (date, ticker). It is produced once by
// the data boundary and treated as immutable by every downstream stage.
type Table []Row

// SortByTickerDate orders the table for per-ticker time-series computation.
func (t Table) SortByTickerDate() {
	sort.SliceStable(t, func(i, j int) bool {
		if t[i].Ticker != t[j].Ticker {
			return t[i].Ticker < t[j].Ticker
		}
		return t[i].Date.Before(t[j].Date)
	})
}

// Tickers returns the distinct tickers present, sorted.
func (t Table) Tickers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range t {
		if !seen[r.Ticker] {
			seen[r.Ticker] = true
			out = append(out, r.Ticker)
		}
	}
	sort.Strings(out)
	return out
}

// Validate checks the panel shape contract: non-empty, named tickers,
// positive prices, and strictly increasing duplicate-free dates per ticker.
// Shape violations fail the whole run.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("price panel is empty")
	}

	byTicker := make(map[string][]time.Time)
	for i, r := range t {
		if r.Ticker == "" {
			return fmt.Errorf("row %d: empty ticker", i)
		}
		if r.Date.IsZero() {
			return fmt.Errorf("row %d (%s): zero date", i, r.Ticker)
		}
		if r.Close <= 0 || r.AdjClose <= 0 {
			return fmt.Errorf("row %d (%s %s): non-positive price", i, r.Ticker, r.Date.Format("2006-01-02"))
		}
		byTicker[r.Ticker] = append(byTicker[r.Ticker], r.Date)
	}

	for ticker, dates := range byTicker {
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
		for i := 1; i < len(dates); i++ {
			if !dates[i].After(dates[i-1]) {
				return fmt.Errorf("ticker %s: duplicate date %s", ticker, dates[i].Format("2006-01-02"))
			}
		}
	}

	return nil
}

// CheckUniverse verifies every configured ticker appears in the panel.
// An unknown ticker in config is a fail-fast condition, not a missing value.
func (t Table) CheckUniverse(universe []string) error {
	present := make(map[string]bool)
	for _, r := range t {
		present[r.Ticker] = true
	}
	for _, ticker := range universe {
		if !present[ticker] {
			return fmt.Errorf("configured ticker %s not present in price panel", ticker)
		}
	}
	return nil
}
