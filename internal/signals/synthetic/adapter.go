// Package synthetic provides a fixture-backed signal adapter for local runs
// and tests, standing in for live market, news, and weather feeds.
package synthetic

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pwstlabs/linkedfate/internal/signals"
)

// Fixture is the on-disk fixture file format
type Fixture struct {
	Quotes    []signals.Quote           `json:"quotes,omitempty"`
	Sentiment *signals.SentimentSummary `json:"sentiment,omitempty"`
	Forecasts []signals.Forecast        `json:"forecasts,omitempty"`
}

// Adapter serves quotes, sentiment, and forecasts from in-memory fixtures.
// It implements signals.MarketSource, signals.SentimentSource, and
// signals.ForecastSource.
type Adapter struct {
	mu        sync.RWMutex
	quotes    map[string]signals.Quote
	sentiment *signals.SentimentSummary
	forecasts []signals.Forecast
}

// NewAdapter creates an empty adapter
func NewAdapter() *Adapter {
	return &Adapter{quotes: make(map[string]signals.Quote)}
}

// LoadFixture loads fixture data from a JSON file, replacing current state
func (a *Adapter) LoadFixture(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixture: %w", err)
	}

	var fixture Fixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return fmt.Errorf("failed to parse fixture: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.quotes = make(map[string]signals.Quote, len(fixture.Quotes))
	for _, q := range fixture.Quotes {
		a.quotes[q.Symbol] = q
	}
	a.sentiment = fixture.Sentiment
	a.forecasts = fixture.Forecasts
	return nil
}

// SetQuote sets one quote directly (useful for testing)
func (a *Adapter) SetQuote(q signals.Quote) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.quotes[q.Symbol] = q
}

// SetSentiment sets the sentiment summary directly
func (a *Adapter) SetSentiment(s *signals.SentimentSummary) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sentiment = s
}

// SetForecasts replaces the forecast set
func (a *Adapter) SetForecasts(f []signals.Forecast) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.forecasts = f
}

// Quotes implements signals.MarketSource. Symbols without fixture data are
// skipped rather than erroring, matching how a live feed drops unknowns.
func (a *Adapter) Quotes(_ context.Context, symbols []string) ([]signals.Quote, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]signals.Quote, 0, len(symbols))
	for _, sym := range symbols {
		if q, ok := a.quotes[sym]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// Sentiment implements signals.SentimentSource. Returns nil when no
// sentiment fixture is loaded or the summary predates the cutoff.
func (a *Adapter) Sentiment(_ context.Context, since time.Time) (*signals.SentimentSummary, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.sentiment == nil || a.sentiment.WindowEnd.Before(since) {
		return nil, nil
	}
	s := *a.sentiment
	return &s, nil
}

// Forecasts implements signals.ForecastSource
func (a *Adapter) Forecasts(_ context.Context) ([]signals.Forecast, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]signals.Forecast, len(a.forecasts))
	copy(out, a.forecasts)
	return out, nil
}
