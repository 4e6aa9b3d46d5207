// Package signals defines the non-physical signal sources the correlation
// engine consumes: market quotes, aggregated news sentiment, and weather
// forecasts.
package signals

import (
	"context"
	"time"
)

// Quote is a snapshot of one watched equity
type Quote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name,omitempty"`
	Price         float64   `json:"price"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume,omitempty"`
	AsOf          time.Time `json:"as_of"`
}

// Direction reports which way the quote moved
func (q Quote) Direction() string {
	if q.ChangePercent > 0 {
		return "UP"
	}
	return "DOWN"
}

// SentimentSummary aggregates scored news articles over a window.
// Score runs -1 (uniformly negative) to 1 (uniformly positive).
type SentimentSummary struct {
	Score        float64   `json:"score"`
	ArticleCount int       `json:"article_count"`
	WindowEnd    time.Time `json:"window_end"`
}

// Forecast carries the temperature extremes projected for one location
// over the prediction window
type Forecast struct {
	Location string    `json:"location"`
	MaxTempF float64   `json:"max_temp_f"`
	MinTempF float64   `json:"min_temp_f"`
	IssuedAt time.Time `json:"issued_at"`
}

// MarketSource provides quotes for watchlist symbols
type MarketSource interface {
	Quotes(ctx context.Context, symbols []string) ([]Quote, error)
}

// SentimentSource provides the aggregated sentiment since a cutoff
type SentimentSource interface {
	Sentiment(ctx context.Context, since time.Time) (*SentimentSummary, error)
}

// ForecastSource provides current temperature forecasts
type ForecastSource interface {
	Forecasts(ctx context.Context) ([]Forecast, error)
}
