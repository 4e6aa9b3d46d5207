// Package risk evaluates current per-domain conditions against ruleset
// thresholds, producing exactly one leveled alert per domain feed.
package risk

import (
	"context"
	"time"
)

// Sample is a single indicator reading
type Sample struct {
	Value      float64
	ObservedAt time.Time
}

// Reader is the store surface the evaluators need. The storage layer
// implements it; tests supply fixtures.
type Reader interface {
	// LatestValue returns the most recent valid reading for an indicator,
	// or nil when the series is empty.
	LatestValue(ctx context.Context, indicatorCode string) (*Sample, error)

	// AnomalyCount counts unacknowledged anomalies for an indicator at or
	// above minSeverity since the cutoff.
	AnomalyCount(ctx context.Context, indicatorCode string, since time.Time, minSeverity float64) (int, error)

	// RecentAverage averages valid readings for an indicator since the
	// cutoff, returning the sample count alongside.
	RecentAverage(ctx context.Context, indicatorCode string, since time.Time) (avg float64, n int, err error)
}
