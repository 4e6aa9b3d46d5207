// Package anomaly implements statistical deviation detection over the
// observation store: rolling baselines, z-score classification, and severity
// scoring.
package anomaly

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Observation is the slice of a stored reading the detector needs
type Observation struct {
	StationID  *int64
	RegionID   *int64
	ObservedAt time.Time
	Value      float64
}

// Reader defines the observation access the detector requires. The storage
// layer implements it; tests supply fixtures.
type Reader interface {
	// RecentObservations returns valid observations for an indicator newer
	// than since, capped at limit rows.
	RecentObservations(ctx context.Context, indicatorID int64, since time.Time, limit int) ([]Observation, error)

	// SeriesBaseline aggregates valid observations for one
	// (indicator, station, region) series over [start, end).
	SeriesBaseline(ctx context.Context, indicatorID int64, stationID, regionID *int64, start, end time.Time) (Baseline, error)
}

// Config holds detection thresholds and windows
type Config struct {
	ThresholdSigma float64
	CriticalSigma  float64
	BaselineWindow time.Duration
	Lookback       time.Duration
	MaxRows        int
}

// DefaultConfig returns the default detection configuration
func DefaultConfig() Config {
	return Config{
		ThresholdSigma: 2.0,
		CriticalSigma:  3.0,
		BaselineWindow: 30 * 24 * time.Hour,
		Lookback:       6 * time.Hour,
		MaxRows:        1000,
	}
}

// ZScore returns the normalized deviation of value from the baseline.
// Returns 0 when stddev is zero or NaN so sparse series never produce
// false positives.
func ZScore(value, mean, stddev float64) float64 {
	if stddev == 0 || math.IsNaN(stddev) {
		return 0
	}
	return (value - mean) / stddev
}

// Classify maps a z-score to an anomaly type. Classification is symmetric:
// only the magnitude matters. Returns "" when the score is within thresholds.
func Classify(zScore, thresholdSigma, criticalSigma float64) string {
	absZ := math.Abs(zScore)
	switch {
	case absZ >= criticalSigma:
		return TypeCritical
	case absZ >= thresholdSigma:
		return TypeSignificant
	}
	return ""
}

// Severity maps a z-score to a 0-1 scale: 0 below the threshold, 0.5 at the
// threshold, saturating at 1.0 for 4 sigma and beyond.
func Severity(zScore, thresholdSigma float64) float64 {
	absZ := math.Abs(zScore)
	if absZ < thresholdSigma {
		return 0
	}
	if absZ >= 4.0 {
		return 1.0
	}
	return math.Min(1.0, (absZ-thresholdSigma)/2.0+0.5)
}

// Detector flags deviations in recent observations against rolling baselines
type Detector struct {
	reader Reader
	cfg    Config
	log    *zap.Logger
}

// NewDetector creates a detector with the given reader and thresholds
func NewDetector(reader Reader, cfg Config, log *zap.Logger) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{reader: reader, cfg: cfg, log: log}
}

type seriesKey struct {
	stationID int64
	regionID  int64
	hasStn    bool
	hasRgn    bool
}

// DetectIndicator evaluates one indicator's recent observations. Observations
// are grouped per (station, region) series; each series gets one baseline
// over the window preceding the lookback so the evaluation window never
// contaminates its own baseline. A lookback of zero uses the configured
// default window.
func (d *Detector) DetectIndicator(ctx context.Context, indicatorID int64, now time.Time, lookback time.Duration) ([]Anomaly, error) {
	if lookback <= 0 {
		lookback = d.cfg.Lookback
	}
	lookbackStart := now.Add(-lookback)

	observations, err := d.reader.RecentObservations(ctx, indicatorID, lookbackStart, d.cfg.MaxRows)
	if err != nil {
		return nil, fmt.Errorf("fetch observations (indicator=%d): %w", indicatorID, err)
	}

	if len(observations) == 0 {
		return nil, nil
	}

	groups := make(map[seriesKey][]Observation)
	for _, obs := range observations {
		key := seriesKey{}
		if obs.StationID != nil {
			key.stationID, key.hasStn = *obs.StationID, true
		}
		if obs.RegionID != nil {
			key.regionID, key.hasRgn = *obs.RegionID, true
		}
		groups[key] = append(groups[key], obs)
	}

	var anomalies []Anomaly
	baselineStart := lookbackStart.Add(-d.cfg.BaselineWindow)

	for key, group := range groups {
		var stationID, regionID *int64
		if key.hasStn {
			v := key.stationID
			stationID = &v
		}
		if key.hasRgn {
			v := key.regionID
			regionID = &v
		}

		baseline, err := d.reader.SeriesBaseline(ctx, indicatorID, stationID, regionID, baselineStart, lookbackStart)
		if err != nil {
			return nil, fmt.Errorf("compute baseline (indicator=%d): %w", indicatorID, err)
		}

		if baseline.Insufficient() {
			d.log.Debug("baseline has insufficient data, skipping series",
				zap.Int64("indicator_id", indicatorID),
				zap.Int("samples", baseline.Count),
			)
			continue
		}

		for _, obs := range group {
			z := ZScore(obs.Value, baseline.Mean, baseline.StdDev)
			anomalyType := Classify(z, d.cfg.ThresholdSigma, d.cfg.CriticalSigma)
			if anomalyType == "" {
				continue
			}

			anomalies = append(anomalies, Anomaly{
				IndicatorID:   indicatorID,
				StationID:     stationID,
				RegionID:      regionID,
				DetectedAt:    obs.ObservedAt,
				AnomalyType:   anomalyType,
				Severity:      Severity(z, d.cfg.ThresholdSigma),
				BaselineValue: baseline.Mean,
				ObservedValue: obs.Value,
				ZScore:        z,
			})
		}
	}

	return anomalies, nil
}
