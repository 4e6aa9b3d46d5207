package risk

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pwstlabs/linkedfate/internal/alert"
	"github.com/pwstlabs/linkedfate/internal/catalog"
	"github.com/pwstlabs/linkedfate/internal/rules"
)

// Evaluator applies ruleset thresholds to the latest feed conditions
type Evaluator struct {
	reader Reader
	rules  *rules.Ruleset
	log    *zap.Logger
}

// NewEvaluator creates an evaluator over the given reader and ruleset
func NewEvaluator(reader Reader, rs *rules.Ruleset, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{reader: reader, rules: rs, log: log}
}

// DomainResult is the outcome of evaluating one domain feed. Alert is
// always set: a failed evaluation still reports a best-effort NORMAL
// status with Err recording the failure.
type DomainResult struct {
	Domain alert.Domain
	Alert  *alert.Alert
	Err    error
}

// EvaluateAll runs every domain evaluator, isolating failures so one broken
// feed never blocks the others. A domain whose feed cannot be read reports
// a NORMAL status alert marked temporarily unavailable.
func (e *Evaluator) EvaluateAll(ctx context.Context, now time.Time) []DomainResult {
	results := make([]DomainResult, 0, 3)

	for _, eval := range []struct {
		domain alert.Domain
		fn     func(context.Context, time.Time) (*alert.Alert, error)
	}{
		{alert.DomainGrid, e.EvaluateGrid},
		{alert.DomainWater, e.EvaluateWater},
		{alert.DomainPort, e.EvaluatePort},
	} {
		a, err := eval.fn(ctx, now)
		if err != nil {
			e.log.Error("domain evaluation failed",
				zap.String("domain", string(eval.domain)),
				zap.Error(err),
			)
			a = e.degraded(eval.domain, now)
		}
		results = append(results, DomainResult{Domain: eval.domain, Alert: a, Err: err})
	}

	return results
}

// degraded builds the NORMAL status alert reported for a domain whose
// feed could not be read this cycle.
func (e *Evaluator) degraded(domain alert.Domain, now time.Time) *alert.Alert {
	var code, message string
	var typ string
	switch domain {
	case alert.DomainGrid:
		typ, code, message = alert.TypeGrid, "GRID_NORMAL", "Grid status temporarily unavailable"
	case alert.DomainWater:
		typ, code, message = alert.TypeWater, "WATR_NORMAL", "Groundwater status temporarily unavailable"
	case alert.DomainPort:
		typ, code, message = alert.TypePort, "PORT_NORMAL", "Port status temporarily unavailable"
	}
	return &alert.Alert{
		Type:        typ,
		Code:        code,
		Level:       alert.LevelNormal,
		RegionCode:  e.rules.Metadata.RegionCode,
		Title:       alert.TitleFromCode(code),
		Message:     message,
		TriggeredAt: now,
		IsActive:    true,
	}
}

// EvaluateGrid tiers the grid by reserve margin: (generation - demand) /
// generation * 100. Without generation data only demand is reported.
func (e *Evaluator) EvaluateGrid(ctx context.Context, now time.Time) (*alert.Alert, error) {
	demand, err := e.reader.LatestValue(ctx, catalog.IndGridDemand)
	if err != nil {
		return nil, fmt.Errorf("failed to read grid demand: %w", err)
	}
	if demand == nil {
		return e.gridAlert("GRID_NORMAL", alert.LevelNormal,
			"No recent grid demand data", 0, nil, nil, now), nil
	}

	generation, err := e.reader.LatestValue(ctx, catalog.IndGridGeneration)
	if err != nil {
		return nil, fmt.Errorf("failed to read grid generation: %w", err)
	}

	if generation == nil || generation.Value <= 0 {
		return e.gridAlert("GRID_NORMAL", alert.LevelNormal,
			fmt.Sprintf("Grid demand: %.0f MW", demand.Value),
			demand.Value, nil, nil, now), nil
	}

	margin := (generation.Value - demand.Value) / generation.Value * 100
	t := e.rules.Domains.Grid

	switch {
	case margin < t.CriticalMarginPct:
		return e.gridAlert("GRID_EMERGENCY", alert.LevelCritical,
			fmt.Sprintf("RESERVE MARGIN CRITICAL: %.1f%%", margin),
			margin, &t.CriticalMarginPct, &margin, now), nil
	case margin < t.WarningMarginPct:
		return e.gridAlert("GRID_STRAIN", alert.LevelWarning,
			fmt.Sprintf("RESERVE MARGIN LOW: %.1f%%", margin),
			margin, &t.WarningMarginPct, &margin, now), nil
	case margin < t.WatchMarginPct:
		return e.gridAlert("GRID_MARGIN_LOW", alert.LevelWatch,
			fmt.Sprintf("Reserve margin: %.1f%%", margin),
			margin, &t.WatchMarginPct, &margin, now), nil
	}

	return e.gridAlert("GRID_NORMAL", alert.LevelNormal,
		fmt.Sprintf("Grid normal: %.0f MW demand", demand.Value),
		margin, nil, &margin, now), nil
}

func (e *Evaluator) gridAlert(code string, level alert.Level, message string, value float64, threshold, margin *float64, now time.Time) *alert.Alert {
	return &alert.Alert{
		Type:        alert.TypeGrid,
		Code:        code,
		Level:       level,
		RegionCode:  e.rules.Metadata.RegionCode,
		Title:       alert.TitleFromCode(code),
		Message:     message,
		TriggeredAt: now,
		IsActive:    true,
		Payload: alert.Payload{
			IndicatorCode:    catalog.IndGridDemand,
			Value:            alert.Float64(value),
			Threshold:        threshold,
			ReserveMarginPct: margin,
		},
	}
}

// EvaluateWater tiers groundwater stress by unacknowledged anomaly pressure
// over the critical window.
func (e *Evaluator) EvaluateWater(ctx context.Context, now time.Time) (*alert.Alert, error) {
	t := e.rules.Domains.Water
	window, err := rules.ParseDuration(t.CriticalWindow)
	if err != nil {
		return nil, fmt.Errorf("invalid water critical window: %w", err)
	}
	cutoff := now.Add(-window)

	avg, n, err := e.reader.RecentAverage(ctx, catalog.IndGroundwater, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to read groundwater levels: %w", err)
	}
	if n == 0 {
		return e.waterAlert("WATR_NORMAL", alert.LevelNormal,
			"Groundwater levels stable", 0, nil, now), nil
	}

	total, err := e.reader.AnomalyCount(ctx, catalog.IndGroundwater, cutoff, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to count groundwater anomalies: %w", err)
	}
	critical, err := e.reader.AnomalyCount(ctx, catalog.IndGroundwater, cutoff, t.CriticalSeverity)
	if err != nil {
		return nil, fmt.Errorf("failed to count critical groundwater anomalies: %w", err)
	}

	switch {
	case critical > 0:
		return e.waterAlert("AQUIFER_CRITICAL", alert.LevelCritical,
			fmt.Sprintf("CRITICAL: %d aquifer anomalies detected", critical),
			float64(critical), alert.Float64(t.CriticalSeverity), now), nil
	case total > t.WarningCount:
		return e.waterAlert("DROUGHT_RISK", alert.LevelWarning,
			fmt.Sprintf("WARNING: %d groundwater anomalies", total),
			float64(total), alert.Float64(float64(t.WarningCount)), now), nil
	case total > t.WatchCount:
		return e.waterAlert("AQUIFER_DECLINING", alert.LevelWatch,
			fmt.Sprintf("WATCH: %d minor groundwater anomalies", total),
			float64(total), alert.Float64(float64(t.WatchCount)), now), nil
	}

	return e.waterAlert("WATR_NORMAL", alert.LevelNormal,
		fmt.Sprintf("Groundwater levels normal (avg %.1f)", avg),
		avg, nil, now), nil
}

func (e *Evaluator) waterAlert(code string, level alert.Level, message string, value float64, threshold *float64, now time.Time) *alert.Alert {
	return &alert.Alert{
		Type:        alert.TypeWater,
		Code:        code,
		Level:       level,
		RegionCode:  e.rules.Metadata.RegionCode,
		Title:       alert.TitleFromCode(code),
		Message:     message,
		TriggeredAt: now,
		IsActive:    true,
		Payload: alert.Payload{
			IndicatorCode: catalog.IndGroundwater,
			Value:         alert.Float64(value),
			Threshold:     threshold,
		},
	}
}

// EvaluatePort tiers congestion by vessels waiting and dwell time; either
// metric crossing a tier escalates the whole feed.
func (e *Evaluator) EvaluatePort(ctx context.Context, now time.Time) (*alert.Alert, error) {
	waiting, err := e.reader.LatestValue(ctx, catalog.IndPortWaiting)
	if err != nil {
		return nil, fmt.Errorf("failed to read vessels waiting: %w", err)
	}
	if waiting == nil {
		return e.portAlert("PORT_NORMAL", alert.LevelNormal,
			"No recent port data", 0, nil, now), nil
	}

	dwellSample, err := e.reader.LatestValue(ctx, catalog.IndPortDwell)
	if err != nil {
		return nil, fmt.Errorf("failed to read dwell time: %w", err)
	}
	var dwell float64
	if dwellSample != nil {
		dwell = dwellSample.Value
	}

	t := e.rules.Domains.Port
	vessels := waiting.Value

	switch {
	case vessels > t.CriticalWaiting || dwell > t.CriticalDwellHours:
		return e.portAlert("PORT_GRIDLOCK", alert.LevelCritical,
			fmt.Sprintf("PORT GRIDLOCK: %.0f vessels waiting", vessels),
			vessels, &t.CriticalWaiting, now), nil
	case vessels > t.WarningWaiting || dwell > t.WarningDwellHours:
		return e.portAlert("PORT_CONGESTION", alert.LevelWarning,
			fmt.Sprintf("PORT CONGESTION: %.0f vessels waiting", vessels),
			vessels, &t.WarningWaiting, now), nil
	case vessels > t.WatchWaiting:
		return e.portAlert("PORT_BUSY", alert.LevelWatch,
			fmt.Sprintf("Port traffic elevated: %.0f vessels waiting", vessels),
			vessels, &t.WatchWaiting, now), nil
	}

	return e.portAlert("PORT_NORMAL", alert.LevelNormal,
		fmt.Sprintf("Port normal: %.0f vessels waiting", vessels),
		vessels, nil, now), nil
}

func (e *Evaluator) portAlert(code string, level alert.Level, message string, value float64, threshold *float64, now time.Time) *alert.Alert {
	return &alert.Alert{
		Type:        alert.TypePort,
		Code:        code,
		Level:       level,
		RegionCode:  e.rules.Metadata.RegionCode,
		Title:       alert.TitleFromCode(code),
		Message:     message,
		TriggeredAt: now,
		IsActive:    true,
		Payload: alert.Payload{
			IndicatorCode: catalog.IndPortWaiting,
			Value:         alert.Float64(value),
			Threshold:     threshold,
		},
	}
}
