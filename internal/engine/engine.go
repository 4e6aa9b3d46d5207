// Package engine orchestrates the two evaluation cycles: statistical anomaly
// detection over the observation history, and risk evaluation with
// multi-signal correlation over current conditions.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/pwstlabs/linkedfate/internal/alert"
	"github.com/pwstlabs/linkedfate/internal/anomaly"
	"github.com/pwstlabs/linkedfate/internal/linked"
	"github.com/pwstlabs/linkedfate/internal/risk"
	"github.com/pwstlabs/linkedfate/internal/rules"
	"github.com/pwstlabs/linkedfate/internal/signals"
	"github.com/pwstlabs/linkedfate/internal/storage"
)

// Config holds engine tuning knobs
type Config struct {
	Detection      anomaly.Config
	AlertTTL       time.Duration
	CycleBudget    time.Duration
	MaxConcurrency int64
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		Detection:      anomaly.DefaultConfig(),
		AlertTTL:       time.Hour,
		CycleBudget:    10 * time.Minute,
		MaxConcurrency: 4,
	}
}

// Engine runs detection and evaluation cycles against the store
type Engine struct {
	store     storage.Store
	detector  *anomaly.Detector
	evaluator *risk.Evaluator
	linked    *linked.Engine
	cfg       Config
	log       *zap.Logger
}

// New wires an engine from its parts. Signal sources may be nil; the
// correlations that need them are skipped.
func New(store storage.Store, rs *rules.Ruleset, market signals.MarketSource, sentiment signals.SentimentSource, forecast signals.ForecastSource, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:     store,
		detector:  anomaly.NewDetector(store, cfg.Detection, log.Named("anomaly")),
		evaluator: risk.NewEvaluator(store, rs, log.Named("risk")),
		linked:    linked.NewEngine(rs, market, sentiment, forecast, log.Named("linked")),
		cfg:       cfg,
		log:       log,
	}
}

// DetectionSummary reports one anomaly detection cycle
type DetectionSummary struct {
	CycleID           string         `json:"cycle_id"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
	IndicatorsChecked int            `json:"indicators_checked"`
	AnomaliesFound    int            `json:"anomalies_found"`
	AnomaliesInserted int            `json:"anomalies_inserted"`
	ByIndicator       map[string]int `json:"by_indicator"`
	ByType            map[string]int `json:"by_type"`
	Failures          int            `json:"failures"`
}

// RunAnomalyDetection evaluates every catalog indicator against its rolling
// baselines. Indicators run concurrently under the configured limit, and a
// failing indicator never blocks the rest. A lookback of zero uses the
// configured default window.
func (e *Engine) RunAnomalyDetection(ctx context.Context, lookback time.Duration) (*DetectionSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CycleBudget)
	defer cancel()

	summary := &DetectionSummary{
		CycleID:     uuid.NewString(),
		StartedAt:   time.Now().UTC(),
		ByIndicator: make(map[string]int),
		ByType:      make(map[string]int),
	}
	log := e.log.With(zap.String("cycle_id", summary.CycleID))
	log.Info("anomaly detection cycle started")

	indicators, err := e.store.Indicators(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indicators: %w", err)
	}
	summary.IndicatorsChecked = len(indicators)

	now := time.Now().UTC()
	sem := semaphore.NewWeighted(e.cfg.MaxConcurrency)

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		found    []anomaly.Anomaly
		failures int
	)

	for _, ind := range indicators {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("cycle budget exhausted: %w", err)
		}

		wg.Add(1)
		go func(id int64, code string) {
			defer wg.Done()
			defer sem.Release(1)

			anomalies, err := e.detector.DetectIndicator(ctx, id, now, lookback)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				log.Error("indicator detection failed", zap.String("indicator", code), zap.Error(err))
				return
			}
			if len(anomalies) > 0 {
				summary.ByIndicator[code] += len(anomalies)
				for _, a := range anomalies {
					summary.ByType[a.AnomalyType]++
				}
			}
			found = append(found, anomalies...)
		}(ind.ID, ind.Code)
	}
	wg.Wait()

	summary.AnomaliesFound = len(found)
	summary.Failures = failures

	inserted, err := e.store.InsertAnomalies(ctx, found)
	if err != nil {
		return nil, fmt.Errorf("failed to persist anomalies: %w", err)
	}
	summary.AnomaliesInserted = inserted
	summary.FinishedAt = time.Now().UTC()

	log.Info("anomaly detection cycle finished",
		zap.Int("indicators", summary.IndicatorsChecked),
		zap.Int("found", summary.AnomaliesFound),
		zap.Int("inserted", summary.AnomaliesInserted),
		zap.Int("failures", summary.Failures),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

// EvaluationSummary reports one risk evaluation cycle
type EvaluationSummary struct {
	CycleID      string            `json:"cycle_id"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	DomainLevels   map[string]string `json:"domain_levels"`
	AlertCount     int               `json:"alert_count"`
	CompositeCount int               `json:"composite_count"`
	ByLevel        map[string]int    `json:"by_level"`
	Failures       int               `json:"failures"`
}

// RunRiskEvaluation evaluates current conditions per domain, applies the
// composite and correlation rules, and persists the full alert batch in one
// transaction.
func (e *Engine) RunRiskEvaluation(ctx context.Context) (*EvaluationSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CycleBudget)
	defer cancel()

	summary := &EvaluationSummary{
		CycleID:      uuid.NewString(),
		StartedAt:    time.Now().UTC(),
		DomainLevels: make(map[string]string),
		ByLevel:      make(map[string]int),
	}
	log := e.log.With(zap.String("cycle_id", summary.CycleID))
	log.Info("risk evaluation cycle started")

	now := time.Now().UTC()
	results := e.evaluator.EvaluateAll(ctx, now)

	domainAlerts := make(map[alert.Domain]*alert.Alert)
	levels := make(map[alert.Domain]alert.Level)
	var batch []alert.Alert

	for _, r := range results {
		if r.Err != nil {
			summary.Failures++
		}
		if r.Alert == nil {
			continue
		}
		domainAlerts[r.Domain] = r.Alert
		levels[r.Domain] = r.Alert.Level
		summary.DomainLevels[string(r.Domain)] = r.Alert.Level.String()
		batch = append(batch, *r.Alert)
	}

	batch = append(batch, e.linked.Composites(levels, now)...)
	batch = append(batch, e.linked.Correlate(ctx, domainAlerts, now)...)

	alert.SortForDisplay(batch)

	if err := e.store.PersistCycle(ctx, e.cfg.AlertTTL, batch); err != nil {
		return nil, fmt.Errorf("failed to persist alert cycle: %w", err)
	}

	summary.AlertCount = len(batch)
	for _, a := range batch {
		summary.ByLevel[a.Level.String()]++
		if alert.IsComposite(a.Type) {
			summary.CompositeCount++
		}
	}
	summary.FinishedAt = time.Now().UTC()

	log.Info("risk evaluation cycle finished",
		zap.Int("alerts", summary.AlertCount),
		zap.Int("failures", summary.Failures),
		zap.Any("domain_levels", summary.DomainLevels),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}
