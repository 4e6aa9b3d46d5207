package engine

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/pwstlabs/linkedfate/internal/alert"
	"github.com/pwstlabs/linkedfate/internal/anomaly"
	"github.com/pwstlabs/linkedfate/internal/catalog"
	"github.com/pwstlabs/linkedfate/internal/rules"
	"github.com/pwstlabs/linkedfate/internal/signals"
	"github.com/pwstlabs/linkedfate/internal/signals/synthetic"
	"github.com/pwstlabs/linkedfate/internal/storage"
	"github.com/pwstlabs/linkedfate/internal/storage/sqlite"
)

func setupStore(t *testing.T) (*sqlite.Store, func()) {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "engine-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpfile.Close()

	store, err := sqlite.NewStore(tmpfile.Name())
	if err != nil {
		os.Remove(tmpfile.Name())
		t.Fatalf("failed to create store: %v", err)
	}

	return store, func() {
		store.Close()
		os.Remove(tmpfile.Name())
	}
}

func TestRunAnomalyDetection(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	// Stable baseline well before the lookback window, then a collapse
	// inside it.
	for i := 0; i < 48; i++ {
		at := now.Add(-8*time.Hour - time.Duration(i)*time.Hour)
		value := 100.0
		if i%2 == 0 {
			value = 102.0
		}
		if err := store.PutObservation(ctx, catalog.IndGroundwater, "usgs-0001", "US-TX", at, value, ""); err != nil {
			t.Fatalf("seed observation: %v", err)
		}
	}
	if err := store.PutObservation(ctx, catalog.IndGroundwater, "usgs-0001", "US-TX", now.Add(-time.Hour), 60, ""); err != nil {
		t.Fatalf("seed outlier: %v", err)
	}

	e := New(store, rules.Default(), nil, nil, nil, DefaultConfig(), nil)

	summary, err := e.RunAnomalyDetection(ctx, 0)
	if err != nil {
		t.Fatalf("RunAnomalyDetection failed: %v", err)
	}

	if summary.IndicatorsChecked != 7 {
		t.Errorf("expected 7 indicators checked, got %d", summary.IndicatorsChecked)
	}
	if summary.AnomaliesInserted != 1 {
		t.Fatalf("expected 1 anomaly inserted, got %d", summary.AnomaliesInserted)
	}
	if summary.Failures != 0 {
		t.Errorf("expected no failures, got %d", summary.Failures)
	}
	if summary.ByIndicator[catalog.IndGroundwater] != 1 {
		t.Errorf("expected 1 groundwater anomaly in breakdown, got %v", summary.ByIndicator)
	}
	if summary.ByType[anomaly.TypeCritical] != 1 {
		t.Errorf("expected 1 critical anomaly in breakdown, got %v", summary.ByType)
	}

	records, err := store.RecentAnomalies(ctx, storage.AnomalyFilter{})
	if err != nil {
		t.Fatalf("RecentAnomalies failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 anomaly record, got %d", len(records))
	}
	if records[0].AnomalyType != anomaly.TypeCritical || records[0].Severity != 1.0 {
		t.Errorf("expected a critical severity-1.0 anomaly, got %+v", records[0].Anomaly)
	}

	// Re-running the cycle must not duplicate the anomaly
	summary, err = e.RunAnomalyDetection(ctx, 0)
	if err != nil {
		t.Fatalf("second RunAnomalyDetection failed: %v", err)
	}
	if summary.AnomaliesInserted != 0 {
		t.Errorf("re-detection should insert 0 anomalies, got %d", summary.AnomaliesInserted)
	}

	// A shorter per-run lookback excludes the hour-old outlier entirely.
	summary, err = e.RunAnomalyDetection(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("short-lookback RunAnomalyDetection failed: %v", err)
	}
	if summary.AnomaliesFound != 0 {
		t.Errorf("30m lookback should find 0 anomalies, got %d", summary.AnomaliesFound)
	}
}

func TestRunRiskEvaluation(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	// Grid: 2.5% reserve margin -> CRITICAL
	if err := store.PutObservation(ctx, catalog.IndGridDemand, "", "ERCOT", now.Add(-5*time.Minute), 78000, ""); err != nil {
		t.Fatalf("seed demand: %v", err)
	}
	if err := store.PutObservation(ctx, catalog.IndGridGeneration, "", "ERCOT", now.Add(-5*time.Minute), 80000, ""); err != nil {
		t.Fatalf("seed generation: %v", err)
	}

	// Port: 20 vessels waiting -> WARNING
	if err := store.PutObservation(ctx, catalog.IndPortWaiting, "port-houston", "US-TX", now.Add(-5*time.Minute), 20, ""); err != nil {
		t.Fatalf("seed port: %v", err)
	}

	// Water: observations plus 4 unacked anomalies -> WARNING
	if err := store.PutObservation(ctx, catalog.IndGroundwater, "usgs-0001", "US-TX", now.Add(-time.Hour), 95, ""); err != nil {
		t.Fatalf("seed water: %v", err)
	}
	gw, err := store.IndicatorByCode(ctx, catalog.IndGroundwater)
	if err != nil {
		t.Fatalf("indicator lookup: %v", err)
	}
	var batch []anomaly.Anomaly
	for i := 0; i < 4; i++ {
		batch = append(batch, anomaly.Anomaly{
			IndicatorID:   gw.ID,
			DetectedAt:    now.Add(-time.Duration(i+1) * time.Hour),
			AnomalyType:   anomaly.TypeSignificant,
			Severity:      0.5,
			BaselineValue: 100,
			ObservedValue: 95,
			ZScore:        -2.0,
		})
	}
	if _, err := store.InsertAnomalies(ctx, batch); err != nil {
		t.Fatalf("seed anomalies: %v", err)
	}

	market := synthetic.NewAdapter()
	market.SetQuote(signals.Quote{Symbol: "VST", ChangePercent: -3.0, AsOf: now})

	e := New(store, rules.Default(), market, nil, nil, DefaultConfig(), nil)

	summary, err := e.RunRiskEvaluation(ctx)
	if err != nil {
		t.Fatalf("RunRiskEvaluation failed: %v", err)
	}

	if summary.Failures != 0 {
		t.Errorf("expected no failures, got %d", summary.Failures)
	}
	if summary.DomainLevels["GRID"] != "CRITICAL" || summary.DomainLevels["WATR"] != "WARNING" || summary.DomainLevels["FLOW"] != "WARNING" {
		t.Errorf("unexpected domain levels: %v", summary.DomainLevels)
	}

	// 3 domain alerts + PERFECT_STORM + one market correlation
	if summary.AlertCount != 5 {
		t.Errorf("expected 5 alerts, got %d", summary.AlertCount)
	}
	if summary.CompositeCount != 2 {
		t.Errorf("expected 2 composite alerts, got %d", summary.CompositeCount)
	}

	active, err := store.Alerts(ctx, storage.AlertFilter{ActiveOnly: true, AlertType: alert.TypeLinked})
	if err != nil {
		t.Fatalf("Alerts failed: %v", err)
	}
	if len(active) != 1 || active[0].Code != "PERFECT_STORM" {
		t.Fatalf("perfect storm must suppress other composites, got %+v", active)
	}
	if active[0].Level != alert.LevelCritical {
		t.Errorf("perfect storm should be CRITICAL, got %s", active[0].Level)
	}

	markets, err := store.Alerts(ctx, storage.AlertFilter{ActiveOnly: true, AlertType: alert.TypeMarket})
	if err != nil {
		t.Fatalf("Alerts failed: %v", err)
	}
	if len(markets) != 1 || markets[0].Code != "ENERGY_STRAIN" {
		t.Errorf("expected one ENERGY_STRAIN correlation, got %+v", markets)
	}
}
