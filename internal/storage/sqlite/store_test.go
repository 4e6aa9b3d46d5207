package sqlite

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/pwstlabs/linkedfate/internal/alert"
	"github.com/pwstlabs/linkedfate/internal/anomaly"
	"github.com/pwstlabs/linkedfate/internal/catalog"
	"github.com/pwstlabs/linkedfate/internal/storage"
)

func setupTestDB(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpfile.Close()

	store, err := NewStore(tmpfile.Name())
	if err != nil {
		os.Remove(tmpfile.Name())
		t.Fatalf("failed to create store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.Remove(tmpfile.Name())
	}

	return store, cleanup
}

func TestStore_SeedCatalog(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	indicators, err := store.Indicators(ctx)
	if err != nil {
		t.Fatalf("failed to list indicators: %v", err)
	}
	if len(indicators) != 7 {
		t.Errorf("expected 7 seeded indicators, got %d", len(indicators))
	}

	gw, err := store.IndicatorByCode(ctx, catalog.IndGroundwater)
	if err != nil {
		t.Fatalf("failed to look up %s: %v", catalog.IndGroundwater, err)
	}
	if gw.Domain != "WATR" {
		t.Errorf("unexpected domain %s", gw.Domain)
	}

	if _, err := store.IndicatorByCode(ctx, "NOPE"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_PutObservation(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	at := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	if err := store.PutObservation(ctx, catalog.IndGroundwater, "usgs-0001", "US-TX", at, 101.5, ""); err != nil {
		t.Fatalf("PutObservation failed: %v", err)
	}

	// Same series key again is a silent no-op
	if err := store.PutObservation(ctx, catalog.IndGroundwater, "usgs-0001", "US-TX", at, 999, ""); err != nil {
		t.Fatalf("duplicate PutObservation should not error: %v", err)
	}

	ind, err := store.IndicatorByCode(ctx, catalog.IndGroundwater)
	if err != nil {
		t.Fatalf("indicator lookup failed: %v", err)
	}

	obs, err := store.ObservationsSince(ctx, ind.ID, at.Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("ObservationsSince failed: %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation after dedup, got %d", len(obs))
	}
	if obs[0].Value != 101.5 {
		t.Errorf("dedup should keep the first value, got %v", obs[0].Value)
	}
	if obs[0].QualityFlag != "valid" {
		t.Errorf("empty quality flag should default to valid, got %q", obs[0].QualityFlag)
	}

	if err := store.PutObservation(ctx, "NOPE", "usgs-0001", "US-TX", at, 1, ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown indicator should return ErrNotFound, got %v", err)
	}
}

func TestStore_SeriesBaseline(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	// 100, 102, 98, 104, 96 -> mean 100, sample stddev sqrt(10)
	values := []float64{100, 102, 98, 104, 96}
	for i, v := range values {
		at := base.Add(time.Duration(i) * time.Hour)
		if err := store.PutObservation(ctx, catalog.IndGroundwater, "usgs-0001", "", at, v, ""); err != nil {
			t.Fatalf("PutObservation failed: %v", err)
		}
	}
	// Bad reading inside the window is excluded
	if err := store.PutObservation(ctx, catalog.IndGroundwater, "usgs-0001", "", base.Add(10*time.Hour), 9999, "suspect"); err != nil {
		t.Fatalf("PutObservation failed: %v", err)
	}

	ind, err := store.IndicatorByCode(ctx, catalog.IndGroundwater)
	if err != nil {
		t.Fatalf("indicator lookup failed: %v", err)
	}
	station, err := store.ensureStation(ctx, "usgs-0001", nil)
	if err != nil {
		t.Fatalf("station lookup failed: %v", err)
	}

	baseline, err := store.SeriesBaseline(ctx, ind.ID, &station, nil, base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("SeriesBaseline failed: %v", err)
	}
	if baseline.Count != 5 {
		t.Errorf("expected 5 samples, got %d", baseline.Count)
	}
	if math.Abs(baseline.Mean-100) > 1e-9 {
		t.Errorf("expected mean 100, got %v", baseline.Mean)
	}
	if math.Abs(baseline.StdDev-math.Sqrt(10)) > 1e-6 {
		t.Errorf("expected stddev %.4f, got %v", math.Sqrt(10), baseline.StdDev)
	}

	empty, err := store.SeriesBaseline(ctx, ind.ID, &station, nil, base.AddDate(-1, 0, 0), base)
	if err != nil {
		t.Fatalf("SeriesBaseline failed: %v", err)
	}
	if !empty.Insufficient() {
		t.Errorf("empty window should be insufficient, got %+v", empty)
	}
}

func TestStore_InsertAnomaliesDedup(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ind, err := store.IndicatorByCode(ctx, catalog.IndGroundwater)
	if err != nil {
		t.Fatalf("indicator lookup failed: %v", err)
	}

	at := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	batch := []anomaly.Anomaly{{
		IndicatorID:   ind.ID,
		DetectedAt:    at,
		AnomalyType:   anomaly.TypeCritical,
		Severity:      1.0,
		BaselineValue: 100,
		ObservedValue: 80,
		ZScore:        -4.0,
	}}

	n, err := store.InsertAnomalies(ctx, batch)
	if err != nil {
		t.Fatalf("InsertAnomalies failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 inserted, got %d", n)
	}

	n, err = store.InsertAnomalies(ctx, batch)
	if err != nil {
		t.Fatalf("second InsertAnomalies failed: %v", err)
	}
	if n != 0 {
		t.Errorf("re-detection should insert 0, got %d", n)
	}

	count, err := store.AnomalyCount(ctx, catalog.IndGroundwater, at.Add(-time.Hour), 0.75)
	if err != nil {
		t.Fatalf("AnomalyCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 critical anomaly, got %d", count)
	}

	records, err := store.RecentAnomalies(ctx, storage.AnomalyFilter{UnackedOnly: true})
	if err != nil {
		t.Fatalf("RecentAnomalies failed: %v", err)
	}
	if len(records) != 1 || records[0].IndicatorCode != catalog.IndGroundwater {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestStore_PersistCycleTTL(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ttl := time.Hour

	old := alert.Alert{
		Type: alert.TypeGrid, Code: "GRID_STRAIN", Level: alert.LevelWarning,
		Title: "Grid Strain", Message: "old", TriggeredAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	if err := store.PersistCycle(ctx, ttl, []alert.Alert{old}); err != nil {
		t.Fatalf("PersistCycle failed: %v", err)
	}

	fresh := alert.Alert{
		Type: alert.TypeLinked, Code: "PERFECT_STORM", Level: alert.LevelCritical,
		Title: "Perfect Storm", Message: "new", TriggeredAt: time.Now().UTC(),
	}
	if err := store.PersistCycle(ctx, ttl, []alert.Alert{fresh}); err != nil {
		t.Fatalf("second PersistCycle failed: %v", err)
	}

	active, err := store.Alerts(ctx, storage.AlertFilter{ActiveOnly: true})
	if err != nil {
		t.Fatalf("Alerts failed: %v", err)
	}
	if len(active) != 1 || active[0].Code != "PERFECT_STORM" {
		t.Fatalf("expected only the fresh alert active, got %+v", active)
	}

	all, err := store.Alerts(ctx, storage.AlertFilter{})
	if err != nil {
		t.Fatalf("Alerts failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("history must be append-only, expected 2 rows, got %d", len(all))
	}
}

func TestStore_AlertsOrdering(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	batch := []alert.Alert{
		{Type: alert.TypePort, Code: "PORT_BUSY", Level: alert.LevelWatch, Title: "t", Message: "m", TriggeredAt: now},
		{Type: alert.TypeGrid, Code: "GRID_EMERGENCY", Level: alert.LevelCritical, Title: "t", Message: "m", TriggeredAt: now},
		{Type: alert.TypeWater, Code: "DROUGHT_RISK", Level: alert.LevelWarning, Title: "t", Message: "m", TriggeredAt: now},
	}
	if err := store.PersistCycle(ctx, time.Hour, batch); err != nil {
		t.Fatalf("PersistCycle failed: %v", err)
	}

	alerts, err := store.Alerts(ctx, storage.AlertFilter{ActiveOnly: true})
	if err != nil {
		t.Fatalf("Alerts failed: %v", err)
	}
	want := []string{"GRID_EMERGENCY", "DROUGHT_RISK", "PORT_BUSY"}
	if len(alerts) != len(want) {
		t.Fatalf("expected %d alerts, got %d", len(want), len(alerts))
	}
	for i, code := range want {
		if alerts[i].Code != code {
			t.Errorf("position %d: got %s, want %s", i, alerts[i].Code, code)
		}
	}

	level := alert.LevelCritical
	criticals, err := store.Alerts(ctx, storage.AlertFilter{AlertLevel: &level})
	if err != nil {
		t.Fatalf("Alerts failed: %v", err)
	}
	if len(criticals) != 1 || criticals[0].Code != "GRID_EMERGENCY" {
		t.Errorf("level filter broken: %+v", criticals)
	}
}

func TestStore_AcknowledgeAlert(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	a := alert.Alert{
		Type: alert.TypeGrid, Code: "GRID_STRAIN", Level: alert.LevelWarning,
		Title: "t", Message: "m", TriggeredAt: now,
		Payload: alert.Payload{IndicatorCode: catalog.IndGridDemand, Value: alert.Float64(4.2)},
	}
	if err := store.PersistCycle(ctx, time.Hour, []alert.Alert{a}); err != nil {
		t.Fatalf("PersistCycle failed: %v", err)
	}

	stored, err := store.Alerts(ctx, storage.AlertFilter{})
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected 1 stored alert, got %d (%v)", len(stored), err)
	}
	id := stored[0].ID

	if stored[0].Payload.Value == nil || *stored[0].Payload.Value != 4.2 {
		t.Errorf("payload did not round-trip: %+v", stored[0].Payload)
	}

	if err := store.AcknowledgeAlert(ctx, id, now); err != nil {
		t.Fatalf("AcknowledgeAlert failed: %v", err)
	}
	// Idempotent
	if err := store.AcknowledgeAlert(ctx, id, now.Add(time.Minute)); err != nil {
		t.Fatalf("second acknowledge should be a no-op: %v", err)
	}

	stored, err = store.Alerts(ctx, storage.AlertFilter{})
	if err != nil {
		t.Fatalf("Alerts failed: %v", err)
	}
	if !stored[0].IsAcknowledged || stored[0].AcknowledgedAt == nil {
		t.Errorf("alert not acknowledged: %+v", stored[0])
	}

	if err := store.AcknowledgeAlert(ctx, 99999, now); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown id should return ErrNotFound, got %v", err)
	}
}
