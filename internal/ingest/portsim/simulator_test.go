package portsim

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/pwstlabs/linkedfate/internal/catalog"
)

type recordedObs struct {
	indicator string
	station   string
	value     float64
}

type fakeWriter struct {
	obs []recordedObs
}

func (f *fakeWriter) PutObservation(_ context.Context, indicatorCode, stationExternalID, _ string, _ time.Time, value float64, _ string) error {
	f.obs = append(f.obs, recordedObs{indicator: indicatorCode, station: stationExternalID, value: value})
	return nil
}

func TestTickWritesAllSeries(t *testing.T) {
	sim := NewSimulator(DefaultPorts(), "US-TX", rand.New(rand.NewSource(1)), nil)
	w := &fakeWriter{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if err := sim.Tick(context.Background(), w, now); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	// 3 ports x 4 indicators
	if len(w.obs) != 12 {
		t.Fatalf("expected 12 observations, got %d", len(w.obs))
	}

	seen := make(map[string]int)
	for _, o := range w.obs {
		seen[o.indicator]++
		if o.value < 0 {
			t.Errorf("negative reading for %s at %s: %v", o.indicator, o.station, o.value)
		}
	}
	for _, ind := range []string{catalog.IndPortVessels, catalog.IndPortWaiting, catalog.IndPortDwell, catalog.IndPortThroughput} {
		if seen[ind] != 3 {
			t.Errorf("indicator %s written %d times, want 3", ind, seen[ind])
		}
	}
}

func TestSimulationIsDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	run := func() []recordedObs {
		sim := NewSimulator(DefaultPorts(), "US-TX", rand.New(rand.NewSource(42)), nil)
		w := &fakeWriter{}
		for i := 0; i < 5; i++ {
			if err := sim.Tick(context.Background(), w, now.Add(time.Duration(i)*time.Hour)); err != nil {
				t.Fatalf("Tick failed: %v", err)
			}
		}
		return w.obs
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("runs diverge in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("runs diverge at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestCongestionEventuallyTriggersAndResolves(t *testing.T) {
	sim := NewSimulator(DefaultPorts(), "US-TX", rand.New(rand.NewSource(7)), nil)
	w := &fakeWriter{}
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	sawCongestion, sawResolution := false, false
	for i := 0; i < 200; i++ {
		if err := sim.Tick(context.Background(), w, now.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("Tick failed: %v", err)
		}
		if sim.Congested() {
			sawCongestion = true
		} else if sawCongestion {
			sawResolution = true
		}
	}

	if !sawCongestion {
		t.Error("expected at least one congestion event over 200 ticks")
	}
	if !sawResolution {
		t.Error("expected congestion to resolve over 200 ticks")
	}
}
