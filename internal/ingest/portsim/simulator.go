// Package portsim generates realistic port traffic observations for the
// FLOW domain: live AIS feeds are commercial, so local runs simulate the
// Houston Ship Channel instead.
package portsim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/pwstlabs/linkedfate/internal/catalog"
)

// PortStats holds the long-run averages a port's simulation centers on
type PortStats struct {
	Code            string
	Name            string
	AvgVesselsIn    float64
	AvgWaiting      float64
	AvgDwellHours   float64
	DailyThroughput float64
}

// DefaultPorts returns the simulated Texas ports
func DefaultPorts() []PortStats {
	return []PortStats{
		{Code: "HOU", Name: "Port of Houston", AvgVesselsIn: 45, AvgWaiting: 8, AvgDwellHours: 48, DailyThroughput: 8500},
		{Code: "GAL", Name: "Port of Galveston", AvgVesselsIn: 12, AvgWaiting: 3, AvgDwellHours: 36, DailyThroughput: 1200},
		{Code: "TXC", Name: "Texas City Terminal", AvgVesselsIn: 8, AvgWaiting: 2, AvgDwellHours: 24, DailyThroughput: 800},
	}
}

// Writer is the sink the simulator feeds
type Writer interface {
	PutObservation(ctx context.Context, indicatorCode, stationExternalID, regionCode string, observedAt time.Time, value float64, qualityFlag string) error
}

// Simulator is a stateful port traffic generator. Congestion is an explicit
// two-state machine: a quiet port has a small chance per tick of entering a
// congestion event, which later resolves with a larger chance per tick.
type Simulator struct {
	ports      []PortStats
	regionCode string
	rng        *rand.Rand
	log        *zap.Logger

	congested bool
	severity  float64
}

const (
	eventStartChance   = 0.05
	eventResolveChance = 0.20
)

// NewSimulator creates a simulator seeded by the given source. Injecting the
// source keeps runs reproducible under test.
func NewSimulator(ports []PortStats, regionCode string, rng *rand.Rand, log *zap.Logger) *Simulator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{ports: ports, regionCode: regionCode, rng: rng, log: log}
}

// Congested reports whether a congestion event is active
func (s *Simulator) Congested() bool {
	return s.congested
}

// Tick advances the congestion state machine and writes one observation per
// port and indicator.
func (s *Simulator) Tick(ctx context.Context, w Writer, now time.Time) error {
	s.step()

	indicators := []string{
		catalog.IndPortVessels,
		catalog.IndPortWaiting,
		catalog.IndPortDwell,
		catalog.IndPortThroughput,
	}

	for _, port := range s.ports {
		for _, ind := range indicators {
			value := s.generate(port, ind, now)
			if err := w.PutObservation(ctx, ind, "port-"+port.Code, s.regionCode, now, value, ""); err != nil {
				return fmt.Errorf("failed to write %s for %s: %w", ind, port.Code, err)
			}
		}
	}

	s.log.Debug("port tick generated",
		zap.Int("ports", len(s.ports)),
		zap.Bool("congested", s.congested),
		zap.Float64("severity", s.severity),
	)
	return nil
}

func (s *Simulator) step() {
	if !s.congested {
		if s.rng.Float64() < eventStartChance {
			s.congested = true
			s.severity = 0.3 + s.rng.Float64()*0.5
			s.log.Info("congestion event started", zap.Float64("severity", s.severity))
		}
		return
	}
	if s.rng.Float64() < eventResolveChance {
		s.congested = false
		s.severity = 0
		s.log.Info("congestion event resolved")
	}
}

// generate produces one reading, combining circadian, weekly, and congestion
// effects around the port's long-run average.
func (s *Simulator) generate(port PortStats, indicatorCode string, now time.Time) float64 {
	mult := s.timeMultiplier(now)

	congestionMult := 1.0
	if s.congested {
		congestionMult = 1.0 + s.severity
	}

	var value float64
	switch indicatorCode {
	case catalog.IndPortVessels:
		value = port.AvgVesselsIn * mult * s.uniform(0.8, 1.2)
	case catalog.IndPortWaiting:
		value = port.AvgWaiting * mult * congestionMult * s.uniform(0.5, 1.5)
		if s.congested {
			value *= 1 + s.severity*2
		}
	case catalog.IndPortDwell:
		value = port.AvgDwellHours * congestionMult * s.uniform(0.9, 1.3)
	case catalog.IndPortThroughput:
		if s.congested {
			value = port.DailyThroughput * mult * (1 - s.severity*0.3)
		} else {
			value = port.DailyThroughput * mult * s.uniform(0.9, 1.1)
		}
	}

	return math.Round(value*10) / 10
}

func (s *Simulator) timeMultiplier(now time.Time) float64 {
	hour := now.UTC().Hour()
	hourMult := 0.7
	if hour >= 8 && hour <= 18 {
		hourMult = 1.0 + 0.3*math.Sin(float64(hour-8)*math.Pi/10)
	}

	weekendMult := 1.0
	if wd := now.UTC().Weekday(); wd == time.Saturday || wd == time.Sunday {
		weekendMult = 0.7
	}

	// Hurricane season adds variance June through November
	seasonalMult := 1.0
	if m := now.UTC().Month(); m >= time.June && m <= time.November {
		seasonalMult = 1.0 + s.uniform(-0.2, 0.3)
	}

	return hourMult * weekendMult * seasonalMult
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}
