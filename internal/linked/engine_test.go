package linked

import (
	"context"
	"testing"
	"time"

	"github.com/pwstlabs/linkedfate/internal/alert"
	"github.com/pwstlabs/linkedfate/internal/rules"
	"github.com/pwstlabs/linkedfate/internal/signals"
	"github.com/pwstlabs/linkedfate/internal/signals/synthetic"
)

var testNow = time.Date(2026, 7, 1, 15, 0, 0, 0, time.UTC)

func domainAlert(d alert.Domain, code string, level alert.Level) *alert.Alert {
	return &alert.Alert{
		Type:        string(d),
		Code:        code,
		Level:       level,
		TriggeredAt: testNow,
	}
}

func levelsOf(alerts map[alert.Domain]*alert.Alert) map[alert.Domain]alert.Level {
	levels := make(map[alert.Domain]alert.Level)
	for d, a := range alerts {
		if a != nil {
			levels[d] = a.Level
		}
	}
	return levels
}

func TestComposites(t *testing.T) {
	engine := NewEngine(rules.Default(), nil, nil, nil, nil)

	t.Run("perfect storm suppresses the rest", func(t *testing.T) {
		levels := map[alert.Domain]alert.Level{
			alert.DomainGrid:  alert.LevelCritical,
			alert.DomainWater: alert.LevelWarning,
			alert.DomainPort:  alert.LevelWarning,
		}

		out := engine.Composites(levels, testNow)
		if len(out) != 1 {
			t.Fatalf("expected exactly one composite, got %d", len(out))
		}
		if out[0].Code != "PERFECT_STORM" || out[0].Level != alert.LevelCritical {
			t.Errorf("unexpected composite: %s/%s", out[0].Code, out[0].Level)
		}
		if out[0].Payload.DomainLevels["GRID"] != "CRITICAL" {
			t.Errorf("domain levels not recorded: %v", out[0].Payload.DomainLevels)
		}
	})

	t.Run("pairwise escalation follows worst member", func(t *testing.T) {
		levels := map[alert.Domain]alert.Level{
			alert.DomainGrid: alert.LevelCritical,
			alert.DomainPort: alert.LevelWarning,
		}

		out := engine.Composites(levels, testNow)
		if len(out) != 1 {
			t.Fatalf("expected 1 composite, got %d", len(out))
		}
		if out[0].Code != "SUPPLY_CHAIN_CRITICAL" || out[0].Level != alert.LevelCritical {
			t.Errorf("unexpected composite: %s/%s", out[0].Code, out[0].Level)
		}
	})

	t.Run("both warning yields warning", func(t *testing.T) {
		levels := map[alert.Domain]alert.Level{
			alert.DomainWater: alert.LevelWarning,
			alert.DomainGrid:  alert.LevelWarning,
		}

		out := engine.Composites(levels, testNow)
		if len(out) != 1 {
			t.Fatalf("expected 1 composite, got %d", len(out))
		}
		if out[0].Code != "INFRASTRUCTURE_STRESS" || out[0].Level != alert.LevelWarning {
			t.Errorf("unexpected composite: %s/%s", out[0].Code, out[0].Level)
		}
	})

	t.Run("nothing below warning", func(t *testing.T) {
		levels := map[alert.Domain]alert.Level{
			alert.DomainGrid:  alert.LevelWatch,
			alert.DomainWater: alert.LevelWatch,
			alert.DomainPort:  alert.LevelWatch,
		}

		if out := engine.Composites(levels, testNow); len(out) != 0 {
			t.Errorf("expected no composites, got %d", len(out))
		}
	})
}

func TestMarketCorrelations(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name           string
		move           float64
		gridLevel      alert.Level
		wantAlerts     int
		wantConfidence string
	}{
		{"moderate move during warning", -3.2, alert.LevelWarning, 1, "MODERATE"},
		{"strong move during critical", -6.1, alert.LevelCritical, 1, "STRONG"},
		{"small move ignored", -1.5, alert.LevelWarning, 0, ""},
		{"grid calm ignores move", -6.1, alert.LevelWatch, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			market := synthetic.NewAdapter()
			market.SetQuote(signals.Quote{Symbol: "VST", ChangePercent: tt.move, AsOf: testNow})

			engine := NewEngine(rules.Default(), market, nil, nil, nil)
			alerts := map[alert.Domain]*alert.Alert{
				alert.DomainGrid: domainAlert(alert.DomainGrid, "GRID_STRAIN", tt.gridLevel),
			}

			out := engine.Correlate(ctx, alerts, testNow)
			if len(out) != tt.wantAlerts {
				t.Fatalf("expected %d alerts, got %d: %+v", tt.wantAlerts, len(out), out)
			}
			if tt.wantAlerts == 0 {
				return
			}

			a := out[0]
			if a.Type != alert.TypeMarket || a.Code != "ENERGY_STRAIN" {
				t.Errorf("unexpected alert %s/%s", a.Type, a.Code)
			}
			if a.Payload.Confidence != tt.wantConfidence {
				t.Errorf("confidence = %s, want %s", a.Payload.Confidence, tt.wantConfidence)
			}
			if a.Payload.Symbol != "VST" || a.Payload.Direction != "DOWN" {
				t.Errorf("unexpected payload: %+v", a.Payload)
			}
		})
	}
}

func TestSentimentCorrelations(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name           string
		score          float64
		wantAlert      bool
		wantConfidence string
	}{
		{"trigger threshold", -0.35, true, "MODERATE"},
		{"strong threshold", -0.6, true, "STRONG"},
		{"mildly negative ignored", -0.1, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := synthetic.NewAdapter()
			source.SetSentiment(&signals.SentimentSummary{Score: tt.score, ArticleCount: 9, WindowEnd: testNow})

			engine := NewEngine(rules.Default(), nil, source, nil, nil)
			alerts := map[alert.Domain]*alert.Alert{
				alert.DomainWater: domainAlert(alert.DomainWater, "DROUGHT_RISK", alert.LevelWarning),
			}

			out := engine.Correlate(ctx, alerts, testNow)
			if !tt.wantAlert {
				if len(out) != 0 {
					t.Errorf("expected no alerts, got %+v", out)
				}
				return
			}
			if len(out) != 1 {
				t.Fatalf("expected 1 alert, got %d", len(out))
			}
			if out[0].Code != "NEWS_SENTIMENT" || out[0].Payload.Confidence != tt.wantConfidence {
				t.Errorf("unexpected alert: %s confidence %s", out[0].Code, out[0].Payload.Confidence)
			}
		})
	}
}

func TestTripleCorrelation(t *testing.T) {
	ctx := context.Background()

	source := synthetic.NewAdapter()
	source.SetQuote(signals.Quote{Symbol: "VST", ChangePercent: -3.0, AsOf: testNow})
	source.SetSentiment(&signals.SentimentSummary{Score: -0.3, ArticleCount: 15, WindowEnd: testNow})

	engine := NewEngine(rules.Default(), source, source, nil, nil)
	alerts := map[alert.Domain]*alert.Alert{
		alert.DomainGrid: domainAlert(alert.DomainGrid, "GRID_STRAIN", alert.LevelWarning),
	}

	out := engine.Correlate(ctx, alerts, testNow)

	var triple *alert.Alert
	for i := range out {
		if out[i].Code == "TRIPLE_CORRELATION" {
			triple = &out[i]
		}
	}
	if triple == nil {
		t.Fatalf("expected a triple correlation among %+v", out)
	}
	if triple.Payload.Confidence != "STRONG" {
		t.Errorf("triple correlation must always be STRONG, got %s", triple.Payload.Confidence)
	}
	if triple.Level != alert.LevelWarning {
		t.Errorf("unexpected level %s", triple.Level)
	}
}

func TestPredictiveCorrelations(t *testing.T) {
	ctx := context.Background()

	t.Run("heat plus thin margin", func(t *testing.T) {
		source := synthetic.NewAdapter()
		source.SetForecasts([]signals.Forecast{{Location: "Austin", MaxTempF: 104, MinTempF: 78}})

		engine := NewEngine(rules.Default(), nil, nil, source, nil)
		alerts := map[alert.Domain]*alert.Alert{
			alert.DomainGrid: domainAlert(alert.DomainGrid, "GRID_MARGIN_LOW", alert.LevelWatch),
		}

		out := engine.Correlate(ctx, alerts, testNow)
		if len(out) != 1 {
			t.Fatalf("expected 1 predictive alert, got %d", len(out))
		}
		a := out[0]
		if a.Type != alert.TypePredictive || a.Code != "HEAT_GRID_STRAIN" {
			t.Errorf("unexpected alert %s/%s", a.Type, a.Code)
		}
		if a.Payload.PredictionWindow != "48h" {
			t.Errorf("missing prediction window: %+v", a.Payload)
		}
	})

	t.Run("heat alone is not predictive", func(t *testing.T) {
		source := synthetic.NewAdapter()
		source.SetForecasts([]signals.Forecast{{Location: "Austin", MaxTempF: 104, MinTempF: 78}})

		engine := NewEngine(rules.Default(), nil, nil, source, nil)
		alerts := map[alert.Domain]*alert.Alert{
			alert.DomainGrid: domainAlert(alert.DomainGrid, "GRID_NORMAL", alert.LevelNormal),
		}

		if out := engine.Correlate(ctx, alerts, testNow); len(out) != 0 {
			t.Errorf("expected no alerts, got %+v", out)
		}
	})

	t.Run("heat gate follows tuned margin threshold", func(t *testing.T) {
		source := synthetic.NewAdapter()
		source.SetForecasts([]signals.Forecast{{Location: "Austin", MaxTempF: 104, MinTempF: 78}})

		rs := rules.Default()
		rs.Predictive.HeatMarginPct = 15

		engine := NewEngine(rs, nil, nil, source, nil)
		grid := domainAlert(alert.DomainGrid, "GRID_NORMAL", alert.LevelNormal)
		grid.Payload.ReserveMarginPct = alert.Float64(12)
		alerts := map[alert.Domain]*alert.Alert{alert.DomainGrid: grid}

		out := engine.Correlate(ctx, alerts, testNow)
		if len(out) != 1 || out[0].Code != "HEAT_GRID_STRAIN" {
			t.Fatalf("expected heat strain below the tuned margin, got %+v", out)
		}
	})

	t.Run("heat gate clears above tuned margin threshold", func(t *testing.T) {
		source := synthetic.NewAdapter()
		source.SetForecasts([]signals.Forecast{{Location: "Austin", MaxTempF: 104, MinTempF: 78}})

		engine := NewEngine(rules.Default(), nil, nil, source, nil)
		grid := domainAlert(alert.DomainGrid, "GRID_MARGIN_LOW", alert.LevelWatch)
		grid.Payload.ReserveMarginPct = alert.Float64(12)
		alerts := map[alert.Domain]*alert.Alert{alert.DomainGrid: grid}

		if out := engine.Correlate(ctx, alerts, testNow); len(out) != 0 {
			t.Errorf("expected no alerts above the heat margin threshold, got %+v", out)
		}
	})

	t.Run("hard freeze fires unconditionally", func(t *testing.T) {
		source := synthetic.NewAdapter()
		source.SetForecasts([]signals.Forecast{{Location: "Dallas", MaxTempF: 40, MinTempF: 20}})

		engine := NewEngine(rules.Default(), nil, nil, source, nil)

		out := engine.Correlate(ctx, map[alert.Domain]*alert.Alert{}, testNow)
		if len(out) != 1 || out[0].Code != "HARD_FREEZE_RISK" {
			t.Fatalf("expected hard freeze alert, got %+v", out)
		}
		if out[0].Payload.ForecastValue == nil || *out[0].Payload.ForecastValue != 20 {
			t.Errorf("unexpected forecast value: %+v", out[0].Payload)
		}
	})
}
