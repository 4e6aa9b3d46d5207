package rules

// Default returns the built-in ruleset used when no YAML ruleset is supplied.
// The values mirror rules/default.yaml.
func Default() *Ruleset {
	return &Ruleset{
		APIVersion: "linkedfate/v1",
		Kind:       "Ruleset",
		Metadata: Metadata{
			ID:         "texas-default",
			RegionCode: "US-TX",
		},
		Domains: Domains{
			Grid: GridThresholds{
				CriticalMarginPct: 3.0,
				WarningMarginPct:  5.0,
				WatchMarginPct:    10.0,
			},
			Water: WaterThresholds{
				CriticalSeverity: 0.75,
				CriticalWindow:   "24h",
				WarningCount:     3,
				WatchCount:       0,
			},
			Port: PortThresholds{
				CriticalWaiting:    30,
				WarningWaiting:     15,
				WatchWaiting:       5,
				CriticalDwellHours: 96,
				WarningDwellHours:  72,
			},
		},
		Composites: []Composite{
			{
				Code:      "PERFECT_STORM",
				Domains:   []string{"GRID", "WATR", "FLOW"},
				MinLevel:  "WARNING",
				Level:     "CRITICAL",
				Exclusive: true,
				Message:   "PERFECT STORM: Grid strain + Drought + Port congestion",
			},
			{
				Code:     "SUPPLY_CHAIN_CRITICAL",
				Domains:  []string{"GRID", "FLOW"},
				MinLevel: "WARNING",
				Escalate: true,
				Message:  "SUPPLY CHAIN RISK: Grid strain + Port congestion",
			},
			{
				Code:     "INFRASTRUCTURE_STRESS",
				Domains:  []string{"WATR", "GRID"},
				MinLevel: "WARNING",
				Escalate: true,
				Message:  "INFRASTRUCTURE STRESS: Drought conditions + Grid strain",
			},
		},
		Market: Market{
			ModerateMovePct: 2.0,
			StrongMovePct:   5.0,
			Watchlist: []WatchEntry{
				{Symbol: "VST", Name: "Vistra Corp", Domains: []string{"GRID"}, CorrelationType: "ENERGY_STRAIN"},
				{Symbol: "NRG", Name: "NRG Energy", Domains: []string{"GRID"}, CorrelationType: "ENERGY_STRAIN"},
				{Symbol: "TXN", Name: "Texas Instruments", Domains: []string{"WATR", "FLOW"}, CorrelationType: "WATER_STRESS"},
			},
		},
		Sentiment: Sentiment{
			TriggerScore: -0.2,
			StrongScore:  -0.5,
		},
		Predictive: Predictive{
			HeatTempF:        100.0,
			HeatMarginPct:    10.0,
			FreezeTempF:      25.0,
			PredictionWindow: "48h",
		},
	}
}
