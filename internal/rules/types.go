// Package rules defines the declarative ruleset driving domain threshold
// evaluation and multi-signal correlation, loaded from YAML and validated
// against a JSON schema.
package rules

// Ruleset is the parsed rule table
type Ruleset struct {
	APIVersion string      `yaml:"apiVersion"`
	Kind       string      `yaml:"kind"`
	Metadata   Metadata    `yaml:"metadata"`
	Domains    Domains     `yaml:"domains"`
	Composites []Composite `yaml:"composites"`
	Market     Market      `yaml:"market"`
	Sentiment  Sentiment   `yaml:"sentiment"`
	Predictive Predictive  `yaml:"predictive"`
}

// Metadata identifies a ruleset
type Metadata struct {
	ID          string `yaml:"id"`
	RegionCode  string `yaml:"regionCode"`
	Description string `yaml:"description,omitempty"`
}

// Domains groups the per-domain threshold tiers
type Domains struct {
	Grid  GridThresholds  `yaml:"grid"`
	Water WaterThresholds `yaml:"water"`
	Port  PortThresholds  `yaml:"port"`
}

// GridThresholds are reserve margin percentage cutoffs, evaluated in order
type GridThresholds struct {
	CriticalMarginPct float64 `yaml:"criticalMarginPct"`
	WarningMarginPct  float64 `yaml:"warningMarginPct"`
	WatchMarginPct    float64 `yaml:"watchMarginPct"`
}

// WaterThresholds tier groundwater anomaly pressure
type WaterThresholds struct {
	CriticalSeverity float64 `yaml:"criticalSeverity"`
	CriticalWindow   string  `yaml:"criticalWindow"`
	WarningCount     int     `yaml:"warningCount"`
	WatchCount       int     `yaml:"watchCount"`
}

// PortThresholds tier congestion by vessels waiting and dwell time
type PortThresholds struct {
	CriticalWaiting    float64 `yaml:"criticalWaiting"`
	WarningWaiting     float64 `yaml:"warningWaiting"`
	WatchWaiting       float64 `yaml:"watchWaiting"`
	CriticalDwellHours float64 `yaml:"criticalDwellHours"`
	WarningDwellHours  float64 `yaml:"warningDwellHours"`
}

// Composite is one cross-domain conjunction rule. Rules are evaluated in
// declaration order; an exclusive rule that fires suppresses the rest.
type Composite struct {
	Code      string   `yaml:"code"`
	Domains   []string `yaml:"domains"`
	MinLevel  string   `yaml:"minLevel"`
	Level     string   `yaml:"level,omitempty"`
	Escalate  bool     `yaml:"escalate,omitempty"`
	Exclusive bool     `yaml:"exclusive,omitempty"`
	Message   string   `yaml:"message"`
}

// WatchEntry ties a market symbol to the physical domains it reacts to
type WatchEntry struct {
	Symbol          string   `yaml:"symbol"`
	Name            string   `yaml:"name"`
	Domains         []string `yaml:"domains"`
	CorrelationType string   `yaml:"correlationType"`
}

// Market holds move-magnitude correlation thresholds and the watchlist
type Market struct {
	ModerateMovePct float64      `yaml:"moderateMovePct"`
	StrongMovePct   float64      `yaml:"strongMovePct"`
	Watchlist       []WatchEntry `yaml:"watchlist"`
}

// Sentiment holds aggregated news sentiment correlation thresholds.
// Scores run -1 to 1; both thresholds are negative.
type Sentiment struct {
	TriggerScore float64 `yaml:"triggerScore"`
	StrongScore  float64 `yaml:"strongScore"`
}

// Predictive holds forecast danger thresholds for the lookahead rules
type Predictive struct {
	HeatTempF        float64 `yaml:"heatTempF"`
	HeatMarginPct    float64 `yaml:"heatMarginPct"`
	FreezeTempF      float64 `yaml:"freezeTempF"`
	PredictionWindow string  `yaml:"predictionWindow"`
}
