package alert

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Level is the alert severity. Ordering is NORMAL < WATCH < WARNING < CRITICAL
// and every comparison and sort in the system uses it.
type Level int

const (
	LevelNormal Level = iota
	LevelWatch
	LevelWarning
	LevelCritical
)

var levelNames = map[Level]string{
	LevelNormal:   "NORMAL",
	LevelWatch:    "WATCH",
	LevelWarning:  "WARNING",
	LevelCritical: "CRITICAL",
}

// String returns the canonical level name
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel converts a level name to a Level
func ParseLevel(s string) (Level, error) {
	for l, name := range levelNames {
		if name == strings.ToUpper(s) {
			return l, nil
		}
	}
	return LevelNormal, fmt.Errorf("unknown alert level: %q", s)
}

// MarshalJSON serializes the level by name
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON parses a level name
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Confidence grades market/sentiment correlations by move magnitude
type Confidence int

const (
	ConfidenceWeak Confidence = iota + 1
	ConfidenceModerate
	ConfidenceStrong
)

// String returns the canonical confidence name
func (c Confidence) String() string {
	switch c {
	case ConfidenceWeak:
		return "WEAK"
	case ConfidenceModerate:
		return "MODERATE"
	case ConfidenceStrong:
		return "STRONG"
	}
	return fmt.Sprintf("CONFIDENCE(%d)", int(c))
}

// Domain identifies one physical feed
type Domain string

const (
	DomainGrid  Domain = "GRID"
	DomainWater Domain = "WATR"
	DomainPort  Domain = "FLOW"
)

// Alert types. Domain alerts carry their feed code; composites carry one of
// the three correlation types.
const (
	TypeGrid       = string(DomainGrid)
	TypeWater      = string(DomainWater)
	TypePort       = string(DomainPort)
	TypeLinked     = "LINKED"
	TypeMarket     = "MARKET"
	TypePredictive = "PREDICTIVE"
)

// IsComposite reports whether an alert type belongs to the correlation engine
// rather than a single domain evaluator.
func IsComposite(alertType string) bool {
	switch alertType {
	case TypeLinked, TypeMarket, TypePredictive:
		return true
	}
	return false
}

// Payload is the structured alert context. One struct covers every alert type;
// fields irrelevant to a type stay empty and are omitted from JSON, so the
// serialized shape matches the dashboard contract per type.
type Payload struct {
	IndicatorCode string   `json:"indicator_code,omitempty"`
	Value         *float64 `json:"value,omitempty"`
	Threshold     *float64 `json:"threshold,omitempty"`

	// Grid evaluation fields
	ReserveMarginPct *float64 `json:"reserve_margin_pct,omitempty"`

	// Market correlation fields
	Symbol         string   `json:"symbol,omitempty"`
	ChangePercent  *float64 `json:"change_percent,omitempty"`
	Direction      string   `json:"direction,omitempty"`
	PhysicalAlert  string   `json:"physical_alert,omitempty"`
	Confidence     string   `json:"confidence,omitempty"`
	SentimentScore *float64 `json:"sentiment_score,omitempty"`

	// Predictive correlation fields
	ForecastMetric   string   `json:"forecast_metric,omitempty"`
	ForecastValue    *float64 `json:"forecast_value,omitempty"`
	PredictionWindow string   `json:"prediction_window,omitempty"`

	// Composite fields: contributing domain -> level name
	DomainLevels map[string]string `json:"domain_levels,omitempty"`
}

// Alert is a single leveled alert record
type Alert struct {
	ID             int64      `json:"id"`
	Type           string     `json:"alert_type"`
	Code           string     `json:"code"`
	Level          Level      `json:"level"`
	RegionCode     string     `json:"region_code,omitempty"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	Payload        Payload    `json:"payload"`
	TriggeredAt    time.Time  `json:"triggered_at"`
	IsActive       bool       `json:"is_active"`
	IsAcknowledged bool       `json:"is_acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// Float64 returns a pointer for optional payload fields
func Float64(v float64) *float64 {
	return &v
}

// TitleFromCode renders an alert code as a display title,
// e.g. "GRID_STRAIN" -> "Grid Strain".
func TitleFromCode(code string) string {
	words := strings.Split(strings.ToLower(code), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// MaxLevel returns the highest level among alerts, NORMAL when empty
func MaxLevel(alerts []Alert) Level {
	max := LevelNormal
	for _, a := range alerts {
		if a.Level > max {
			max = a.Level
		}
	}
	return max
}

// SortForDisplay orders the final alert list: composite alerts first, then
// per-domain alerts, each group by descending severity with ties broken by
// most recent TriggeredAt.
func SortForDisplay(alerts []Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		ci, cj := IsComposite(alerts[i].Type), IsComposite(alerts[j].Type)
		if ci != cj {
			return ci
		}
		if alerts[i].Level != alerts[j].Level {
			return alerts[i].Level > alerts[j].Level
		}
		return alerts[i].TriggeredAt.After(alerts[j].TriggeredAt)
	})
}
