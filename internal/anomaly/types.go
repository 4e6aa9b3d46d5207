package anomaly

import "time"

// Anomaly classification types
const (
	TypeSignificant = "significant_deviation"
	TypeCritical    = "critical_deviation"
)

// Anomaly is one flagged deviation. Records are append-only; the only
// permitted mutation is acknowledgment.
type Anomaly struct {
	ID             int64     `json:"id"`
	IndicatorID    int64     `json:"indicator_id"`
	StationID      *int64    `json:"station_id,omitempty"`
	RegionID       *int64    `json:"region_id,omitempty"`
	DetectedAt     time.Time `json:"detected_at"`
	AnomalyType    string    `json:"anomaly_type"`
	Severity       float64   `json:"severity"`
	BaselineValue  float64   `json:"baseline_value"`
	ObservedValue  float64   `json:"observed_value"`
	ZScore         float64   `json:"z_score"`
	IsAcknowledged bool      `json:"is_acknowledged"`
}

// Baseline is the reference statistic for deviation scoring, computed on
// demand over a trailing window and never persisted.
type Baseline struct {
	Mean   float64
	StdDev float64
	Count  int
}

// Insufficient reports whether the baseline has too little data to classify
// against. A zero stddev means either no rows or a constant series; both are
// skipped rather than scored.
func (b Baseline) Insufficient() bool {
	return b.Count == 0 || b.StdDev == 0
}
