package api

import (
	"time"

	"github.com/pwstlabs/linkedfate/internal/alert"
	"github.com/pwstlabs/linkedfate/internal/catalog"
	"github.com/pwstlabs/linkedfate/internal/storage"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// JobStatus summarizes one scheduled job for readiness reporting
type JobStatus struct {
	LastRun time.Time `json:"lastRun"`
	Stale   bool      `json:"stale"`
	Error   string    `json:"error,omitempty"`
}

// ReadyResponse represents readiness check response
type ReadyResponse struct {
	Ready   bool                 `json:"ready"`
	Jobs    map[string]JobStatus `json:"jobs,omitempty"`
	Reasons []string             `json:"reasons,omitempty"`
}

// IndicatorsResponse lists the indicator catalog
type IndicatorsResponse struct {
	Indicators []catalog.Indicator `json:"indicators"`
}

// ObservationsResponse lists stored readings for one indicator
type ObservationsResponse struct {
	Indicator    string                `json:"indicator"`
	Observations []storage.Observation `json:"observations"`
	Total        int                   `json:"total"`
}

// AnomaliesResponse lists detected anomalies
type AnomaliesResponse struct {
	Anomalies []storage.AnomalyRecord `json:"anomalies"`
	Total     int                     `json:"total"`
}

// AlertsResponse lists alerts in display order
type AlertsResponse struct {
	Alerts []alert.Alert `json:"alerts"`
	Total  int           `json:"total"`
}

// AcknowledgeResponse confirms an alert acknowledgment
type AcknowledgeResponse struct {
	ID           int64 `json:"id"`
	Acknowledged bool  `json:"acknowledged"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}
