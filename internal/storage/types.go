// Package storage defines the persistence interfaces and record types shared
// by the detection engine, the risk evaluators, and the HTTP API.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pwstlabs/linkedfate/internal/alert"
	"github.com/pwstlabs/linkedfate/internal/anomaly"
	"github.com/pwstlabs/linkedfate/internal/catalog"
	"github.com/pwstlabs/linkedfate/internal/risk"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// Observation is one stored reading for an indicator series
type Observation struct {
	ID          int64     `json:"id"`
	IndicatorID int64     `json:"indicator_id"`
	StationID   *int64    `json:"station_id,omitempty"`
	RegionID    *int64    `json:"region_id,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
	Value       float64   `json:"value"`
	QualityFlag string    `json:"quality_flag,omitempty"`
}

// AnomalyFilter narrows anomaly queries
type AnomalyFilter struct {
	Since         time.Time
	MinSeverity   float64
	IndicatorCode string
	UnackedOnly   bool
	Limit         int
}

// AnomalyRecord is a stored anomaly joined with display names
type AnomalyRecord struct {
	anomaly.Anomaly
	IndicatorCode string `json:"indicator_code"`
	IndicatorName string `json:"indicator_name"`
	StationName   string `json:"station_name,omitempty"`
}

// AlertFilter narrows alert queries
type AlertFilter struct {
	ActiveOnly bool
	AlertType  string
	AlertLevel *alert.Level
	Limit      int
}

// ObservationStore handles observation ingest and retrieval
type ObservationStore interface {
	// PutObservation records one reading, resolving indicator and region by
	// code and creating the station on first sight. Duplicate
	// (indicator, station, observed_at) rows are ignored.
	PutObservation(ctx context.Context, indicatorCode, stationExternalID, regionCode string, observedAt time.Time, value float64, qualityFlag string) error

	// ObservationsSince returns observations for an indicator newer than
	// since, most recent first, capped at limit rows.
	ObservationsSince(ctx context.Context, indicatorID int64, since time.Time, limit int) ([]Observation, error)
}

// AnomalyStore persists and queries detected anomalies
type AnomalyStore interface {
	// InsertAnomalies writes a batch, silently skipping rows that duplicate
	// an existing (indicator, station, region, detected_at) key. Returns
	// the number actually inserted.
	InsertAnomalies(ctx context.Context, anomalies []anomaly.Anomaly) (int, error)

	RecentAnomalies(ctx context.Context, filter AnomalyFilter) ([]AnomalyRecord, error)
}

// AlertStore persists alerts as an append-only history with an active window
type AlertStore interface {
	// PersistCycle applies one evaluation cycle atomically: alerts older
	// than ttl are deactivated, then the new batch is inserted active.
	PersistCycle(ctx context.Context, ttl time.Duration, alerts []alert.Alert) error

	// Alerts returns alerts ordered by severity then recency.
	Alerts(ctx context.Context, filter AlertFilter) ([]alert.Alert, error)

	// AcknowledgeAlert marks an alert acknowledged. Acknowledging twice is a
	// no-op; unknown ids return ErrNotFound.
	AcknowledgeAlert(ctx context.Context, id int64, now time.Time) error
}

// CatalogStore resolves indicator, station, and region reference data
type CatalogStore interface {
	IndicatorByCode(ctx context.Context, code string) (*catalog.Indicator, error)
	Indicators(ctx context.Context) ([]catalog.Indicator, error)
	StationByID(ctx context.Context, id int64) (*catalog.Station, error)
}

// Store is the full persistence surface. It also serves the detection and
// risk evaluation read paths.
type Store interface {
	ObservationStore
	AnomalyStore
	AlertStore
	CatalogStore
	anomaly.Reader
	risk.Reader
	Close() error
}
