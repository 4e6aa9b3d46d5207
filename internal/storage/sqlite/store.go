// Package sqlite implements the storage interfaces over a local SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pwstlabs/linkedfate/internal/alert"
	"github.com/pwstlabs/linkedfate/internal/anomaly"
	"github.com/pwstlabs/linkedfate/internal/catalog"
	"github.com/pwstlabs/linkedfate/internal/risk"
	"github.com/pwstlabs/linkedfate/internal/storage"
)

const (
	defaultObservationLimit = 1000
	defaultAnomalyLimit     = 100
	defaultAlertLimit       = 50
)

// Store is a SQLite-backed implementation of storage.Store
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at path and applies the schema
// and seed catalog.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if _, err := db.Exec(SeedData); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed catalog: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// PutObservation implements storage.ObservationStore. The indicator and
// region must exist in the catalog; the station is created on first sight.
// Duplicate series keys are ignored.
func (s *Store) PutObservation(ctx context.Context, indicatorCode, stationExternalID, regionCode string, observedAt time.Time, value float64, qualityFlag string) error {
	indicator, err := s.IndicatorByCode(ctx, indicatorCode)
	if err != nil {
		return fmt.Errorf("failed to resolve indicator %q: %w", indicatorCode, err)
	}

	var regionID *int64
	if regionCode != "" {
		id, err := s.regionIDByCode(ctx, regionCode)
		if err != nil {
			return fmt.Errorf("failed to resolve region %q: %w", regionCode, err)
		}
		regionID = &id
	}

	var stationID *int64
	if stationExternalID != "" {
		id, err := s.ensureStation(ctx, stationExternalID, regionID)
		if err != nil {
			return fmt.Errorf("failed to resolve station %q: %w", stationExternalID, err)
		}
		stationID = &id
	}

	if qualityFlag == "" {
		qualityFlag = "valid"
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO observations (indicator_id, station_id, region_id, observed_at, value, quality_flag)
		VALUES (?, ?, ?, ?, ?, ?)`,
		indicator.ID, nullInt(stationID), nullInt(regionID), observedAt.UTC(), value, qualityFlag,
	)
	if err != nil {
		return fmt.Errorf("failed to insert observation: %w", err)
	}
	return nil
}

func (s *Store) regionIDByCode(ctx context.Context, code string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT region_id FROM regions WHERE code = ?`, code).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, storage.ErrNotFound
	}
	return id, err
}

func (s *Store) ensureStation(ctx context.Context, externalID string, regionID *int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT station_id FROM stations WHERE external_id = ?`, externalID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO stations (external_id, name, region_id) VALUES (?, ?, ?)`,
		externalID, externalID, nullInt(regionID),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ObservationsSince implements storage.ObservationStore
func (s *Store) ObservationsSince(ctx context.Context, indicatorID int64, since time.Time, limit int) ([]storage.Observation, error) {
	if limit <= 0 {
		limit = defaultObservationLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT observation_id, indicator_id, station_id, region_id, observed_at, value, quality_flag
		FROM observations
		WHERE indicator_id = ? AND observed_at >= ?
		ORDER BY observed_at DESC
		LIMIT ?`,
		indicatorID, since.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var out []storage.Observation
	for rows.Next() {
		var o storage.Observation
		var stationID, regionID sql.NullInt64
		if err := rows.Scan(&o.ID, &o.IndicatorID, &stationID, &regionID, &o.ObservedAt, &o.Value, &o.QualityFlag); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		o.StationID = fromNullInt(stationID)
		o.RegionID = fromNullInt(regionID)
		out = append(out, o)
	}
	return out, rows.Err()
}

// RecentObservations implements anomaly.Reader. Only valid readings reach
// the detector.
func (s *Store) RecentObservations(ctx context.Context, indicatorID int64, since time.Time, limit int) ([]anomaly.Observation, error) {
	if limit <= 0 {
		limit = defaultObservationLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT station_id, region_id, observed_at, value
		FROM observations
		WHERE indicator_id = ? AND observed_at >= ? AND quality_flag = 'valid'
		ORDER BY observed_at DESC
		LIMIT ?`,
		indicatorID, since.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent observations: %w", err)
	}
	defer rows.Close()

	var out []anomaly.Observation
	for rows.Next() {
		var o anomaly.Observation
		var stationID, regionID sql.NullInt64
		if err := rows.Scan(&stationID, &regionID, &o.ObservedAt, &o.Value); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		o.StationID = fromNullInt(stationID)
		o.RegionID = fromNullInt(regionID)
		out = append(out, o)
	}
	return out, rows.Err()
}

// SeriesBaseline implements anomaly.Reader. The mean and second moment come
// back in one aggregate row; the sample standard deviation is derived here
// since SQLite has no stddev builtin.
func (s *Store) SeriesBaseline(ctx context.Context, indicatorID int64, stationID, regionID *int64, start, end time.Time) (anomaly.Baseline, error) {
	var count int
	var mean, meanSq float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), IFNULL(AVG(value), 0), IFNULL(AVG(value * value), 0)
		FROM observations
		WHERE indicator_id = ?
		  AND IFNULL(station_id, 0) = IFNULL(?, 0)
		  AND IFNULL(region_id, 0) = IFNULL(?, 0)
		  AND observed_at >= ? AND observed_at < ?
		  AND quality_flag = 'valid'`,
		indicatorID, nullInt(stationID), nullInt(regionID), start.UTC(), end.UTC(),
	).Scan(&count, &mean, &meanSq)
	if err != nil {
		return anomaly.Baseline{}, fmt.Errorf("failed to aggregate baseline: %w", err)
	}

	baseline := anomaly.Baseline{Mean: mean, Count: count}
	if count >= 2 {
		variance := (meanSq - mean*mean) * float64(count) / float64(count-1)
		if variance > 0 {
			baseline.StdDev = math.Sqrt(variance)
		}
	}
	return baseline, nil
}

// LatestValue implements risk.Reader
func (s *Store) LatestValue(ctx context.Context, indicatorCode string) (*risk.Sample, error) {
	var sample risk.Sample
	err := s.db.QueryRowContext(ctx, `
		SELECT o.value, o.observed_at
		FROM observations o
		JOIN indicators i ON i.indicator_id = o.indicator_id
		WHERE i.code = ? AND o.quality_flag = 'valid'
		ORDER BY o.observed_at DESC
		LIMIT 1`,
		indicatorCode,
	).Scan(&sample.Value, &sample.ObservedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest value: %w", err)
	}
	return &sample, nil
}

// AnomalyCount implements risk.Reader. Only unacknowledged anomalies count
// toward risk tiers.
func (s *Store) AnomalyCount(ctx context.Context, indicatorCode string, since time.Time, minSeverity float64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM anomalies a
		JOIN indicators i ON i.indicator_id = a.indicator_id
		WHERE i.code = ? AND a.detected_at >= ? AND a.severity >= ? AND a.is_acknowledged = 0`,
		indicatorCode, since.UTC(), minSeverity,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count anomalies: %w", err)
	}
	return count, nil
}

// RecentAverage implements risk.Reader
func (s *Store) RecentAverage(ctx context.Context, indicatorCode string, since time.Time) (float64, int, error) {
	var avg float64
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT IFNULL(AVG(o.value), 0), COUNT(*)
		FROM observations o
		JOIN indicators i ON i.indicator_id = o.indicator_id
		WHERE i.code = ? AND o.observed_at >= ? AND o.quality_flag = 'valid'`,
		indicatorCode, since.UTC(),
	).Scan(&avg, &n)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to average observations: %w", err)
	}
	return avg, n, nil
}

// InsertAnomalies implements storage.AnomalyStore. The dedup index makes
// re-detection of the same deviation a no-op.
func (s *Store) InsertAnomalies(ctx context.Context, anomalies []anomaly.Anomaly) (int, error) {
	if len(anomalies) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO anomalies
			(indicator_id, station_id, region_id, detected_at, anomaly_type, severity, baseline_value, observed_value, z_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, a := range anomalies {
		res, err := stmt.ExecContext(ctx,
			a.IndicatorID, nullInt(a.StationID), nullInt(a.RegionID), a.DetectedAt.UTC(),
			a.AnomalyType, a.Severity, a.BaselineValue, a.ObservedValue, a.ZScore,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert anomaly: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit anomalies: %w", err)
	}
	return inserted, nil
}

// RecentAnomalies implements storage.AnomalyStore
func (s *Store) RecentAnomalies(ctx context.Context, filter storage.AnomalyFilter) ([]storage.AnomalyRecord, error) {
	query := `
		SELECT a.anomaly_id, a.indicator_id, a.station_id, a.region_id, a.detected_at,
		       a.anomaly_type, a.severity, a.baseline_value, a.observed_value, a.z_score,
		       a.is_acknowledged, i.code, i.name, IFNULL(st.name, '')
		FROM anomalies a
		JOIN indicators i ON i.indicator_id = a.indicator_id
		LEFT JOIN stations st ON st.station_id = a.station_id
		WHERE 1=1`
	var args []interface{}

	if !filter.Since.IsZero() {
		query += " AND a.detected_at >= ?"
		args = append(args, filter.Since.UTC())
	}
	if filter.MinSeverity > 0 {
		query += " AND a.severity >= ?"
		args = append(args, filter.MinSeverity)
	}
	if filter.IndicatorCode != "" {
		query += " AND i.code = ?"
		args = append(args, filter.IndicatorCode)
	}
	if filter.UnackedOnly {
		query += " AND a.is_acknowledged = 0"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAnomalyLimit
	}
	query += " ORDER BY a.severity DESC, a.detected_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	var out []storage.AnomalyRecord
	for rows.Next() {
		var r storage.AnomalyRecord
		var stationID, regionID sql.NullInt64
		if err := rows.Scan(
			&r.ID, &r.IndicatorID, &stationID, &regionID, &r.DetectedAt,
			&r.AnomalyType, &r.Severity, &r.BaselineValue, &r.ObservedValue, &r.ZScore,
			&r.IsAcknowledged, &r.IndicatorCode, &r.IndicatorName, &r.StationName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		r.StationID = fromNullInt(stationID)
		r.RegionID = fromNullInt(regionID)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PersistCycle implements storage.AlertStore. Deactivation of expired
// alerts and insertion of the new batch happen in one transaction so
// readers never see a half-applied cycle.
func (s *Store) PersistCycle(ctx context.Context, ttl time.Duration, alerts []alert.Alert) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cutoff := time.Now().UTC().Add(-ttl)
	if _, err := tx.ExecContext(ctx, `
		UPDATE alerts SET is_active = 0 WHERE is_active = 1 AND triggered_at < ?`, cutoff,
	); err != nil {
		return fmt.Errorf("failed to expire alerts: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alerts (alert_type, alert_code, alert_level, region_code, title, message, payload_json, triggered_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		payload, err := json.Marshal(a.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal alert payload: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			a.Type, a.Code, a.Level.String(), nullString(a.RegionCode),
			a.Title, a.Message, string(payload), a.TriggeredAt.UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cycle: %w", err)
	}
	return nil
}

// Alerts implements storage.AlertStore. Results order by severity then
// recency; composite-first display ordering is the API layer's concern.
func (s *Store) Alerts(ctx context.Context, filter storage.AlertFilter) ([]alert.Alert, error) {
	query := `
		SELECT alert_id, alert_type, alert_code, alert_level, IFNULL(region_code, ''),
		       title, message, payload_json, triggered_at, is_active, is_acknowledged, acknowledged_at
		FROM alerts
		WHERE 1=1`
	var args []interface{}

	if filter.ActiveOnly {
		query += " AND is_active = 1"
	}
	if filter.AlertType != "" {
		query += " AND alert_type = ?"
		args = append(args, filter.AlertType)
	}
	if filter.AlertLevel != nil {
		query += " AND alert_level = ?"
		args = append(args, filter.AlertLevel.String())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAlertLimit
	}
	query += `
		ORDER BY CASE alert_level
			WHEN 'CRITICAL' THEN 0
			WHEN 'WARNING' THEN 1
			WHEN 'WATCH' THEN 2
			ELSE 3
		END, triggered_at DESC
		LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []alert.Alert
	for rows.Next() {
		var a alert.Alert
		var levelName, payloadJSON string
		var ackedAt sql.NullTime
		if err := rows.Scan(
			&a.ID, &a.Type, &a.Code, &levelName, &a.RegionCode,
			&a.Title, &a.Message, &payloadJSON, &a.TriggeredAt, &a.IsActive, &a.IsAcknowledged, &ackedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if a.Level, err = alert.ParseLevel(levelName); err != nil {
			return nil, fmt.Errorf("stored alert %d has invalid level: %w", a.ID, err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &a.Payload); err != nil {
			return nil, fmt.Errorf("stored alert %d has invalid payload: %w", a.ID, err)
		}
		if ackedAt.Valid {
			t := ackedAt.Time
			a.AcknowledgedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AcknowledgeAlert implements storage.AlertStore. The transition is one-way
// and idempotent; acknowledging a missing alert is the only error case.
func (s *Store) AcknowledgeAlert(ctx context.Context, id int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET is_acknowledged = 1, acknowledged_at = ?
		WHERE alert_id = ? AND is_acknowledged = 0`,
		now.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM alerts WHERE alert_id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	return err
}

// IndicatorByCode implements storage.CatalogStore
func (s *Store) IndicatorByCode(ctx context.Context, code string) (*catalog.Indicator, error) {
	var ind catalog.Indicator
	err := s.db.QueryRowContext(ctx, `
		SELECT indicator_id, code, name, category, unit, domain FROM indicators WHERE code = ?`, code,
	).Scan(&ind.ID, &ind.Code, &ind.Name, &ind.Category, &ind.Unit, &ind.Domain)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query indicator: %w", err)
	}
	return &ind, nil
}

// Indicators implements storage.CatalogStore
func (s *Store) Indicators(ctx context.Context) ([]catalog.Indicator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT indicator_id, code, name, category, unit, domain FROM indicators ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query indicators: %w", err)
	}
	defer rows.Close()

	var out []catalog.Indicator
	for rows.Next() {
		var ind catalog.Indicator
		if err := rows.Scan(&ind.ID, &ind.Code, &ind.Name, &ind.Category, &ind.Unit, &ind.Domain); err != nil {
			return nil, fmt.Errorf("failed to scan indicator: %w", err)
		}
		out = append(out, ind)
	}
	return out, rows.Err()
}

// StationByID implements storage.CatalogStore
func (s *Store) StationByID(ctx context.Context, id int64) (*catalog.Station, error) {
	var st catalog.Station
	var regionID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT station_id, external_id, name, station_type, region_id FROM stations WHERE station_id = ?`, id,
	).Scan(&st.ID, &st.ExternalID, &st.Name, &st.Type, &regionID)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query station: %w", err)
	}
	st.RegionID = fromNullInt(regionID)
	return &st, nil
}

func nullInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func fromNullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
