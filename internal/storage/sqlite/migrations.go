package sqlite

// Schema defines the SQLite database schema
const Schema = `
-- Reference data: regions, indicators, stations
CREATE TABLE IF NOT EXISTS regions (
	region_id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS indicators (
	indicator_id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	unit TEXT NOT NULL DEFAULT '',
	domain TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stations (
	station_id INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	station_type TEXT NOT NULL DEFAULT '',
	region_id INTEGER REFERENCES regions(region_id)
);

-- Append-only time-series readings
CREATE TABLE IF NOT EXISTS observations (
	observation_id INTEGER PRIMARY KEY AUTOINCREMENT,
	indicator_id INTEGER NOT NULL REFERENCES indicators(indicator_id),
	station_id INTEGER REFERENCES stations(station_id),
	region_id INTEGER REFERENCES regions(region_id),
	observed_at TIMESTAMP NOT NULL,
	value REAL NOT NULL,
	quality_flag TEXT NOT NULL DEFAULT 'valid'
);

CREATE INDEX IF NOT EXISTS idx_obs_indicator_time ON observations(indicator_id, observed_at DESC);
CREATE INDEX IF NOT EXISTS idx_obs_station_time ON observations(station_id, observed_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_obs_unique
	ON observations(indicator_id, IFNULL(station_id, 0), IFNULL(region_id, 0), observed_at);

-- Append-only anomaly audit trail; only is_acknowledged ever changes
CREATE TABLE IF NOT EXISTS anomalies (
	anomaly_id INTEGER PRIMARY KEY AUTOINCREMENT,
	indicator_id INTEGER NOT NULL REFERENCES indicators(indicator_id),
	station_id INTEGER REFERENCES stations(station_id),
	region_id INTEGER REFERENCES regions(region_id),
	detected_at TIMESTAMP NOT NULL,
	anomaly_type TEXT NOT NULL,
	severity REAL NOT NULL,
	baseline_value REAL NOT NULL,
	observed_value REAL NOT NULL,
	z_score REAL NOT NULL,
	is_acknowledged BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_anomalies_time ON anomalies(detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_anomalies_unacked ON anomalies(is_acknowledged) WHERE is_acknowledged = 0;
CREATE UNIQUE INDEX IF NOT EXISTS idx_anomalies_dedup
	ON anomalies(indicator_id, IFNULL(station_id, 0), IFNULL(region_id, 0), detected_at);

-- Alert history; rows are never updated in place except the lifecycle flags
CREATE TABLE IF NOT EXISTS alerts (
	alert_id INTEGER PRIMARY KEY AUTOINCREMENT,
	alert_type TEXT NOT NULL,
	alert_code TEXT NOT NULL,
	alert_level TEXT NOT NULL,
	region_code TEXT,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	triggered_at TIMESTAMP NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	is_acknowledged BOOLEAN NOT NULL DEFAULT 0,
	acknowledged_at TIMESTAMP,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_alerts_time ON alerts(triggered_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts(is_active);
CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(alert_type);
`

// SeedData inserts the default indicator and region catalog. Idempotent.
const SeedData = `
INSERT OR IGNORE INTO regions (code, name) VALUES
	('US-TX', 'Texas'),
	('ERCOT', 'ERCOT Grid Zone');

INSERT OR IGNORE INTO indicators (code, name, category, unit, domain) VALUES
	('GRID_DEMAND', 'Grid Demand', 'energy', 'MW', 'GRID'),
	('GRID_GENERATION', 'Grid Generation', 'energy', 'MW', 'GRID'),
	('GW_LEVEL', 'Groundwater Level', 'hydrology', 'm', 'WATR'),
	('PORT_WAITING', 'Port Vessels Waiting', 'logistics', 'count', 'FLOW'),
	('PORT_DWELL', 'Port Dwell Time', 'logistics', 'hours', 'FLOW'),
	('PORT_VESSELS', 'Port Vessels In Port', 'logistics', 'count', 'FLOW'),
	('PORT_THROUGHPUT', 'Port Throughput', 'logistics', 'TEU', 'FLOW');
`
