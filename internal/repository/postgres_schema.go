package repository

// PostgresSchema creates the reference, vendor and symbology tables.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS instrument_reference (
		id             BIGINT PRIMARY KEY,
		ticker         TEXT NOT NULL,
		name           TEXT NOT NULL DEFAULT '',
		exchange       TEXT NOT NULL DEFAULT '',
		child_exchange TEXT NOT NULL DEFAULT '',
		active         BOOLEAN NOT NULL DEFAULT TRUE,
		start_date     DATE,
		end_date       DATE,
		sector         TEXT NOT NULL DEFAULT '',
		industry       TEXT NOT NULL DEFAULT '',
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS data_vendor (
		id               INTEGER PRIMARY KEY,
		name             TEXT NOT NULL UNIQUE,
		source           TEXT NOT NULL DEFAULT '',
		consensus_weight DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS symbology (
		instrument_id BIGINT NOT NULL,
		source        TEXT NOT NULL,
		source_code   TEXT NOT NULL,
		entity_type   TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		UNIQUE (source, source_code)
	)`,
	`CREATE INDEX IF NOT EXISTS symbology_instrument_source_idx ON symbology (instrument_id, source)`,
}
