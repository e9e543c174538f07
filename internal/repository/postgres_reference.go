package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SecMaster/internal/domain/models"
	"SecMaster/internal/domain/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresReferenceStore reads reference data and vendor metadata.
type PostgresReferenceStore struct {
	pool *pgxpool.Pool
}

// NewPostgresReferenceStore creates the store over an open pool.
func NewPostgresReferenceStore(pool *pgxpool.Pool) *PostgresReferenceStore {
	return &PostgresReferenceStore{pool: pool}
}

func (s *PostgresReferenceStore) ListInstruments(ctx context.Context) ([]models.Instrument, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ticker, name, exchange, child_exchange, active, start_date, end_date, sector, industry
		FROM instrument_reference
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query instrument_reference: %w", err)
	}
	defer rows.Close()

	var out []models.Instrument
	for rows.Next() {
		var (
			inst       models.Instrument
			start, end *time.Time
		)
		if err := rows.Scan(&inst.ID, &inst.Ticker, &inst.Name, &inst.Exchange, &inst.ChildExchange,
			&inst.Active, &start, &end, &inst.Sector, &inst.Industry); err != nil {
			return nil, fmt.Errorf("scan instrument_reference: %w", err)
		}
		if start != nil {
			inst.StartDate = *start
		}
		if end != nil {
			inst.EndDate = *end
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *PostgresReferenceStore) UpsertInstruments(ctx context.Context, rows []models.Instrument) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO instrument_reference
				(id, ticker, name, exchange, child_exchange, active, start_date, end_date, sector, industry, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
			ON CONFLICT (id) DO UPDATE SET
				ticker = EXCLUDED.ticker,
				name = EXCLUDED.name,
				exchange = EXCLUDED.exchange,
				child_exchange = EXCLUDED.child_exchange,
				active = EXCLUDED.active,
				start_date = EXCLUDED.start_date,
				end_date = EXCLUDED.end_date,
				sector = EXCLUDED.sector,
				industry = EXCLUDED.industry,
				updated_at = now()`,
			r.ID, r.Ticker, r.Name, r.Exchange, r.ChildExchange, r.Active,
			nullDate(r.StartDate), nullDate(r.EndDate), r.Sector, r.Industry)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert %d instruments: %w", len(rows), err)
	}
	return nil
}

// PostgresVendorStore reads data_vendor.
type PostgresVendorStore struct {
	pool *pgxpool.Pool
}

// NewPostgresVendorStore creates the store over an open pool.
func NewPostgresVendorStore(pool *pgxpool.Pool) *PostgresVendorStore {
	return &PostgresVendorStore{pool: pool}
}

func (s *PostgresVendorStore) ListVendors(ctx context.Context) ([]models.Vendor, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, source, consensus_weight FROM data_vendor ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query data_vendor: %w", err)
	}
	defer rows.Close()

	var out []models.Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresVendorStore) VendorByName(ctx context.Context, name string) (models.Vendor, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, name, source, consensus_weight FROM data_vendor WHERE name = $1`, name)
	v, err := scanVendor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Vendor{}, fmt.Errorf("vendor %q: %w", name, repository.ErrNotFound)
	}
	return v, err
}

// SeedVendors upserts the configured vendor table, including the consensus
// pseudo-vendor.
func (s *PostgresVendorStore) SeedVendors(ctx context.Context, vendors []models.Vendor) error {
	batch := &pgx.Batch{}
	for _, v := range vendors {
		var weight *float64
		if v.HasWeight {
			w := v.ConsensusWeight
			weight = &w
		}
		batch.Queue(`
			INSERT INTO data_vendor (id, name, source, consensus_weight)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				source = EXCLUDED.source,
				consensus_weight = EXCLUDED.consensus_weight`,
			v.ID, v.Name, v.Source, weight)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed vendors: %w", err)
	}
	return nil
}

func scanVendor(row pgx.Row) (models.Vendor, error) {
	var (
		v      models.Vendor
		weight *float64
	)
	if err := row.Scan(&v.ID, &v.Name, &v.Source, &weight); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return v, err
		}
		return v, fmt.Errorf("scan data_vendor: %w", err)
	}
	if weight != nil {
		v.ConsensusWeight, v.HasWeight = *weight, true
	}
	return v, nil
}

func nullDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var (
	_ repository.ReferenceStore = (*PostgresReferenceStore)(nil)
	_ repository.VendorStore    = (*PostgresVendorStore)(nil)
)
