package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"SecMaster/internal/domain/models"
	"SecMaster/internal/domain/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var symbologyColumns = []string{"instrument_id", "source", "source_code", "entity_type", "created_at", "updated_at"}

// PostgresSymbologyStore persists mappings in the symbology table.
type PostgresSymbologyStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSymbologyStore creates the store over an open pool.
func NewPostgresSymbologyStore(pool *pgxpool.Pool) *PostgresSymbologyStore {
	return &PostgresSymbologyStore{pool: pool}
}

func (s *PostgresSymbologyStore) ListMappings(ctx context.Context, source string) ([]models.SymbologyMapping, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT instrument_id, source, source_code, entity_type, created_at, updated_at
		FROM symbology WHERE source = $1 ORDER BY instrument_id`, source)
	if err != nil {
		return nil, fmt.Errorf("query symbology %s: %w", source, err)
	}
	defer rows.Close()

	var out []models.SymbologyMapping
	for rows.Next() {
		var m models.SymbologyMapping
		if err := rows.Scan(&m.InstrumentID, &m.Source, &m.SourceCode, &m.EntityType, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan symbology: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresSymbologyStore) LookupInstrument(ctx context.Context, source, code string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT instrument_id FROM symbology WHERE source = $1 AND source_code = $2`, source, code).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%s/%s: %w", source, code, repository.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup %s/%s: %w", source, code, err)
	}
	return id, nil
}

func (s *PostgresSymbologyStore) LookupCode(ctx context.Context, instrumentID int64, source string) (string, error) {
	var code string
	err := s.pool.QueryRow(ctx, `
		SELECT source_code FROM symbology WHERE instrument_id = $1 AND source = $2
		ORDER BY source_code LIMIT 1`, instrumentID, source).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("instrument %d in %s: %w", instrumentID, source, repository.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("translate %d to %s: %w", instrumentID, source, err)
	}
	return code, nil
}

func (s *PostgresSymbologyStore) MaxInstrumentID(ctx context.Context, min, max int64) (int64, error) {
	var top int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(instrument_id), 0) FROM symbology
		WHERE instrument_id >= $1 AND instrument_id < $2`, min, max).Scan(&top)
	if err != nil {
		return 0, fmt.Errorf("max synthetic id: %w", err)
	}
	return top, nil
}

// ReplaceSources runs every source inside its own savepoint of one
// transaction. A source whose delete or copy fails is rolled back to its
// savepoint and reported; the remaining sources still commit.
func (s *PostgresSymbologyStore) ReplaceSources(ctx context.Context, sets map[string][]models.SymbologyMapping) (map[string]error, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin symbology tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	sources := make([]string, 0, len(sets))
	for src := range sets {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	failed := make(map[string]error)
	for _, src := range sources {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("savepoint %s: %w", src, err)
		}
		if err := replaceSource(ctx, sp, src, sets[src]); err != nil {
			if rbErr := sp.Rollback(ctx); rbErr != nil {
				return nil, fmt.Errorf("rollback %s: %w", src, rbErr)
			}
			failed[src] = err
			continue
		}
		if err := sp.Commit(ctx); err != nil {
			return nil, fmt.Errorf("release savepoint %s: %w", src, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit symbology tx: %w", err)
	}
	return failed, nil
}

func replaceSource(ctx context.Context, tx pgx.Tx, source string, rows []models.SymbologyMapping) error {
	if _, err := tx.Exec(ctx, `DELETE FROM symbology WHERE source = $1`, source); err != nil {
		return fmt.Errorf("delete %s mappings: %w", source, err)
	}
	if len(rows) == 0 {
		return nil
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"symbology"}, symbologyColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			m := rows[i]
			if m.Source != source {
				return nil, fmt.Errorf("mapping for %q in %q batch", m.Source, source)
			}
			return []any{m.InstrumentID, m.Source, m.SourceCode, m.EntityType, m.CreatedAt, m.UpdatedAt}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy %s mappings: %w", source, err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copy %s mappings: wrote %d of %d rows", source, n, len(rows))
	}
	return nil
}

var _ repository.SymbologyStore = (*PostgresSymbologyStore)(nil)
