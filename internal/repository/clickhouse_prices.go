package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SecMaster/internal/domain/models"
	"SecMaster/internal/domain/repository"
	applogger "SecMaster/pkg/logger"
)

const priceColumns = `instrument_id, vendor_id, source_code, date, open, high, low, close, volume,
	ex_dividend, split_ratio, adj_open, adj_high, adj_low, adj_close, adj_volume, updated_at`

const priceColumnCount = 17

// ClickHouseSchema creates the daily and minute price tables. Rows sharing
// (instrument_id, vendor_id, date) collapse to the latest updated_at.
var ClickHouseSchema = []string{
	priceTableDDL("daily_prices", "Date32"),
	priceTableDDL("minute_prices", "DateTime64(3, 'UTC')"),
}

func priceTableDDL(name, dateType string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		instrument_id Int64,
		vendor_id     Int32,
		source_code   String,
		date          %s,
		open          Float64,
		high          Float64,
		low           Float64,
		close         Float64,
		volume        Float64,
		ex_dividend   Float64,
		split_ratio   Float64,
		adj_open      Float64,
		adj_high      Float64,
		adj_low       Float64,
		adj_close     Float64,
		adj_volume    Float64,
		updated_at    DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY (instrument_id, vendor_id, date)`, name, dateType)
}

// ClickHousePriceStore implements PriceStore over the clickhouse-go driver.
type ClickHousePriceStore struct {
	db          *sql.DB
	consensusID int32
	batchSize   int
	l           *applogger.Logger
}

// NewClickHousePriceStore creates the store. Rows under consensusID are not
// counted as vendor rows by InstrumentIDs.
func NewClickHousePriceStore(db *sql.DB, consensusID int32, batchSize int, l *applogger.Logger) *ClickHousePriceStore {
	if batchSize <= 0 {
		batchSize = 2000
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &ClickHousePriceStore{db: db, consensusID: consensusID, batchSize: batchSize, l: l}
}

func tableName(t models.PriceTable) (string, error) {
	switch t {
	case models.TableDaily:
		return "daily_prices", nil
	case models.TableMinute:
		return "minute_prices", nil
	default:
		return "", fmt.Errorf("unknown price table %q", t)
	}
}

func (s *ClickHousePriceStore) Observations(ctx context.Context, table models.PriceTable, instrumentID int64, after *time.Time) ([]models.PriceBar, error) {
	tbl, err := tableName(table)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE instrument_id = ?", priceColumns, tbl)
	args := []interface{}{instrumentID}
	if after != nil {
		q += " AND date > ?"
		args = append(args, *after)
	}
	q += " ORDER BY date ASC, vendor_id ASC"
	return s.query(ctx, tbl, q, args...)
}

func (s *ClickHousePriceStore) Query(ctx context.Context, table models.PriceTable, instrumentID int64, vendorID int32, from, to time.Time) ([]models.PriceBar, error) {
	tbl, err := tableName(table)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s FINAL
		WHERE instrument_id = ? AND vendor_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`, priceColumns, tbl)
	return s.query(ctx, tbl, q, instrumentID, vendorID, from, to)
}

func (s *ClickHousePriceStore) query(ctx context.Context, tbl, q string, args ...interface{}) ([]models.PriceBar, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse price query error", applogger.String("table", tbl), applogger.Error(err))
		return nil, fmt.Errorf("query %s: %w", tbl, err)
	}
	defer rows.Close()

	var out []models.PriceBar
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.InstrumentID, &b.VendorID, &b.SourceCode, &b.Date,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
			&b.ExDividend, &b.SplitRatio, &b.AdjOpen, &b.AdjHigh, &b.AdjLow, &b.AdjClose, &b.AdjVolume,
			&b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", tbl, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", tbl, err)
	}
	return out, nil
}

func (s *ClickHousePriceStore) InstrumentIDs(ctx context.Context, table models.PriceTable) ([]int64, error) {
	tbl, err := tableName(table)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT DISTINCT instrument_id FROM %s WHERE vendor_id != ? ORDER BY instrument_id", tbl)
	rows, err := s.db.QueryContext(ctx, q, s.consensusID)
	if err != nil {
		return nil, fmt.Errorf("list instruments in %s: %w", tbl, err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan instrument id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *ClickHousePriceStore) LatestDate(ctx context.Context, table models.PriceTable, vendorID int32, instrumentID int64) (time.Time, bool, error) {
	tbl, err := tableName(table)
	if err != nil {
		return time.Time{}, false, err
	}
	var (
		latest time.Time
		n      uint64
	)
	q := fmt.Sprintf("SELECT max(date), count() FROM %s WHERE instrument_id = ? AND vendor_id = ?", tbl)
	if err := s.db.QueryRowContext(ctx, q, instrumentID, vendorID).Scan(&latest, &n); err != nil {
		return time.Time{}, false, fmt.Errorf("latest date in %s: %w", tbl, err)
	}
	if n == 0 {
		return time.Time{}, false, nil
	}
	return latest, true, nil
}

func (s *ClickHousePriceStore) DeleteAfter(ctx context.Context, table models.PriceTable, vendorID int32, instrumentID int64, after *time.Time) error {
	tbl, err := tableName(table)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE instrument_id = ? AND vendor_id = ?", tbl)
	args := []interface{}{instrumentID, vendorID}
	if after != nil {
		q += " AND date > ?"
		args = append(args, *after)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("delete %s rows for %d/%d: %w", tbl, instrumentID, vendorID, err)
	}
	return nil
}

func (s *ClickHousePriceStore) DeleteFrom(ctx context.Context, table models.PriceTable, vendorID int32, instrumentID int64, from time.Time) error {
	tbl, err := tableName(table)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE instrument_id = ? AND vendor_id = ? AND date >= ?", tbl)
	if _, err := s.db.ExecContext(ctx, q, instrumentID, vendorID, from); err != nil {
		return fmt.Errorf("delete %s rows for %d/%d from %s: %w", tbl, instrumentID, vendorID, from.Format("2006-01-02"), err)
	}
	return nil
}

// Insert writes bars in multi-row VALUES chunks.
func (s *ClickHousePriceStore) Insert(ctx context.Context, table models.PriceTable, bars []models.PriceBar) error {
	tbl, err := tableName(table)
	if err != nil {
		return err
	}
	for start := 0; start < len(bars); start += s.batchSize {
		end := start + s.batchSize
		if end > len(bars) {
			end = len(bars)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*priceColumnCount)
		for _, b := range bars[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				b.InstrumentID, b.VendorID, b.SourceCode, b.Date,
				b.Open, b.High, b.Low, b.Close, b.Volume,
				b.ExDividend, b.SplitRatio, b.AdjOpen, b.AdjHigh, b.AdjLow, b.AdjClose, b.AdjVolume,
				b.UpdatedAt,
			)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", tbl, priceColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse insert error",
				applogger.String("table", tbl),
				applogger.Int("rows", end-start),
				applogger.Error(err),
			)
			return fmt.Errorf("insert %d rows into %s: %w", end-start, tbl, err)
		}
	}
	return nil
}

var _ repository.PriceStore = (*ClickHousePriceStore)(nil)
