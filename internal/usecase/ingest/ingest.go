package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SecMaster/internal/domain/models"
	"SecMaster/internal/domain/repository"
	applogger "SecMaster/pkg/logger"
	"SecMaster/pkg/metrics"
	"SecMaster/pkg/util"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Write modes.
const (
	ModeAppend  = "append"
	ModeReplace = "replace"
)

// Resolver turns a vendor code into an instrument id.
type Resolver interface {
	Resolve(ctx context.Context, source, code string) (int64, error)
}

// Config holds ingestion settings.
type Config struct {
	Workers           int
	Mode              string
	ReplaceWindowDays int
}

// IngestRequest selects one vendor table to refresh.
type IngestRequest struct {
	Vendor string            `json:"vendor" validate:"required"`
	Table  models.PriceTable `json:"table" default:"daily" validate:"oneof=daily minute"`
	Mode   string            `json:"mode,omitempty" validate:"omitempty,oneof=append replace"`
}

// Option configures Ingestor.
type Option func(*Ingestor)

func WithMetrics(m repository.Metrics) Option {
	return func(i *Ingestor) { i.metrics = m }
}

func WithLogger(l *applogger.Logger) Option {
	return func(i *Ingestor) { i.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) { i.now = now }
}

// Ingestor downloads vendor price series and writes them keyed by instrument id.
type Ingestor struct {
	mappings repository.SymbologyStore
	vendors  repository.VendorStore
	prices   repository.PriceStore
	fetcher  repository.PriceFetcher
	resolver Resolver
	cfg      Config

	metrics repository.Metrics
	log     *applogger.Logger
	now     func() time.Time
}

// NewIngestor creates an ingestor. resolver may be nil when only Run is used.
func NewIngestor(mappings repository.SymbologyStore, vendors repository.VendorStore, prices repository.PriceStore,
	fetcher repository.PriceFetcher, resolver Resolver, cfg Config, opts ...Option) *Ingestor {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeReplace
	}
	i := &Ingestor{
		mappings: mappings,
		vendors:  vendors,
		prices:   prices,
		fetcher:  fetcher,
		resolver: resolver,
		cfg:      cfg,
		metrics:  metrics.Nop{},
		log:      applogger.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run refreshes every code the vendor's source maps. Per-code failures are
// counted in the summary.
func (i *Ingestor) Run(ctx context.Context, req IngestRequest) (*models.PhaseSummary, error) {
	if req.Table == "" {
		req.Table = models.TableDaily
	}
	if !req.Table.IsValid() {
		return nil, fmt.Errorf("unknown price table %q", req.Table)
	}
	mode := req.Mode
	if mode == "" {
		mode = i.cfg.Mode
	}
	if mode != ModeAppend && mode != ModeReplace {
		return nil, fmt.Errorf("unknown ingest mode %q", mode)
	}

	vendor, err := i.vendors.VendorByName(ctx, req.Vendor)
	if err != nil {
		return nil, fmt.Errorf("vendor %s: %w", req.Vendor, err)
	}
	source := sourceOf(vendor)
	mappings, err := i.mappings.ListMappings(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("list %s mappings: %w", source, err)
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("source %s: %w", source, repository.ErrNoData)
	}

	summary := models.NewPhaseSummary(models.PhaseIngest, uuid.NewString())
	log := i.log.With(
		applogger.String("run_id", summary.RunID),
		applogger.String("vendor", vendor.Name),
		applogger.String("table", string(req.Table)),
		applogger.String("mode", mode),
	)
	log.Info("ingestion started", applogger.Int("codes", len(mappings)))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(i.cfg.Workers)
	for _, m := range mappings {
		if ctx.Err() != nil {
			break
		}
		m := m
		g.Go(func() error {
			rows, err := i.ingestCode(ctx, vendor, req.Table, mode, m)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				summary.Processed++
				summary.Rows += rows
			case errors.Is(err, repository.ErrNoData):
				summary.Skipped++
			default:
				summary.Failed++
				log.Error("code ingestion failed", applogger.String("code", m.SourceCode), applogger.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Finish()
	i.metrics.RecordPhaseItems(models.PhaseIngest, "processed", summary.Processed)
	i.metrics.RecordPhaseItems(models.PhaseIngest, "skipped", summary.Skipped)
	i.metrics.RecordPhaseItems(models.PhaseIngest, "failed", summary.Failed)
	i.metrics.RecordPhaseDuration(models.PhaseIngest, summary.Duration.Seconds())
	i.metrics.RecordRows(string(req.Table), vendor.Name, summary.Rows)

	log.Info("ingestion finished",
		applogger.Int("processed", summary.Processed),
		applogger.Int("skipped", summary.Skipped),
		applogger.Int("failed", summary.Failed),
		applogger.Int("rows", summary.Rows),
		applogger.Duration("duration_ms", summary.Duration),
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("ingestion interrupted: %w", err)
	}
	return summary, nil
}

func (i *Ingestor) ingestCode(ctx context.Context, vendor models.Vendor, table models.PriceTable, mode string, m models.SymbologyMapping) (int, error) {
	latest, hasLatest, err := i.prices.LatestDate(ctx, table, vendor.ID, m.InstrumentID)
	if err != nil {
		return 0, fmt.Errorf("latest date: %w", err)
	}

	var since *time.Time
	if hasLatest {
		s := latest
		if mode == ModeReplace {
			s = latest.AddDate(0, 0, -i.cfg.ReplaceWindowDays)
		}
		since = &s
	}

	bars, err := i.fetcher.FetchVendorPrices(ctx, vendor.Name, m.SourceCode, since)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", m.SourceCode, err)
	}
	bars = i.stamp(bars, table, vendor.ID, m.InstrumentID, m.SourceCode)

	if mode == ModeAppend {
		if hasLatest {
			bars = newerThan(bars, latest)
		}
		if len(bars) == 0 {
			return 0, fmt.Errorf("%s: %w", m.SourceCode, repository.ErrNoData)
		}
		if err := i.prices.Insert(ctx, table, bars); err != nil {
			return 0, fmt.Errorf("insert: %w", err)
		}
		return len(bars), nil
	}
	return i.replace(ctx, table, vendor.ID, m.InstrumentID, bars)
}

// Ingest writes a pushed batch for one vendor code with replace semantics.
func (i *Ingestor) Ingest(ctx context.Context, vendorName string, table models.PriceTable, code string, bars []models.PriceBar) (int, error) {
	if i.resolver == nil {
		return 0, errors.New("push ingestion needs a resolver")
	}
	if table == "" {
		table = models.TableDaily
	}
	if !table.IsValid() {
		return 0, fmt.Errorf("unknown price table %q", table)
	}
	vendor, err := i.vendors.VendorByName(ctx, vendorName)
	if err != nil {
		return 0, fmt.Errorf("vendor %s: %w", vendorName, err)
	}
	id, err := i.resolver.Resolve(ctx, sourceOf(vendor), code)
	if err != nil {
		return 0, err
	}

	rows, err := i.replace(ctx, table, vendor.ID, id, i.stamp(bars, table, vendor.ID, id, code))
	if err == nil {
		i.metrics.RecordRows(string(table), vendor.Name, rows)
	}
	return rows, err
}

// replace deletes the vendor's rows from the first new date on, then
// inserts. A failed delete skips the insert so rows are never duplicated.
func (i *Ingestor) replace(ctx context.Context, table models.PriceTable, vendorID int32, instrumentID int64, bars []models.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, fmt.Errorf("instrument %d: %w", instrumentID, repository.ErrNoData)
	}
	from := bars[0].Date
	for _, b := range bars[1:] {
		if b.Date.Before(from) {
			from = b.Date
		}
	}
	if err := i.prices.DeleteFrom(ctx, table, vendorID, instrumentID, from); err != nil {
		return 0, fmt.Errorf("delete from %s: %w", from.Format(util.DateLayout), err)
	}
	if err := i.prices.Insert(ctx, table, bars); err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	return len(bars), nil
}

func (i *Ingestor) stamp(bars []models.PriceBar, table models.PriceTable, vendorID int32, instrumentID int64, code string) []models.PriceBar {
	now := i.now().UTC()
	out := make([]models.PriceBar, 0, len(bars))
	for _, b := range bars {
		if b.Date.IsZero() {
			continue
		}
		b.InstrumentID = instrumentID
		b.VendorID = vendorID
		b.SourceCode = code
		b.UpdatedAt = now
		if table == models.TableDaily {
			b.Date = util.Day(b.Date)
		} else {
			b.Date = b.Date.UTC()
		}
		out = append(out, b)
	}
	return out
}

func newerThan(bars []models.PriceBar, latest time.Time) []models.PriceBar {
	out := bars[:0]
	for _, b := range bars {
		if b.Date.After(latest) {
			out = append(out, b)
		}
	}
	return out
}

// sourceOf returns the symbology source a vendor's codes belong to.
func sourceOf(v models.Vendor) string {
	if v.Source != "" {
		return v.Source
	}
	return v.Name
}
