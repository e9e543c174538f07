package validator

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
	"SecMaster/pkg/retry"
	"SecMaster/pkg/util"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config holds validator settings.
type Config struct {
	Workers        int
	PeriodDays     *int
	Precision      int32
	ConsensusID    int32
	ConsensusName  string
	ExcludeVendors []string
	DeleteRetry    retry.Policy
}

// Request selects what one validation run covers.
type Request struct {
	Table         models.PriceTable `json:"table" default:"daily" validate:"oneof=daily minute"`
	PeriodDays    *int              `json:"period_days,omitempty" validate:"omitempty,gte=1"`
	InstrumentIDs []int64           `json:"instrument_ids,omitempty" validate:"omitempty,dive,gt=0"`
}

// Outcome describes the consensus written for one instrument.
type Outcome struct {
	InstrumentID int64
	Rows         int
	Replaced     bool
	From, To     time.Time
}

// Option configures Validator.
type Option func(*Validator)

func WithPublisher(p repository.Publisher) Option {
	return func(v *Validator) { v.publisher = p }
}

func WithMetrics(m repository.Metrics) Option {
	return func(v *Validator) { v.metrics = m }
}

func WithLogger(l *applogger.Logger) Option {
	return func(v *Validator) { v.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// Validator computes weighted-majority consensus prices across vendors.
type Validator struct {
	prices    repository.PriceStore
	vendors   repository.VendorStore
	cfg       Config
	publisher repository.Publisher
	metrics   repository.Metrics
	log       *applogger.Logger
	now       func() time.Time
}

// NewValidator creates a validator.
func NewValidator(prices repository.PriceStore, vendors repository.VendorStore, cfg Config, opts ...Option) *Validator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.DeleteRetry.MaxAttempts <= 0 {
		cfg.DeleteRetry = retry.DefaultPolicy
	}
	if cfg.ConsensusName == "" {
		cfg.ConsensusName = "consensus"
	}
	v := &Validator{
		prices:    prices,
		vendors:   vendors,
		cfg:       cfg,
		publisher: noopPublisher{},
		metrics:   metrics.Nop{},
		log:       applogger.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Run validates every requested instrument (all instruments with vendor rows
// when none are given) on a bounded worker pool. Per-instrument failures are
// counted in the summary and never abort the run.
func (v *Validator) Run(ctx context.Context, req Request) (*models.PhaseSummary, error) {
	if req.Table == "" {
		req.Table = models.TableDaily
	}
	if !req.Table.IsValid() {
		return nil, fmt.Errorf("unknown price table %q", req.Table)
	}

	ids := req.InstrumentIDs
	if len(ids) == 0 {
		var err error
		if ids, err = v.prices.InstrumentIDs(ctx, req.Table); err != nil {
			return nil, fmt.Errorf("list instruments: %w", err)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s prices: %w", req.Table, repository.ErrNoData)
	}

	weights, err := v.LoadWeights(ctx)
	if err != nil {
		return nil, err
	}

	period := req.PeriodDays
	if period == nil {
		period = v.cfg.PeriodDays
	}
	window := util.WindowStart(v.now(), period)

	summary := models.NewPhaseSummary(models.PhaseValidate, uuid.NewString())
	log := v.log.With(applogger.String("run_id", summary.RunID), applogger.String("table", string(req.Table)))
	log.Info("validation started", applogger.Int("instruments", len(ids)), applogger.Int("voters", len(weights)))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(v.cfg.Workers)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			out, err := v.ValidateInstrument(ctx, req.Table, id, window, weights)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				summary.Processed++
				summary.Rows += out.Rows
				if out.Replaced {
					summary.Add("replaced", 1)
				}
			case errors.Is(err, repository.ErrNoData):
				summary.Skipped++
			default:
				summary.Failed++
				log.Error("instrument validation failed", applogger.Int64("instrument_id", id), applogger.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Finish()
	v.metrics.RecordPhaseItems(models.PhaseValidate, "processed", summary.Processed)
	v.metrics.RecordPhaseItems(models.PhaseValidate, "skipped", summary.Skipped)
	v.metrics.RecordPhaseItems(models.PhaseValidate, "failed", summary.Failed)
	v.metrics.RecordPhaseDuration(models.PhaseValidate, summary.Duration.Seconds())
	v.metrics.RecordRows(string(req.Table), v.cfg.ConsensusName, summary.Rows)

	log.Info("validation finished",
		applogger.Int("processed", summary.Processed),
		applogger.Int("skipped", summary.Skipped),
		applogger.Int("failed", summary.Failed),
		applogger.Int("rows", summary.Rows),
		applogger.Duration("duration_ms", summary.Duration),
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("validation interrupted: %w", err)
	}
	return summary, nil
}

// LoadWeights returns the voting weights of every weighted vendor that is
// neither excluded nor the consensus pseudo-vendor.
func (v *Validator) LoadWeights(ctx context.Context) (Weights, error) {
	vendors, err := v.vendors.ListVendors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vendor weights: %w", err)
	}
	excluded := make(map[string]struct{}, len(v.cfg.ExcludeVendors))
	for _, name := range v.cfg.ExcludeVendors {
		excluded[name] = struct{}{}
	}
	w := make(Weights, len(vendors))
	for _, vd := range vendors {
		if !vd.HasWeight || vd.ID == v.cfg.ConsensusID {
			continue
		}
		if _, skip := excluded[vd.Name]; skip {
			continue
		}
		w[vd.ID] = vd.ConsensusWeight
	}
	return w, nil
}

// ValidateInstrument recomputes the consensus rows of one instrument for
// dates after window (all dates when nil). Existing consensus rows in the
// window are deleted first; if that keeps failing the insert is skipped so
// stale rows survive instead of duplicates.
func (v *Validator) ValidateInstrument(ctx context.Context, table models.PriceTable, instrumentID int64, window *time.Time, weights Weights) (Outcome, error) {
	out := Outcome{InstrumentID: instrumentID}

	bars, err := v.prices.Observations(ctx, table, instrumentID, window)
	if err != nil {
		return out, fmt.Errorf("load observations: %w", err)
	}
	if len(bars) == 0 {
		return out, fmt.Errorf("instrument %d: %w", instrumentID, repository.ErrNoData)
	}

	voting := bars[:0:0]
	for _, b := range bars {
		if b.VendorID == v.cfg.ConsensusID {
			out.Replaced = true
			continue
		}
		voting = append(voting, b)
	}

	rows := Consensus(voting, weights, v.cfg.Precision, instrumentID, v.cfg.ConsensusID, v.now().UTC())
	if len(rows) == 0 {
		return out, fmt.Errorf("instrument %d has no weighted observations: %w", instrumentID, repository.ErrNoData)
	}

	if out.Replaced {
		err := v.cfg.DeleteRetry.Do(ctx, func(ctx context.Context) error {
			return v.prices.DeleteAfter(ctx, table, v.cfg.ConsensusID, instrumentID, window)
		}, func(attempt int, err error) {
			v.metrics.RecordDeleteRetry(string(table))
			v.log.Warn("consensus delete retry",
				applogger.Int64("instrument_id", instrumentID),
				applogger.Int("attempt", attempt),
				applogger.Error(err),
			)
		})
		if err != nil {
			return out, fmt.Errorf("delete prior consensus, keeping stale rows: %w", err)
		}
	}

	if err := v.prices.Insert(ctx, table, rows); err != nil {
		return out, fmt.Errorf("insert consensus: %w", err)
	}

	out.Rows = len(rows)
	out.From, out.To = rows[0].Date, rows[len(rows)-1].Date
	if err := v.publisher.PublishEvent(ctx, models.DomainEvent{
		ID:         uuid.NewString(),
		Type:       models.EventConsensusUpdated,
		OccurredAt: v.now().UTC(),
		Payload: models.ConsensusUpdate{
			InstrumentID: instrumentID,
			Table:        table,
			Rows:         out.Rows,
			From:         out.From,
			To:           out.To,
			Replaced:     out.Replaced,
		},
	}); err != nil {
		v.log.Warn("publish consensus event", applogger.Int64("instrument_id", instrumentID), applogger.Error(err))
	}
	return out, nil
}

type noopPublisher struct{}

func (noopPublisher) PublishEvent(context.Context, models.DomainEvent) error { return nil }
func (noopPublisher) Close() error                                           { return nil }
