package symbology

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"SecMaster/internal/domain/models"
	"SecMaster/internal/domain/repository"
	"SecMaster/pkg/cache"
	applogger "SecMaster/pkg/logger"
	"SecMaster/pkg/metrics"

	"github.com/google/uuid"
)

// ErrUnknownSource is returned for a source with no configured rule.
var ErrUnknownSource = errors.New("unknown symbology source")

const lockKey = "symbology:rebuild"

// RebuiltPayload is published with EventSymbologyRebuilt.
type RebuiltPayload struct {
	RunID   string            `json:"run_id"`
	Sources []string          `json:"sources"`
	Failed  map[string]string `json:"failed,omitempty"`
	Rows    int               `json:"rows"`
}

// Option configures Resolver.
type Option func(*Resolver)

// WithCache enables the lookup cache and the rebuild lock.
func WithCache(c cache.Service, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = c
		r.lookupTTL = ttl
	}
}

// WithCodeLister enables synthetic ids for the named sources.
func WithCodeLister(l repository.CodeLister, sources ...string) Option {
	return func(r *Resolver) {
		r.lister = l
		for _, s := range sources {
			r.synthetic[s] = true
		}
	}
}

// WithSyntheticRange sets the synthetic id range [min, max).
func WithSyntheticRange(min, max int64) Option {
	return func(r *Resolver) {
		r.synMin, r.synMax = min, max
	}
}

// WithLockTTL bounds how long a crashed rebuild can block the next one.
func WithLockTTL(d time.Duration) Option {
	return func(r *Resolver) { r.lockTTL = d }
}

func WithPublisher(p repository.Publisher) Option {
	return func(r *Resolver) { r.publisher = p }
}

func WithMetrics(m repository.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

func WithLogger(l *applogger.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// Resolver rebuilds symbology mappings and serves lookups.
type Resolver struct {
	ref       repository.ReferenceStore
	store     repository.SymbologyStore
	rules     map[string]Rule
	order     []string
	exchanges *ExchangeTable

	cache     cache.Service
	lookupTTL time.Duration
	lockTTL   time.Duration
	lister    repository.CodeLister
	synthetic map[string]bool
	synMin    int64
	synMax    int64

	publisher repository.Publisher
	metrics   repository.Metrics
	log       *applogger.Logger
	now       func() time.Time
}

// NewResolver creates a resolver over the given rules.
func NewResolver(ref repository.ReferenceStore, store repository.SymbologyStore, rules []Rule, exchanges *ExchangeTable, opts ...Option) *Resolver {
	r := &Resolver{
		ref:       ref,
		store:     store,
		rules:     make(map[string]Rule, len(rules)),
		exchanges: exchanges,
		lookupTTL: 6 * time.Hour,
		lockTTL:   30 * time.Minute,
		synthetic: make(map[string]bool),
		synMin:    1_000_000,
		synMax:    2_000_000,
		publisher: noopPublisher{},
		metrics:   metrics.Nop{},
		log:       applogger.NewNop(),
		now:       time.Now,
	}
	for _, rule := range rules {
		r.rules[rule.Source()] = rule
		r.order = append(r.order, rule.Source())
	}
	if r.exchanges == nil {
		r.exchanges = NewExchangeTable(nil)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sources lists configured sources in build order.
func (r *Resolver) Sources() []string {
	return append([]string(nil), r.order...)
}

// Rebuild regenerates the mappings of the given sources (all when empty).
// Per-source failures are counted in the summary; the error is reserved for
// failures that abort the whole run.
func (r *Resolver) Rebuild(ctx context.Context, sources []string) (*models.PhaseSummary, error) {
	if len(sources) == 0 {
		sources = r.Sources()
	}
	for _, s := range sources {
		if _, ok := r.rules[s]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, s)
		}
	}

	if r.cache != nil {
		ok, err := r.cache.TryLock(ctx, lockKey, r.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire rebuild lock: %w", err)
		}
		if !ok {
			return nil, repository.ErrRebuildInProgress
		}
		defer func() {
			if err := r.cache.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
				r.log.Warn("release rebuild lock", applogger.Error(err))
			}
		}()
	}

	instruments, err := r.ref.ListInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reference data: %w", err)
	}
	if len(instruments) == 0 {
		return nil, fmt.Errorf("reference snapshot: %w", repository.ErrNoData)
	}

	summary := models.NewPhaseSummary(models.PhaseSymbology, uuid.NewString())
	log := r.log.With(applogger.String("run_id", summary.RunID))
	now := r.now().UTC()

	var alloc *idAllocator
	sets := make(map[string][]models.SymbologyMapping, len(sources))
	failed := make(map[string]string)
	for _, src := range sources {
		if r.synthetic[src] && r.lister != nil && alloc == nil {
			if alloc, err = newIDAllocator(ctx, r.store, r.synMin, r.synMax); err != nil {
				return nil, err
			}
		}
		rows, err := r.buildSource(ctx, log, summary, src, instruments, now, alloc)
		if err != nil {
			log.Error("build source mappings", applogger.String("source", src), applogger.Error(err))
			failed[src] = err.Error()
			summary.Failed++
			continue
		}
		sets[src] = rows
	}

	failures, err := r.store.ReplaceSources(ctx, sets)
	if err != nil {
		r.metrics.RecordPhaseItems(models.PhaseSymbology, "failed", len(sets))
		return nil, fmt.Errorf("persist mappings: %w", err)
	}

	committed := make([]string, 0, len(sets))
	for _, src := range sources {
		rows, ok := sets[src]
		if !ok {
			continue
		}
		if ferr := failures[src]; ferr != nil {
			log.Error("persist source mappings", applogger.String("source", src), applogger.Error(ferr))
			failed[src] = ferr.Error()
			summary.Failed++
			continue
		}
		committed = append(committed, src)
		summary.Processed += len(rows)
		summary.Rows += len(rows)
		summary.Add("source:"+src, len(rows))
	}

	r.invalidate(ctx, log, committed)

	summary.Finish()
	r.metrics.RecordPhaseItems(models.PhaseSymbology, "processed", summary.Processed)
	r.metrics.RecordPhaseItems(models.PhaseSymbology, "skipped", summary.Skipped)
	r.metrics.RecordPhaseItems(models.PhaseSymbology, "failed", summary.Failed)
	r.metrics.RecordPhaseDuration(models.PhaseSymbology, summary.Duration.Seconds())

	if err := r.publisher.PublishEvent(ctx, models.DomainEvent{
		ID:         uuid.NewString(),
		Type:       models.EventSymbologyRebuilt,
		OccurredAt: now,
		Payload:    RebuiltPayload{RunID: summary.RunID, Sources: committed, Failed: failed, Rows: summary.Rows},
	}); err != nil {
		log.Warn("publish symbology event", applogger.Error(err))
	}

	log.Info("symbology rebuilt",
		applogger.Strings("sources", committed),
		applogger.Int("processed", summary.Processed),
		applogger.Int("skipped", summary.Skipped),
		applogger.Int("failed", summary.Failed),
		applogger.Duration("duration_ms", summary.Duration),
	)
	return summary, nil
}

// buildSource derives, dedupes and stamps one source's full mapping set.
func (r *Resolver) buildSource(ctx context.Context, log *applogger.Logger, summary *models.PhaseSummary,
	source string, instruments []models.Instrument, now time.Time, alloc *idAllocator) ([]models.SymbologyMapping, error) {
	rule := r.rules[source]

	previous, err := r.store.ListMappings(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("load existing %s mappings: %w", source, err)
	}
	created := make(map[string]time.Time, len(previous))
	for _, m := range previous {
		created[mappingKey(m.InstrumentID, m.SourceCode)] = m.CreatedAt
	}

	winners := make(map[string]models.Instrument)
	for _, inst := range instruments {
		if !rule.Eligible(inst, now) {
			summary.Add("ineligible", 1)
			continue
		}
		code, ok, reason := rule.Derive(inst, r.exchanges)
		if !ok {
			summary.Skipped++
			summary.Add("skip:"+reason, 1)
			log.Warn("instrument not mapped",
				applogger.String("source", source),
				applogger.Int64("instrument_id", inst.ID),
				applogger.String("reason", reason),
			)
			continue
		}
		if cur, dup := winners[code]; dup {
			loser := inst
			if preferred(inst, cur) {
				winners[code], loser = inst, cur
			}
			summary.Skipped++
			summary.Add("skip:duplicate_code", 1)
			log.Warn("duplicate source code",
				applogger.String("source", source),
				applogger.String("code", code),
				applogger.Int64("instrument_id", loser.ID),
				applogger.Int64("kept_id", winners[code].ID),
			)
			continue
		}
		winners[code] = inst
	}

	rows := make([]models.SymbologyMapping, 0, len(winners))
	for code, inst := range winners {
		rows = append(rows, stamp(inst.ID, source, code, rule.EntityType(), now, created))
	}

	if r.synthetic[source] && r.lister != nil {
		extra, err := r.syntheticMappings(ctx, source, winners, previous, now, created, alloc)
		if err != nil {
			return nil, err
		}
		summary.Add("synthetic", len(extra))
		rows = append(rows, extra...)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].InstrumentID != rows[j].InstrumentID {
			return rows[i].InstrumentID < rows[j].InstrumentID
		}
		return rows[i].SourceCode < rows[j].SourceCode
	})
	return rows, nil
}

// syntheticMappings covers codes the vendor lists that no instrument derived.
// A code keeps the synthetic id it was given by an earlier run.
func (r *Resolver) syntheticMappings(ctx context.Context, source string, derived map[string]models.Instrument,
	previous []models.SymbologyMapping, now time.Time, created map[string]time.Time, alloc *idAllocator) ([]models.SymbologyMapping, error) {
	codes, err := r.lister.ListCodes(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("list %s codes: %w", source, err)
	}

	reuse := make(map[string]int64)
	for _, m := range previous {
		if m.InstrumentID >= r.synMin && m.InstrumentID < r.synMax {
			reuse[m.SourceCode] = m.InstrumentID
		}
	}

	sort.Strings(codes)
	var out []models.SymbologyMapping
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if _, ok := derived[code]; ok {
			continue
		}
		if _, ok := seen[code]; ok || code == "" {
			continue
		}
		seen[code] = struct{}{}

		id, ok := reuse[code]
		if !ok {
			if id, err = alloc.allocate(); err != nil {
				return nil, fmt.Errorf("source %s: %w", source, err)
			}
		}
		out = append(out, stamp(id, source, code, models.EntitySynthetic, now, created))
	}
	return out, nil
}

// preferred reports whether a should win a duplicate code over b: active
// first, then the later end date, then the lower id.
func preferred(a, b models.Instrument) bool {
	if a.Active != b.Active {
		return a.Active
	}
	if !a.EndDate.Equal(b.EndDate) {
		return a.EndDate.After(b.EndDate)
	}
	return a.ID < b.ID
}

func stamp(id int64, source, code, entity string, now time.Time, created map[string]time.Time) models.SymbologyMapping {
	c, ok := created[mappingKey(id, code)]
	if !ok {
		c = now
	}
	return models.SymbologyMapping{
		InstrumentID: id,
		Source:       source,
		SourceCode:   code,
		EntityType:   entity,
		CreatedAt:    c,
		UpdatedAt:    now,
	}
}

func mappingKey(id int64, code string) string {
	return fmt.Sprintf("%d\x00%s", id, code)
}

func (r *Resolver) invalidate(ctx context.Context, log *applogger.Logger, sources []string) {
	if r.cache == nil {
		return
	}
	for _, src := range sources {
		if err := r.cache.DeleteByPattern(ctx, cache.Pattern("symbology", src)); err != nil {
			log.Warn("invalidate lookup cache", applogger.String("source", src), applogger.Error(err))
		}
	}
}

// Resolve maps a vendor code to an instrument id, through the cache when
// one is configured.
func (r *Resolver) Resolve(ctx context.Context, source, code string) (int64, error) {
	key := cache.Key("symbology", source, code)
	if r.cache != nil {
		var id int64
		err := r.cache.Get(ctx, key, &id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.log.Warn("lookup cache read", applogger.String("key", key), applogger.Error(err))
		}
	}

	id, err := r.store.LookupInstrument(ctx, source, code)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, fmt.Errorf("%w: %s/%s", repository.ErrUnresolved, source, code)
	}
	if err != nil {
		return 0, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, id, r.lookupTTL); err != nil {
			r.log.Warn("lookup cache write", applogger.String("key", key), applogger.Error(err))
		}
	}
	return id, nil
}

// Translate returns the source's code for an instrument.
func (r *Resolver) Translate(ctx context.Context, instrumentID int64, source string) (string, error) {
	if _, ok := r.rules[source]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	return r.store.LookupCode(ctx, instrumentID, source)
}

type noopPublisher struct{}

func (noopPublisher) PublishEvent(context.Context, models.DomainEvent) error { return nil }
func (noopPublisher) Close() error                                           { return nil }
