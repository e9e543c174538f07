package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"SecMaster/internal/domain/models"
	"SecMaster/internal/domain/repository"
)

// MemoryReferenceStore keeps reference rows in process. It backs the
// memory storage type and tests.
type MemoryReferenceStore struct {
	mu   sync.RWMutex
	rows map[int64]models.Instrument
}

// NewMemoryReferenceStore creates a store preloaded with rows.
func NewMemoryReferenceStore(rows ...models.Instrument) *MemoryReferenceStore {
	s := &MemoryReferenceStore{rows: make(map[int64]models.Instrument)}
	for _, r := range rows {
		s.rows[r.ID] = r
	}
	return s
}

func (s *MemoryReferenceStore) ListInstruments(_ context.Context) ([]models.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Instrument, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryReferenceStore) UpsertInstruments(_ context.Context, rows []models.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.rows[r.ID] = r
	}
	return nil
}

// MemoryVendorStore serves vendor metadata from a fixed slice.
type MemoryVendorStore struct {
	mu      sync.RWMutex
	vendors []models.Vendor
}

// NewMemoryVendorStore creates a vendor store.
func NewMemoryVendorStore(vendors ...models.Vendor) *MemoryVendorStore {
	return &MemoryVendorStore{vendors: append([]models.Vendor(nil), vendors...)}
}

func (s *MemoryVendorStore) ListVendors(_ context.Context) ([]models.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.Vendor(nil), s.vendors...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryVendorStore) VendorByName(_ context.Context, name string) (models.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.vendors {
		if v.Name == name {
			return v, nil
		}
	}
	return models.Vendor{}, fmt.Errorf("vendor %q: %w", name, repository.ErrNotFound)
}

// SeedVendors replaces the vendor table.
func (s *MemoryVendorStore) SeedVendors(_ context.Context, vendors []models.Vendor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vendors = append([]models.Vendor(nil), vendors...)
	return nil
}

// MemorySymbologyStore keeps mappings partitioned by source.
type MemorySymbologyStore struct {
	mu       sync.RWMutex
	bySource map[string][]models.SymbologyMapping
}

// NewMemorySymbologyStore creates an empty store.
func NewMemorySymbologyStore() *MemorySymbologyStore {
	return &MemorySymbologyStore{bySource: make(map[string][]models.SymbologyMapping)}
}

func (s *MemorySymbologyStore) ListMappings(_ context.Context, source string) ([]models.SymbologyMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.SymbologyMapping(nil), s.bySource[source]...), nil
}

func (s *MemorySymbologyStore) LookupInstrument(_ context.Context, source, code string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.bySource[source] {
		if m.SourceCode == code {
			return m.InstrumentID, nil
		}
	}
	return 0, fmt.Errorf("%s/%s: %w", source, code, repository.ErrNotFound)
}

func (s *MemorySymbologyStore) LookupCode(_ context.Context, instrumentID int64, source string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.bySource[source] {
		if m.InstrumentID == instrumentID {
			return m.SourceCode, nil
		}
	}
	return "", fmt.Errorf("instrument %d in %s: %w", instrumentID, source, repository.ErrNotFound)
}

func (s *MemorySymbologyStore) MaxInstrumentID(_ context.Context, min, max int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var top int64
	for _, rows := range s.bySource {
		for _, m := range rows {
			if m.InstrumentID >= min && m.InstrumentID < max && m.InstrumentID > top {
				top = m.InstrumentID
			}
		}
	}
	return top, nil
}

// ReplaceSources enforces (source, source_code) uniqueness the way the SQL
// constraint does: a violating source is rejected and keeps its old rows.
func (s *MemorySymbologyStore) ReplaceSources(_ context.Context, sets map[string][]models.SymbologyMapping) (map[string]error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	failed := make(map[string]error)
	for source, rows := range sets {
		seen := make(map[string]struct{}, len(rows))
		var dup error
		for _, m := range rows {
			if m.Source != source {
				dup = fmt.Errorf("mapping for %q in %q batch", m.Source, source)
				break
			}
			if _, ok := seen[m.SourceCode]; ok {
				dup = fmt.Errorf("duplicate source_code %q", m.SourceCode)
				break
			}
			seen[m.SourceCode] = struct{}{}
		}
		if dup != nil {
			failed[source] = dup
			continue
		}
		s.bySource[source] = append([]models.SymbologyMapping(nil), rows...)
	}
	return failed, nil
}

type priceKey struct {
	instrumentID int64
	vendorID     int32
	date         int64
}

// MemoryPriceStore mirrors the ReplacingMergeTree tables: a row with the same
// (instrument, vendor, date) replaces the previous one.
type MemoryPriceStore struct {
	mu          sync.RWMutex
	consensusID int32
	tables      map[models.PriceTable]map[priceKey]models.PriceBar
}

// NewMemoryPriceStore creates an empty store. consensusID rows are ignored by
// InstrumentIDs.
func NewMemoryPriceStore(consensusID int32) *MemoryPriceStore {
	return &MemoryPriceStore{
		consensusID: consensusID,
		tables:      make(map[models.PriceTable]map[priceKey]models.PriceBar),
	}
}

func (s *MemoryPriceStore) table(t models.PriceTable) map[priceKey]models.PriceBar {
	tbl, ok := s.tables[t]
	if !ok {
		tbl = make(map[priceKey]models.PriceBar)
		s.tables[t] = tbl
	}
	return tbl
}

func (s *MemoryPriceStore) Observations(_ context.Context, table models.PriceTable, instrumentID int64, after *time.Time) ([]models.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PriceBar
	for k, b := range s.tables[table] {
		if k.instrumentID != instrumentID {
			continue
		}
		if after != nil && !b.Date.After(*after) {
			continue
		}
		out = append(out, b)
	}
	sortBars(out)
	return out, nil
}

func (s *MemoryPriceStore) Query(_ context.Context, table models.PriceTable, instrumentID int64, vendorID int32, from, to time.Time) ([]models.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PriceBar
	for k, b := range s.tables[table] {
		if k.instrumentID != instrumentID || k.vendorID != vendorID {
			continue
		}
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	sortBars(out)
	return out, nil
}

func (s *MemoryPriceStore) InstrumentIDs(_ context.Context, table models.PriceTable) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{})
	for k := range s.tables[table] {
		if k.vendorID == s.consensusID {
			continue
		}
		seen[k.instrumentID] = struct{}{}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MemoryPriceStore) LatestDate(_ context.Context, table models.PriceTable, vendorID int32, instrumentID int64) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	found := false
	for k, b := range s.tables[table] {
		if k.instrumentID == instrumentID && k.vendorID == vendorID && b.Date.After(latest) {
			latest, found = b.Date, true
		}
	}
	return latest, found, nil
}

func (s *MemoryPriceStore) DeleteAfter(_ context.Context, table models.PriceTable, vendorID int32, instrumentID int64, after *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl := s.tables[table]
	for k, b := range tbl {
		if k.instrumentID != instrumentID || k.vendorID != vendorID {
			continue
		}
		if after == nil || b.Date.After(*after) {
			delete(tbl, k)
		}
	}
	return nil
}

func (s *MemoryPriceStore) DeleteFrom(_ context.Context, table models.PriceTable, vendorID int32, instrumentID int64, from time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl := s.tables[table]
	for k, b := range tbl {
		if k.instrumentID == instrumentID && k.vendorID == vendorID && !b.Date.Before(from) {
			delete(tbl, k)
		}
	}
	return nil
}

func (s *MemoryPriceStore) Insert(_ context.Context, table models.PriceTable, bars []models.PriceBar) error {
	if !table.IsValid() {
		return fmt.Errorf("unknown price table %q", table)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl := s.table(table)
	for _, b := range bars {
		tbl[priceKey{instrumentID: b.InstrumentID, vendorID: b.VendorID, date: b.Date.UnixNano()}] = b
	}
	return nil
}

// Len returns the number of rows in a table, for tests and diagnostics.
func (s *MemoryPriceStore) Len(table models.PriceTable) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

func sortBars(bars []models.PriceBar) {
	sort.Slice(bars, func(i, j int) bool {
		if !bars[i].Date.Equal(bars[j].Date) {
			return bars[i].Date.Before(bars[j].Date)
		}
		return bars[i].VendorID < bars[j].VendorID
	})
}

var (
	_ repository.ReferenceStore = (*MemoryReferenceStore)(nil)
	_ repository.VendorStore    = (*MemoryVendorStore)(nil)
	_ repository.SymbologyStore = (*MemorySymbologyStore)(nil)
	_ repository.PriceStore     = (*MemoryPriceStore)(nil)
)
