package repository

import (
	"context"
	"time"

	"SecMaster/internal/domain/models"
)

// ReferenceStore exposes the reference-data snapshot the resolver derives from.
type ReferenceStore interface {
	ListInstruments(ctx context.Context) ([]models.Instrument, error)
	UpsertInstruments(ctx context.Context, rows []models.Instrument) error
}

// VendorStore exposes vendor metadata and consensus weights.
type VendorStore interface {
	ListVendors(ctx context.Context) ([]models.Vendor, error)
	VendorByName(ctx context.Context, name string) (models.Vendor, error)
}

// SymbologyStore persists mappings partitioned by source.
type SymbologyStore interface {
	ListMappings(ctx context.Context, source string) ([]models.SymbologyMapping, error)
	LookupInstrument(ctx context.Context, source, code string) (int64, error)
	LookupCode(ctx context.Context, instrumentID int64, source string) (string, error)
	// MaxInstrumentID returns the highest instrument id within [min, max) used
	// by any source, or 0 when the range is empty.
	MaxInstrumentID(ctx context.Context, min, max int64) (int64, error)
	// ReplaceSources swaps each source's full mapping set inside one
	// transaction. The returned map holds per-source failures; the error is
	// set when the transaction as a whole failed.
	ReplaceSources(ctx context.Context, sets map[string][]models.SymbologyMapping) (map[string]error, error)
}

// PriceStore holds vendor and consensus price rows.
type PriceStore interface {
	// Observations returns every row for the instrument with date > after
	// (all history when after is nil), sorted by date then vendor id.
	Observations(ctx context.Context, table models.PriceTable, instrumentID int64, after *time.Time) ([]models.PriceBar, error)
	Query(ctx context.Context, table models.PriceTable, instrumentID int64, vendorID int32, from, to time.Time) ([]models.PriceBar, error)
	InstrumentIDs(ctx context.Context, table models.PriceTable) ([]int64, error)
	LatestDate(ctx context.Context, table models.PriceTable, vendorID int32, instrumentID int64) (time.Time, bool, error)
	// DeleteAfter removes rows with date > after, or all rows when after is nil.
	DeleteAfter(ctx context.Context, table models.PriceTable, vendorID int32, instrumentID int64, after *time.Time) error
	// DeleteFrom removes rows with date >= from.
	DeleteFrom(ctx context.Context, table models.PriceTable, vendorID int32, instrumentID int64, from time.Time) error
	Insert(ctx context.Context, table models.PriceTable, bars []models.PriceBar) error
}

// Publisher emits domain events.
type Publisher interface {
	PublishEvent(ctx context.Context, ev models.DomainEvent) error
	Close() error
}

// Metrics records phase level counters.
type Metrics interface {
	RecordPhaseItems(phase, outcome string, n int)
	RecordPhaseDuration(phase string, seconds float64)
	RecordRows(table, vendor string, n int)
	RecordDeleteRetry(table string)
	RecordFetch(vendor string, seconds float64, err error)
}

// PriceFetcher downloads a vendor's time series for one code.
type PriceFetcher interface {
	FetchVendorPrices(ctx context.Context, vendor, code string, since *time.Time) ([]models.PriceBar, error)
}

// CodeLister lists every code a source publishes, including codes with no
// reference-data counterpart.
type CodeLister interface {
	ListCodes(ctx context.Context, source string) ([]string, error)
}

// VendorSeeder writes the configured vendor table at startup.
type VendorSeeder interface {
	SeedVendors(ctx context.Context, vendors []models.Vendor) error
}
