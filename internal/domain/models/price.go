package models

import "time"

// PriceTable selects the granularity of a price store table.
type PriceTable string

const (
	TableDaily  PriceTable = "daily"
	TableMinute PriceTable = "minute"
)

// IsValid reports whether t is a supported table.
func (t PriceTable) IsValid() bool {
	switch t {
	case TableDaily, TableMinute:
		return true
	default:
		return false
	}
}

// NormalizePriceTable converts raw input to a supported table, defaulting to daily.
func NormalizePriceTable(s string) PriceTable {
	t := PriceTable(s)
	if t.IsValid() {
		return t
	}
	return TableDaily
}

// PriceBar is one OHLCV record for (instrument, vendor, date). Consensus rows
// share the shape and carry the reserved consensus vendor id.
type PriceBar struct {
	InstrumentID int64     `json:"instrument_id"`
	VendorID     int32     `json:"vendor_id"`
	SourceCode   string    `json:"source_code,omitempty"`
	Date         time.Time `json:"date"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
	ExDividend   float64   `json:"ex_dividend,omitempty"`
	SplitRatio   float64   `json:"split_ratio,omitempty"`
	AdjOpen      float64   `json:"adj_open,omitempty"`
	AdjHigh      float64   `json:"adj_high,omitempty"`
	AdjLow       float64   `json:"adj_low,omitempty"`
	AdjClose     float64   `json:"adj_close,omitempty"`
	AdjVolume    float64   `json:"adj_volume,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Vendor is a price source and its voting weight.
type Vendor struct {
	ID              int32   `json:"id"`
	Name            string  `json:"name"`
	Source          string  `json:"source,omitempty"`
	ConsensusWeight float64 `json:"consensus_weight"`
	HasWeight       bool    `json:"has_weight"`
}

// VendorPriceBatch is the push-ingestion payload: raw bars for one vendor code.
type VendorPriceBatch struct {
	Vendor     string     `json:"vendor"`
	Table      PriceTable `json:"table"`
	SourceCode string     `json:"source_code"`
	Bars       []PriceBar `json:"bars"`
}
