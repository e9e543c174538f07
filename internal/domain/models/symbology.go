package models

import "time"

// Entity types stored alongside a mapping.
const (
	EntityStock     = "stock"
	EntitySynthetic = "synthetic"
)

// SymbologyMapping translates an instrument to one source's code for it.
type SymbologyMapping struct {
	InstrumentID int64     `json:"instrument_id"`
	Source       string    `json:"source"`
	SourceCode   string    `json:"source_code"`
	EntityType   string    `json:"entity_type"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
