package models

import (
	"strconv"
	"time"
)

// Instrument is one reference-data row: a tradable entity with a stable id.
type Instrument struct {
	ID            int64     `json:"id"`
	Ticker        string    `json:"ticker"`
	Name          string    `json:"name,omitempty"`
	Exchange      string    `json:"exchange"`
	ChildExchange string    `json:"child_exchange,omitempty"`
	Active        bool      `json:"active"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	Sector        string    `json:"sector,omitempty"`
	Industry      string    `json:"industry,omitempty"`
}

// Key returns the id formatted as the reference vendor's own code.
func (i Instrument) Key() string { return strconv.FormatInt(i.ID, 10) }

// ExchangeTranslation maps a canonical exchange code to each vendor's spelling.
type ExchangeTranslation struct {
	Code     string            `json:"code" yaml:"code" validate:"required"`
	Name     string            `json:"name" yaml:"name"`
	Country  string            `json:"country,omitempty" yaml:"country"`
	Currency string            `json:"currency,omitempty" yaml:"currency"`
	Codes    map[string]string `json:"codes" yaml:"codes"`
}

// Symbol returns the exchange spelling under the given vendor column.
func (e ExchangeTranslation) Symbol(column string) (string, bool) {
	s, ok := e.Codes[column]
	return s, ok && s != ""
}
