package validator

import (
	"math"
	"time"

	"SecMaster/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Weights maps vendor id to consensus weight. Vendors absent from the map do
// not vote.
type Weights map[int32]float64

// tally accumulates weight per distinct quantized value of one field. Values
// remember the order they were first reported in.
type tally struct {
	order   []string
	values  map[string]decimal.Decimal
	weights map[string]float64
}

func newTally() *tally {
	return &tally{values: make(map[string]decimal.Decimal), weights: make(map[string]float64)}
}

func (t *tally) add(v decimal.Decimal, w float64) {
	k := v.String()
	if _, ok := t.weights[k]; !ok {
		t.order = append(t.order, k)
		t.values[k] = v
	}
	t.weights[k] += w
}

// winner returns the value with the greatest accumulated weight. A later
// value must beat the leader strictly, so ties go to the earliest reported.
func (t *tally) winner() (decimal.Decimal, bool) {
	if len(t.order) == 0 {
		return decimal.Decimal{}, false
	}
	best := t.order[0]
	for _, k := range t.order[1:] {
		if t.weights[k] > t.weights[best] {
			best = k
		}
	}
	return t.values[best], true
}

type field int

const (
	fieldOpen field = iota
	fieldHigh
	fieldLow
	fieldClose
	fieldVolume
	fieldCount
)

func fieldValue(b models.PriceBar, f field) float64 {
	switch f {
	case fieldOpen:
		return b.Open
	case fieldHigh:
		return b.High
	case fieldLow:
		return b.Low
	case fieldClose:
		return b.Close
	default:
		return b.Volume
	}
}

func setField(b *models.PriceBar, f field, v float64) {
	switch f {
	case fieldOpen:
		b.Open = v
	case fieldHigh:
		b.High = v
	case fieldLow:
		b.Low = v
	case fieldClose:
		b.Close = v
	default:
		b.Volume = v
	}
}

// Consensus votes one consensus bar per date. bars must be sorted by date
// then vendor id; that order decides ties. Bars from vendors without a
// weight are ignored, as are NaN and infinite values. A date where some
// field is left without a voter yields no row.
func Consensus(bars []models.PriceBar, weights Weights, precision int32, instrumentID int64, consensusID int32, now time.Time) []models.PriceBar {
	var out []models.PriceBar
	for start := 0; start < len(bars); {
		end := start
		for end < len(bars) && bars[end].Date.Equal(bars[start].Date) {
			end++
		}
		if row, ok := voteDate(bars[start:end], weights, precision); ok {
			row.InstrumentID = instrumentID
			row.VendorID = consensusID
			row.Date = bars[start].Date
			row.UpdatedAt = now
			out = append(out, row)
		}
		start = end
	}
	return out
}

func voteDate(bars []models.PriceBar, weights Weights, precision int32) (models.PriceBar, bool) {
	var tallies [fieldCount]*tally
	for f := range tallies {
		tallies[f] = newTally()
	}
	for _, b := range bars {
		w, ok := weights[b.VendorID]
		if !ok {
			continue
		}
		for f := field(0); f < fieldCount; f++ {
			x := fieldValue(b, f)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				continue
			}
			tallies[f].add(decimal.NewFromFloat(x).Round(precision), w)
		}
	}

	// Every field needs at least one finite weighted observation.
	var row models.PriceBar
	for f := field(0); f < fieldCount; f++ {
		v, ok := tallies[f].winner()
		if !ok {
			return models.PriceBar{}, false
		}
		setField(&row, f, v.InexactFloat64())
	}
	return row, true
}
