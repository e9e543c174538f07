package symbology

import (
	"strings"

	"SecMaster/internal/domain/models"
)

// ExchangeTable indexes exchange translations by canonical code and by
// display name.
type ExchangeTable struct {
	rows   []models.ExchangeTranslation
	byCode map[string]int
	byName map[string]int
}

// NewExchangeTable builds the lookup indexes. Later rows never shadow earlier
// ones.
func NewExchangeTable(rows []models.ExchangeTranslation) *ExchangeTable {
	t := &ExchangeTable{
		rows:   rows,
		byCode: make(map[string]int, len(rows)),
		byName: make(map[string]int, len(rows)),
	}
	for i, r := range rows {
		if _, ok := t.byCode[r.Code]; !ok {
			t.byCode[r.Code] = i
		}
		name := strings.ToLower(r.Name)
		if _, ok := t.byName[name]; !ok && name != "" {
			t.byName[name] = i
		}
	}
	return t
}

// ByCode finds a translation by canonical code.
func (t *ExchangeTable) ByCode(code string) (models.ExchangeTranslation, bool) {
	i, ok := t.byCode[code]
	if !ok {
		return models.ExchangeTranslation{}, false
	}
	return t.rows[i], true
}

// ByName finds a translation by display name, ignoring case.
func (t *ExchangeTable) ByName(name string) (models.ExchangeTranslation, bool) {
	i, ok := t.byName[strings.ToLower(name)]
	if !ok {
		return models.ExchangeTranslation{}, false
	}
	return t.rows[i], true
}

// ByColumn finds the first translation whose spelling under column equals value.
func (t *ExchangeTable) ByColumn(column, value string) (models.ExchangeTranslation, bool) {
	for _, r := range t.rows {
		if s, ok := r.Symbol(column); ok && s == value {
			return r, true
		}
	}
	return models.ExchangeTranslation{}, false
}

// Len returns the number of translations.
func (t *ExchangeTable) Len() int { return len(t.rows) }
