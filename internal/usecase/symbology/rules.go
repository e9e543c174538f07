package symbology

import (
	"strings"
	"time"

	"SecMaster/internal/domain/models"
)

// Skip reasons reported when a rule cannot derive a code.
const (
	ReasonEmptyTicker     = "empty_ticker"
	ReasonUnknownExchange = "unknown_exchange"
	ReasonNoVendorSymbol  = "no_vendor_symbol"
	ReasonNoSuffix        = "no_suffix"
)

// Rule derives one source's code for an instrument.
type Rule interface {
	Source() string
	EntityType() string
	Eligible(inst models.Instrument, now time.Time) bool
	// Derive returns the code, or ok=false with a skip reason.
	Derive(inst models.Instrument, exchanges *ExchangeTable) (code string, ok bool, reason string)
}

// eligibility filters instruments by exchange allow-list and recent activity.
type eligibility struct {
	allow         map[string]struct{}
	requireRecent bool
	windowDays    int
}

func newEligibility(allow []string, requireRecent bool, windowDays int) eligibility {
	e := eligibility{requireRecent: requireRecent, windowDays: windowDays}
	if len(allow) > 0 {
		e.allow = make(map[string]struct{}, len(allow))
		for _, x := range allow {
			e.allow[x] = struct{}{}
		}
	}
	return e
}

// Eligible holds when the primary or child exchange is allowed and, if
// required, the instrument is active or ended within the activity window.
func (e eligibility) Eligible(inst models.Instrument, now time.Time) bool {
	if e.allow != nil {
		_, primary := e.allow[inst.Exchange]
		_, child := e.allow[inst.ChildExchange]
		if !primary && !(inst.ChildExchange != "" && child) {
			return false
		}
	}
	if e.requireRecent && !inst.Active {
		if inst.EndDate.IsZero() || inst.EndDate.Before(now.AddDate(0, 0, -e.windowDays)) {
			return false
		}
	}
	return true
}

// SelfRule maps every instrument to its own id.
type SelfRule struct {
	source string
	entity string
}

func NewSelfRule(source, entity string) *SelfRule {
	return &SelfRule{source: source, entity: entity}
}

func (r *SelfRule) Source() string                             { return r.source }
func (r *SelfRule) EntityType() string                         { return r.entity }
func (r *SelfRule) Eligible(models.Instrument, time.Time) bool { return true }

func (r *SelfRule) Derive(inst models.Instrument, _ *ExchangeTable) (string, bool, string) {
	return inst.Key(), true, ""
}

// TickerRule uses the normalized ticker behind an optional prefix.
type TickerRule struct {
	eligibility
	source string
	entity string
	prefix string
}

func NewTickerRule(source, entity, prefix string, allow []string, requireRecent bool, windowDays int) *TickerRule {
	return &TickerRule{
		eligibility: newEligibility(allow, requireRecent, windowDays),
		source:      source,
		entity:      entity,
		prefix:      prefix,
	}
}

func (r *TickerRule) Source() string     { return r.source }
func (r *TickerRule) EntityType() string { return r.entity }

func (r *TickerRule) Derive(inst models.Instrument, _ *ExchangeTable) (string, bool, string) {
	ticker := NormalizeTicker(inst.Ticker)
	if ticker == "" {
		return "", false, ReasonEmptyTicker
	}
	return r.prefix + ticker, true, ""
}

// ExchangeQualifiedRule renders a template with the ticker and the vendor's
// spelling of the instrument's exchange.
type ExchangeQualifiedRule struct {
	eligibility
	source          string
	entity          string
	template        string
	column          string
	specialExchange string
	specialColumn   string
	specialValue    string
}

// ExchangeQualifiedParams configures an ExchangeQualifiedRule.
type ExchangeQualifiedParams struct {
	Template        string
	Column          string
	SpecialExchange string
	SpecialColumn   string
	SpecialValue    string
}

func NewExchangeQualifiedRule(source, entity string, p ExchangeQualifiedParams, allow []string, requireRecent bool, windowDays int) *ExchangeQualifiedRule {
	return &ExchangeQualifiedRule{
		eligibility:     newEligibility(allow, requireRecent, windowDays),
		source:          source,
		entity:          entity,
		template:        p.Template,
		column:          p.Column,
		specialExchange: p.SpecialExchange,
		specialColumn:   p.SpecialColumn,
		specialValue:    p.SpecialValue,
	}
}

func (r *ExchangeQualifiedRule) Source() string     { return r.source }
func (r *ExchangeQualifiedRule) EntityType() string { return r.entity }

func (r *ExchangeQualifiedRule) Derive(inst models.Instrument, exchanges *ExchangeTable) (string, bool, string) {
	ticker := NormalizeTicker(inst.Ticker)
	if ticker == "" {
		return "", false, ReasonEmptyTicker
	}
	row, ok := r.exchange(inst, exchanges)
	if !ok {
		return "", false, ReasonUnknownExchange
	}
	symbol, ok := row.Symbol(r.column)
	if !ok {
		return "", false, ReasonNoVendorSymbol
	}
	code := strings.NewReplacer("{ticker}", ticker, "{exchange}", symbol).Replace(r.template)
	return code, true, ""
}

// exchange resolves the translation row. The steps are exclusive: the
// special child exchange matches only by its marker column, any other child
// exchange only by code then name, and the primary exchange is consulted only
// when there is no child exchange.
func (r *ExchangeQualifiedRule) exchange(inst models.Instrument, exchanges *ExchangeTable) (models.ExchangeTranslation, bool) {
	switch {
	case r.specialExchange != "" && inst.ChildExchange == r.specialExchange:
		return exchanges.ByColumn(r.specialColumn, r.specialValue)
	case inst.ChildExchange != "":
		if row, ok := exchanges.ByCode(inst.ChildExchange); ok {
			return row, true
		}
		return exchanges.ByName(inst.ChildExchange)
	default:
		return exchanges.ByCode(inst.Exchange)
	}
}

// Suffix maps an (exchange, child exchange) pair to a country suffix. An
// empty field matches anything.
type Suffix struct {
	Exchange      string
	ChildExchange string
	Suffix        string
}

func (s Suffix) specificity() int {
	n := 0
	if s.Exchange != "" {
		n++
	}
	if s.ChildExchange != "" {
		n += 2
	}
	return n
}

func (s Suffix) matches(inst models.Instrument) bool {
	if s.Exchange == "" && s.ChildExchange == "" {
		return false
	}
	if s.Exchange != "" && s.Exchange != inst.Exchange {
		return false
	}
	if s.ChildExchange != "" && s.ChildExchange != inst.ChildExchange {
		return false
	}
	return true
}

// CountrySuffixRule appends the exchange's country suffix to the ticker.
type CountrySuffixRule struct {
	eligibility
	source   string
	entity   string
	suffixes []Suffix
}

func NewCountrySuffixRule(source, entity string, suffixes []Suffix, allow []string, requireRecent bool, windowDays int) *CountrySuffixRule {
	return &CountrySuffixRule{
		eligibility: newEligibility(allow, requireRecent, windowDays),
		source:      source,
		entity:      entity,
		suffixes:    suffixes,
	}
}

func (r *CountrySuffixRule) Source() string     { return r.source }
func (r *CountrySuffixRule) EntityType() string { return r.entity }

func (r *CountrySuffixRule) Derive(inst models.Instrument, _ *ExchangeTable) (string, bool, string) {
	ticker := NormalizeTicker(inst.Ticker)
	if ticker == "" {
		return "", false, ReasonEmptyTicker
	}
	best, found := Suffix{}, false
	for _, s := range r.suffixes {
		if !s.matches(inst) {
			continue
		}
		if !found || s.specificity() > best.specificity() {
			best, found = s, true
		}
	}
	if !found {
		return "", false, ReasonNoSuffix
	}
	return ticker + best.Suffix, true, ""
}
