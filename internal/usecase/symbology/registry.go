package symbology

import (
	"fmt"

	"SecMaster/internal/domain/models"
	"SecMaster/pkg/config"
)

// BuildRules turns configured sources into rules, keeping configuration order.
func BuildRules(cfg config.SymbologyConfig) ([]Rule, error) {
	rules := make([]Rule, 0, len(cfg.Sources))
	seen := make(map[string]struct{}, len(cfg.Sources))
	for _, src := range cfg.Sources {
		if _, dup := seen[src.Name]; dup {
			return nil, fmt.Errorf("source %q configured twice", src.Name)
		}
		seen[src.Name] = struct{}{}

		allow, err := allowList(cfg, src)
		if err != nil {
			return nil, err
		}
		entity := src.EntityType
		if entity == "" {
			entity = models.EntityStock
		}
		window := cfg.ActivityWindowDays

		switch src.Rule {
		case "self":
			rules = append(rules, NewSelfRule(src.Name, entity))
		case "ticker":
			rules = append(rules, NewTickerRule(src.Name, entity, src.Prefix, allow, src.RequireRecent, window))
		case "exchange_qualified":
			rules = append(rules, NewExchangeQualifiedRule(src.Name, entity, ExchangeQualifiedParams{
				Template:        src.Template,
				Column:          src.Column,
				SpecialExchange: src.SpecialExchange,
				SpecialColumn:   src.SpecialColumn,
				SpecialValue:    src.SpecialValue,
			}, allow, src.RequireRecent, window))
		case "country_suffix":
			suffixes := make([]Suffix, 0, len(src.Suffixes))
			for _, s := range src.Suffixes {
				suffixes = append(suffixes, Suffix{Exchange: s.Exchange, ChildExchange: s.ChildExchange, Suffix: s.Suffix})
			}
			rules = append(rules, NewCountrySuffixRule(src.Name, entity, suffixes, allow, src.RequireRecent, window))
		default:
			return nil, fmt.Errorf("source %q: unknown rule %q", src.Name, src.Rule)
		}
	}
	return rules, nil
}

func allowList(cfg config.SymbologyConfig, src config.SourceConfig) ([]string, error) {
	if src.AllowList == "" {
		return src.Exchanges, nil
	}
	list, ok := cfg.AllowLists[src.AllowList]
	if !ok {
		return nil, fmt.Errorf("source %q: unknown allow_list %q", src.Name, src.AllowList)
	}
	return append(append([]string(nil), list...), src.Exchanges...), nil
}

// BuildExchangeTable converts the configured exchange rows.
func BuildExchangeTable(rows []config.ExchangeConfig) *ExchangeTable {
	out := make([]models.ExchangeTranslation, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.ExchangeTranslation{
			Code:     r.Code,
			Name:     r.Name,
			Country:  r.Country,
			Currency: r.Currency,
			Codes:    r.Codes,
		})
	}
	return NewExchangeTable(out)
}

// SyntheticSources returns the names of sources that allocate synthetic ids.
func SyntheticSources(cfg config.SymbologyConfig) []string {
	var out []string
	for _, src := range cfg.Sources {
		if src.Synthetic {
			out = append(out, src.Name)
		}
	}
	return out
}
