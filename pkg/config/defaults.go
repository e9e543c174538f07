package config

import (
	"github.com/creasty/defaults"
)

// Allow-list names shipped with the default configuration.
const (
	AllowListUSMain         = "us_main"
	AllowListUSCanadaLondon = "us_canada_london"
)

var usMainExchanges = []string{
	"AMEX",
	"NYSE",
	"BATS Global Markets",
	"Nasdaq Capital Market",
	"Nasdaq Global Market",
	"Nasdaq Global Select",
	"NYSE ARCA",
}

// DefaultAllowLists returns the exchange allow-lists used when none are configured.
func DefaultAllowLists() map[string][]string {
	wide := append([]string{}, usMainExchanges...)
	wide = append(wide, "LSE", "TSX", "VSE", "OTC Markets Pink Sheets")
	return map[string][]string{
		AllowListUSMain:         append([]string{}, usMainExchanges...),
		AllowListUSCanadaLondon: wide,
	}
}

// DefaultExchanges returns the canonical exchange table. The codes map is
// keyed by vendor column: goog, yahoo, tsid, csi.
func DefaultExchanges() []ExchangeConfig {
	return []ExchangeConfig{
		{Code: "AMEX", Name: "NYSE MKT", Country: "USA", Currency: "USD",
			Codes: map[string]string{"goog": "NYSEMKT", "tsid": "AMEX", "csi": "AMEX"}},
		{Code: "NYSE", Name: "New York Stock Exchange", Country: "USA", Currency: "USD",
			Codes: map[string]string{"goog": "NYSE", "tsid": "NYSE", "csi": "NYSE"}},
		{Code: "NYSEARCA", Name: "NYSE Arca", Country: "USA", Currency: "USD",
			Codes: map[string]string{"goog": "NYSEARCA", "tsid": "ARCA", "csi": "ARCA"}},
		{Code: "BATS", Name: "BATS Global Markets", Country: "USA", Currency: "USD",
			Codes: map[string]string{"goog": "BATS", "tsid": "BATS", "csi": "BATS"}},
		{Code: "NASDAQGS", Name: "Nasdaq Global Select", Country: "USA", Currency: "USD",
			Codes: map[string]string{"goog": "NASDAQ", "tsid": "Q", "csi": "NASDAQ"}},
		{Code: "NASDAQGM", Name: "Nasdaq Global Market", Country: "USA", Currency: "USD",
			Codes: map[string]string{"goog": "NASDAQ", "tsid": "Q", "csi": "NASDAQ"}},
		{Code: "NASDAQCM", Name: "Nasdaq Capital Market", Country: "USA", Currency: "USD",
			Codes: map[string]string{"goog": "NASDAQ", "tsid": "Q", "csi": "NASDAQ"}},
		{Code: "LSE", Name: "London Stock Exchange", Country: "GBR", Currency: "GBP",
			Codes: map[string]string{"goog": "LON", "yahoo": "L", "tsid": "LON", "csi": "LSE"}},
		{Code: "TSX", Name: "Toronto Stock Exchange", Country: "CAN", Currency: "CAD",
			Codes: map[string]string{"goog": "TSE", "yahoo": "TO", "tsid": "TSX", "csi": "TSX"}},
		{Code: "VSE", Name: "TSX Venture Exchange", Country: "CAN", Currency: "CAD",
			Codes: map[string]string{"goog": "CVE", "yahoo": "V", "tsid": "CVE", "csi": "VSE"}},
		{Code: "OTC", Name: "OTC Markets Pink Sheets", Country: "USA", Currency: "USD",
			Codes: map[string]string{"goog": "OTCMKTS", "yahoo": "PK", "tsid": "OTC", "csi": "OTC"}},
	}
}

// DefaultSuffixes is the country-suffix table for Yahoo-style codes.
func DefaultSuffixes() []SuffixConfig {
	out := []SuffixConfig{
		{Exchange: "LSE", Suffix: ".L"},
		{Exchange: "TSX", Suffix: ".TO"},
		{Exchange: "VSE", Suffix: ".V"},
		{ChildExchange: "OTC Markets Pink Sheets", Suffix: ".PK"},
		{Exchange: "AMEX", Suffix: ""},
		{Exchange: "NYSE", Suffix: ""},
	}
	for _, child := range usMainExchanges {
		out = append(out, SuffixConfig{ChildExchange: child, Suffix: ""})
	}
	return out
}

// DefaultSources returns the symbology sources built when none are configured.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{Name: "csi_data", Rule: "self", EntityType: "stock"},
		{Name: "tsid", Rule: "exchange_qualified", EntityType: "stock",
			AllowList: AllowListUSCanadaLondon, Template: "{ticker}.{exchange}.0", Column: "tsid",
			SpecialExchange: "NYSE ARCA", SpecialColumn: "csi", SpecialValue: "ARCA"},
		{Name: "quandl_wiki", Rule: "ticker", EntityType: "stock",
			AllowList: AllowListUSMain, RequireRecent: true, Prefix: "WIKI/"},
		{Name: "quandl_goog", Rule: "exchange_qualified", EntityType: "stock",
			AllowList: AllowListUSCanadaLondon, Template: "GOOG/{exchange}_{ticker}", Column: "goog",
			SpecialExchange: "NYSE ARCA", SpecialColumn: "csi", SpecialValue: "ARCA"},
		{Name: "seeking_alpha", Rule: "ticker", EntityType: "stock",
			AllowList: AllowListUSMain, RequireRecent: true},
		{Name: "yahoo", Rule: "country_suffix", EntityType: "stock",
			AllowList: AllowListUSCanadaLondon, RequireRecent: true},
	}
}

func (c *Config) applyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return err
	}

	for i := range c.Vendors {
		if err := defaults.Set(&c.Vendors[i]); err != nil {
			return err
		}
	}
	for i := range c.Symbology.Sources {
		if err := defaults.Set(&c.Symbology.Sources[i]); err != nil {
			return err
		}
	}

	if len(c.Exchanges) == 0 {
		c.Exchanges = DefaultExchanges()
	}
	if len(c.Symbology.AllowLists) == 0 {
		c.Symbology.AllowLists = DefaultAllowLists()
	}
	if len(c.Symbology.Sources) == 0 {
		c.Symbology.Sources = DefaultSources()
	}
	for i := range c.Symbology.Sources {
		s := &c.Symbology.Sources[i]
		if s.Rule == "country_suffix" && len(s.Suffixes) == 0 {
			s.Suffixes = DefaultSuffixes()
		}
		if s.Rule == "exchange_qualified" && s.Template == "" {
			s.Template = "{ticker}.{exchange}"
		}
	}
	if len(c.Pipeline.Tables) == 0 {
		c.Pipeline.Tables = []string{"daily"}
	}
	return nil
}
