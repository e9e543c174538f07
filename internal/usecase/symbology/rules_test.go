package symbology

import (
	"testing"
	"time"

	"SecMaster/internal/domain/models"
	"SecMaster/pkg/config"
)

var testNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func testExchanges() *ExchangeTable {
	return BuildExchangeTable(config.DefaultExchanges())
}

func TestTickerRuleScenario(t *testing.T) {
	rule := NewTickerRule("vendor_ticker_source", models.EntityStock, "", []string{"NYSE"}, false, 730)
	inst := models.Instrument{ID: 101, Ticker: "BRK.B", Exchange: "NYSE", Active: true}

	if !rule.Eligible(inst, testNow) {
		t.Fatal("NYSE instrument should be eligible")
	}
	code, ok, reason := rule.Derive(inst, testExchanges())
	if !ok {
		t.Fatalf("Derive failed: %s", reason)
	}
	if code != "BRK_B" {
		t.Errorf("code = %q, want BRK_B", code)
	}
}

func TestTickerRulePrefix(t *testing.T) {
	rule := NewTickerRule("quandl_wiki", models.EntityStock, "WIKI/", nil, false, 730)
	code, ok, _ := rule.Derive(models.Instrument{ID: 1, Ticker: "BF-B"}, testExchanges())
	if !ok || code != "WIKI/BF_B" {
		t.Errorf("code = %q ok=%v, want WIKI/BF_B", code, ok)
	}
	if _, ok, reason := rule.Derive(models.Instrument{ID: 2}, testExchanges()); ok || reason != ReasonEmptyTicker {
		t.Errorf("empty ticker: ok=%v reason=%q", ok, reason)
	}
}

func TestEligibility(t *testing.T) {
	e := newEligibility([]string{"NYSE", "Nasdaq Global Select"}, true, 730)
	tests := []struct {
		name string
		inst models.Instrument
		want bool
	}{
		{"primary allowed active", models.Instrument{Exchange: "NYSE", Active: true}, true},
		{"child allowed", models.Instrument{Exchange: "NASDAQ", ChildExchange: "Nasdaq Global Select", Active: true}, true},
		{"neither allowed", models.Instrument{Exchange: "LSE", Active: true}, false},
		{"inactive recent", models.Instrument{Exchange: "NYSE", EndDate: testNow.AddDate(-1, 0, 0)}, true},
		{"inactive stale", models.Instrument{Exchange: "NYSE", EndDate: testNow.AddDate(0, 0, -731)}, false},
		{"inactive no end date", models.Instrument{Exchange: "NYSE"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Eligible(tt.inst, testNow); got != tt.want {
				t.Errorf("Eligible = %v, want %v", got, tt.want)
			}
		})
	}
}

func tsidRule() *ExchangeQualifiedRule {
	return NewExchangeQualifiedRule("tsid", models.EntityStock, ExchangeQualifiedParams{
		Template:        "{ticker}.{exchange}.0",
		Column:          "tsid",
		SpecialExchange: "NYSE ARCA",
		SpecialColumn:   "csi",
		SpecialValue:    "ARCA",
	}, nil, false, 730)
}

func TestExchangeQualifiedFallbackOrder(t *testing.T) {
	rule := tsidRule()
	ex := testExchanges()

	tests := []struct {
		name string
		inst models.Instrument
		want string
	}{
		{
			name: "special child exchange uses marker column",
			inst: models.Instrument{Ticker: "SPY", Exchange: "NYSE", ChildExchange: "NYSE ARCA"},
			want: "SPY.ARCA.0",
		},
		{
			name: "child exchange by name wins over primary",
			inst: models.Instrument{Ticker: "AAPL", Exchange: "NYSE", ChildExchange: "Nasdaq Global Select"},
			want: "AAPL.Q.0",
		},
		{
			name: "child exchange by code wins over primary",
			inst: models.Instrument{Ticker: "X", Exchange: "NYSE", ChildExchange: "AMEX"},
			want: "X.AMEX.0",
		},
		{
			name: "primary with normalized ticker",
			inst: models.Instrument{Ticker: "BRK.B", Exchange: "NYSE"},
			want: "BRK_B.NYSE.0",
		},
		{
			name: "primary only",
			inst: models.Instrument{Ticker: "RY", Exchange: "TSX"},
			want: "RY.TSX.0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok, reason := rule.Derive(tt.inst, ex)
			if !ok {
				t.Fatalf("Derive failed: %s", reason)
			}
			if code != tt.want {
				t.Errorf("code = %q, want %q", code, tt.want)
			}
		})
	}
}

func TestExchangeQualifiedSkips(t *testing.T) {
	ex := testExchanges()
	if _, ok, reason := tsidRule().Derive(models.Instrument{Ticker: "A", Exchange: "MOON"}, ex); ok || reason != ReasonUnknownExchange {
		t.Errorf("unknown exchange: ok=%v reason=%q", ok, reason)
	}

	unknownChild := models.Instrument{Ticker: "ABC", Exchange: "NYSE", ChildExchange: "Unlisted Venue"}
	if code, ok, reason := tsidRule().Derive(unknownChild, ex); ok || reason != ReasonUnknownExchange {
		t.Errorf("unknown child exchange: code=%q ok=%v reason=%q", code, ok, reason)
	}

	noMarker := NewExchangeQualifiedRule("tsid", models.EntityStock, ExchangeQualifiedParams{
		Template:        "{ticker}.{exchange}.0",
		Column:          "tsid",
		SpecialExchange: "NYSE ARCA",
		SpecialColumn:   "csi",
		SpecialValue:    "NOT-A-CODE",
	}, nil, false, 730)
	special := models.Instrument{Ticker: "SPY", Exchange: "NYSE", ChildExchange: "NYSE ARCA"}
	if code, ok, reason := noMarker.Derive(special, ex); ok || reason != ReasonUnknownExchange {
		t.Errorf("missing marker row: code=%q ok=%v reason=%q", code, ok, reason)
	}

	yahooCol := NewExchangeQualifiedRule("y", models.EntityStock, ExchangeQualifiedParams{
		Template: "{ticker}.{exchange}",
		Column:   "yahoo",
	}, nil, false, 730)
	if _, ok, reason := yahooCol.Derive(models.Instrument{Ticker: "A", Exchange: "NYSE"}, ex); ok || reason != ReasonNoVendorSymbol {
		t.Errorf("missing column: ok=%v reason=%q", ok, reason)
	}
}

func TestQuandlGoogTemplate(t *testing.T) {
	rule := NewExchangeQualifiedRule("quandl_goog", models.EntityStock, ExchangeQualifiedParams{
		Template: "GOOG/{exchange}_{ticker}",
		Column:   "goog",
	}, nil, false, 730)
	code, ok, _ := rule.Derive(models.Instrument{Ticker: "VOD", Exchange: "LSE"}, testExchanges())
	if !ok || code != "GOOG/LON_VOD" {
		t.Errorf("code = %q ok=%v, want GOOG/LON_VOD", code, ok)
	}
}

func TestCountrySuffixRule(t *testing.T) {
	var suffixes []Suffix
	for _, s := range config.DefaultSuffixes() {
		suffixes = append(suffixes, Suffix{Exchange: s.Exchange, ChildExchange: s.ChildExchange, Suffix: s.Suffix})
	}
	suffixes = append(suffixes, Suffix{Exchange: "OTC", ChildExchange: "OTC Markets Pink Sheets", Suffix: ".OB"})
	rule := NewCountrySuffixRule("yahoo", models.EntityStock, suffixes, nil, false, 730)

	tests := []struct {
		name   string
		inst   models.Instrument
		want   string
		wantOK bool
	}{
		{"domestic", models.Instrument{Ticker: "BRK.B", Exchange: "NYSE"}, "BRK_B", true},
		{"london", models.Instrument{Ticker: "VOD", Exchange: "LSE"}, "VOD.L", true},
		{"toronto", models.Instrument{Ticker: "RY", Exchange: "TSX"}, "RY.TO", true},
		{"child only match", models.Instrument{Ticker: "PINK", Exchange: "NASDAQ", ChildExchange: "OTC Markets Pink Sheets"}, "PINK.PK", true},
		{"both fields most specific", models.Instrument{Ticker: "OB", Exchange: "OTC", ChildExchange: "OTC Markets Pink Sheets"}, "OB.OB", true},
		{"no match", models.Instrument{Ticker: "SAP", Exchange: "XETRA"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok, _ := rule.Derive(tt.inst, nil)
			if ok != tt.wantOK || code != tt.want {
				t.Errorf("Derive = %q, %v; want %q, %v", code, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestBuildRulesFromDefaults(t *testing.T) {
	cfg, err := config.Parse([]byte("storage:\n  type: memory\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rules, err := BuildRules(cfg.Symbology)
	if err != nil {
		t.Fatalf("BuildRules: %v", err)
	}
	if len(rules) != len(config.DefaultSources()) {
		t.Fatalf("rules = %d, want %d", len(rules), len(config.DefaultSources()))
	}
	if _, ok := rules[0].(*SelfRule); !ok {
		t.Errorf("first rule = %T, want *SelfRule", rules[0])
	}
	if rules[len(rules)-1].Source() != "yahoo" {
		t.Errorf("last rule = %s, want yahoo", rules[len(rules)-1].Source())
	}
}
