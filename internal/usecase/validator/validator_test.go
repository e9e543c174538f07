package validator

import (
	"context"
	"errors"
	"testing"
	"time"

	"SecMaster/internal/domain/models"
	domrepo "SecMaster/internal/domain/repository"
	"SecMaster/internal/repository"
	"SecMaster/pkg/retry"
)

const consensusID int32 = 1000

var now = time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

type flakyPrices struct {
	*repository.MemoryPriceStore
	deleteFailures int
	deletes        int
}

func (f *flakyPrices) DeleteAfter(ctx context.Context, table models.PriceTable, vendorID int32, id int64, after *time.Time) error {
	f.deletes++
	if f.deletes <= f.deleteFailures {
		return errors.New("mutation timeout")
	}
	return f.MemoryPriceStore.DeleteAfter(ctx, table, vendorID, id, after)
}

func weight(w float64) models.Vendor {
	return models.Vendor{ConsensusWeight: w, HasWeight: true}
}

func testVendors() *repository.MemoryVendorStore {
	a, b, c := weight(3), weight(2), weight(4)
	a.ID, a.Name = 1, "quandl_wiki"
	b.ID, b.Name = 2, "yahoo"
	c.ID, c.Name = 3, "google"
	return repository.NewMemoryVendorStore(a, b, c,
		models.Vendor{ID: 4, Name: "unweighted"},
		models.Vendor{ID: consensusID, Name: "secmaster_consensus"},
	)
}

func testConfig() Config {
	return Config{
		Workers:       2,
		Precision:     6,
		ConsensusID:   consensusID,
		ConsensusName: "secmaster_consensus",
		DeleteRetry:   retry.Policy{MaxAttempts: 5, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond},
	}
}

func seedDays(t *testing.T, store domrepo.PriceStore, id int64, days int) {
	t.Helper()
	var bars []models.PriceBar
	for i := 0; i < days; i++ {
		date := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -i)
		bars = append(bars,
			models.PriceBar{InstrumentID: id, VendorID: 1, Date: date, Open: 10, High: 11, Low: 9, Close: 10, Volume: 1000},
			models.PriceBar{InstrumentID: id, VendorID: 2, Date: date, Open: 10, High: 11, Low: 9, Close: 10, Volume: 1000},
			models.PriceBar{InstrumentID: id, VendorID: 3, Date: date, Open: 10.5, High: 11, Low: 9, Close: 10.5, Volume: 1200},
		)
	}
	if err := store.Insert(context.Background(), models.TableDaily, bars); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func consensusRows(t *testing.T, store domrepo.PriceStore, id int64) []models.PriceBar {
	t.Helper()
	rows, err := store.Query(context.Background(), models.TableDaily, id, consensusID, time.Time{}, now.AddDate(1, 0, 0))
	if err != nil {
		t.Fatalf("query consensus: %v", err)
	}
	return rows
}

func TestRunWritesConsensus(t *testing.T) {
	ctx := context.Background()
	prices := repository.NewMemoryPriceStore(consensusID)
	seedDays(t, prices, 55, 3)
	pub := &repository.RecordingPublisher{}
	v := NewValidator(prices, testVendors(), testConfig(), WithClock(func() time.Time { return now }), WithPublisher(pub))

	summary, err := v.Run(ctx, Request{Table: models.TableDaily})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 1 || summary.Rows != 3 || summary.Failed != 0 {
		t.Errorf("summary = %s", summary)
	}
	rows := consensusRows(t, prices, 55)
	if len(rows) != 3 {
		t.Fatalf("consensus rows = %d, want 3", len(rows))
	}
	for _, r := range rows {
		if r.Close != 10 || r.Open != 10 || r.Volume != 1000 {
			t.Errorf("row = %+v, want weight-5 values", r)
		}
	}
	if n := len(pub.Events(models.EventConsensusUpdated)); n != 1 {
		t.Errorf("consensus events = %d, want 1", n)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	prices := repository.NewMemoryPriceStore(consensusID)
	seedDays(t, prices, 55, 5)
	v := NewValidator(prices, testVendors(), testConfig(), WithClock(func() time.Time { return now }))

	if _, err := v.Run(ctx, Request{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	first := consensusRows(t, prices, 55)
	total := prices.Len(models.TableDaily)

	summary, err := v.Run(ctx, Request{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.Details["replaced"] != 1 {
		t.Errorf("second run should replace prior consensus")
	}
	second := consensusRows(t, prices, 55)
	if len(first) != len(second) || prices.Len(models.TableDaily) != total {
		t.Fatalf("rows drifted: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("row %d changed: %+v -> %+v", i, first[i], second[i])
		}
	}
}

func TestRunWindowLeavesOlderConsensus(t *testing.T) {
	ctx := context.Background()
	prices := repository.NewMemoryPriceStore(consensusID)
	seedDays(t, prices, 55, 60)
	v := NewValidator(prices, testVendors(), testConfig(), WithClock(func() time.Time { return now }))

	if _, err := v.Run(ctx, Request{}); err != nil {
		t.Fatalf("full Run: %v", err)
	}
	cutoff := now.AddDate(0, 0, -30)
	old := 0
	for _, r := range consensusRows(t, prices, 55) {
		if !r.Date.After(cutoff) {
			old++
		}
	}

	// Change every vendor's price so recomputed rows differ from the old ones.
	var bumped []models.PriceBar
	obs, _ := prices.Observations(ctx, models.TableDaily, 55, nil)
	for _, b := range obs {
		if b.VendorID != consensusID {
			b.Close += 1
			bumped = append(bumped, b)
		}
	}
	_ = prices.Insert(ctx, models.TableDaily, bumped)

	period := 30
	if _, err := v.Run(ctx, Request{PeriodDays: &period}); err != nil {
		t.Fatalf("windowed Run: %v", err)
	}

	rows := consensusRows(t, prices, 55)
	if len(rows) != 60 {
		t.Fatalf("consensus rows = %d, want 60", len(rows))
	}
	oldAfter := 0
	for _, r := range rows {
		if r.Date.After(cutoff) {
			if r.Close != 11 {
				t.Errorf("%s inside window not recomputed: %v", r.Date.Format("2006-01-02"), r.Close)
			}
			continue
		}
		oldAfter++
		if r.Close != 10 {
			t.Errorf("%s outside window was touched: %v", r.Date.Format("2006-01-02"), r.Close)
		}
	}
	if oldAfter != old {
		t.Errorf("rows outside window %d -> %d", old, oldAfter)
	}
}

func TestDeleteRetries(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		wantFailed int
		wantClose  float64
	}{
		{"recovers within budget", 4, 0, 11},
		{"gives up after five attempts", 5, 1, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mem := repository.NewMemoryPriceStore(consensusID)
			seedDays(t, mem, 55, 1)
			v := NewValidator(mem, testVendors(), testConfig(), WithClock(func() time.Time { return now }))
			if _, err := v.Run(ctx, Request{}); err != nil {
				t.Fatalf("seed Run: %v", err)
			}

			obs, _ := mem.Observations(ctx, models.TableDaily, 55, nil)
			for _, b := range obs {
				if b.VendorID != consensusID {
					b.Close = 11
					_ = mem.Insert(ctx, models.TableDaily, []models.PriceBar{b})
				}
			}

			flaky := &flakyPrices{MemoryPriceStore: mem, deleteFailures: tt.failures}
			v = NewValidator(flaky, testVendors(), testConfig(), WithClock(func() time.Time { return now }))
			summary, err := v.Run(ctx, Request{})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if summary.Failed != tt.wantFailed {
				t.Errorf("Failed = %d, want %d", summary.Failed, tt.wantFailed)
			}
			rows := consensusRows(t, mem, 55)
			if len(rows) != 1 || rows[0].Close != tt.wantClose {
				t.Errorf("consensus = %+v, want close %v", rows, tt.wantClose)
			}
		})
	}
}

func TestRunNoData(t *testing.T) {
	v := NewValidator(repository.NewMemoryPriceStore(consensusID), testVendors(), testConfig())
	if _, err := v.Run(context.Background(), Request{}); !errors.Is(err, domrepo.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestValidateInstrumentSkips(t *testing.T) {
	ctx := context.Background()
	prices := repository.NewMemoryPriceStore(consensusID)
	_ = prices.Insert(ctx, models.TableDaily, []models.PriceBar{
		{InstrumentID: 8, VendorID: 4, Date: now, Close: 1},
	})
	v := NewValidator(prices, testVendors(), testConfig(), WithClock(func() time.Time { return now }))
	weights, err := v.LoadWeights(ctx)
	if err != nil {
		t.Fatalf("LoadWeights: %v", err)
	}
	if _, ok := weights[4]; ok {
		t.Fatal("unweighted vendor must not vote")
	}
	if _, ok := weights[consensusID]; ok {
		t.Fatal("consensus vendor must not vote")
	}

	if _, err := v.ValidateInstrument(ctx, models.TableDaily, 8, nil, weights); !errors.Is(err, domrepo.ErrNoData) {
		t.Errorf("only unweighted rows: expected ErrNoData, got %v", err)
	}
	if _, err := v.ValidateInstrument(ctx, models.TableDaily, 9, nil, weights); !errors.Is(err, domrepo.ErrNoData) {
		t.Errorf("no rows: expected ErrNoData, got %v", err)
	}

	summary, err := v.Run(ctx, Request{InstrumentIDs: []int64{8, 9}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Skipped != 2 || summary.Processed != 0 {
		t.Errorf("summary = %s", summary)
	}
}

func TestExcludedVendorDoesNotVote(t *testing.T) {
	ctx := context.Background()
	prices := repository.NewMemoryPriceStore(consensusID)
	seedDays(t, prices, 55, 1)
	cfg := testConfig()
	cfg.ExcludeVendors = []string{"quandl_wiki"}
	v := NewValidator(prices, testVendors(), cfg, WithClock(func() time.Time { return now }))

	if _, err := v.Run(ctx, Request{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	rows := consensusRows(t, prices, 55)
	if len(rows) != 1 || rows[0].Close != 10.5 {
		t.Errorf("without quandl_wiki google (4) beats yahoo (2): %+v", rows)
	}
}
