package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"SecMaster/internal/domain/models"
	"SecMaster/internal/domain/repository"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func mapping(source, code string, id int64) models.SymbologyMapping {
	return models.SymbologyMapping{InstrumentID: id, Source: source, SourceCode: code, EntityType: models.EntityStock}
}

func TestMemorySymbologyReplaceIsolatesSources(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySymbologyStore()

	failed, err := s.ReplaceSources(ctx, map[string][]models.SymbologyMapping{
		"yahoo": {mapping("yahoo", "AAPL", 1), mapping("yahoo", "MSFT", 2)},
		"wiki":  {mapping("wiki", "WIKI/AAPL", 1)},
	})
	if err != nil || len(failed) != 0 {
		t.Fatalf("initial replace: failed=%v err=%v", failed, err)
	}

	failed, err = s.ReplaceSources(ctx, map[string][]models.SymbologyMapping{
		"yahoo": {mapping("yahoo", "AAPL", 1)},
	})
	if err != nil || len(failed) != 0 {
		t.Fatalf("second replace: failed=%v err=%v", failed, err)
	}

	yahoo, _ := s.ListMappings(ctx, "yahoo")
	wiki, _ := s.ListMappings(ctx, "wiki")
	if len(yahoo) != 1 {
		t.Errorf("yahoo rows = %d, want 1", len(yahoo))
	}
	if len(wiki) != 1 || wiki[0].SourceCode != "WIKI/AAPL" {
		t.Errorf("wiki rows changed: %+v", wiki)
	}
}

func TestMemorySymbologyRejectsDuplicateCodes(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySymbologyStore()
	_, _ = s.ReplaceSources(ctx, map[string][]models.SymbologyMapping{
		"yahoo": {mapping("yahoo", "AAPL", 1)},
	})

	failed, err := s.ReplaceSources(ctx, map[string][]models.SymbologyMapping{
		"yahoo": {mapping("yahoo", "X", 5), mapping("yahoo", "X", 6)},
		"wiki":  {mapping("wiki", "WIKI/X", 5)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failed["yahoo"] == nil {
		t.Fatalf("expected yahoo to fail")
	}
	if failed["wiki"] != nil {
		t.Fatalf("wiki should commit: %v", failed["wiki"])
	}
	id, err := s.LookupInstrument(ctx, "yahoo", "AAPL")
	if err != nil || id != 1 {
		t.Fatalf("yahoo should keep its old rows, got id=%d err=%v", id, err)
	}
}

func TestMemorySymbologyLookups(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySymbologyStore()
	_, _ = s.ReplaceSources(ctx, map[string][]models.SymbologyMapping{
		"yahoo": {mapping("yahoo", "AAPL", 1), mapping("yahoo", "ZZZ", 1_000_004)},
		"tsid":  {mapping("tsid", "QQQ.Q.0", 1_000_010)},
	})

	code, err := s.LookupCode(ctx, 1, "yahoo")
	if err != nil || code != "AAPL" {
		t.Fatalf("LookupCode = %q, %v", code, err)
	}
	if _, err := s.LookupInstrument(ctx, "yahoo", "NOPE"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	top, err := s.MaxInstrumentID(ctx, 1_000_000, 2_000_000)
	if err != nil || top != 1_000_010 {
		t.Fatalf("MaxInstrumentID = %d, %v", top, err)
	}
}

func TestMemoryPriceStoreReplacesSameKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPriceStore(1000)
	bar := models.PriceBar{InstrumentID: 55, VendorID: 1, Date: day("2024-01-02"), Close: 100}
	_ = s.Insert(ctx, models.TableDaily, []models.PriceBar{bar})
	bar.Close = 101
	_ = s.Insert(ctx, models.TableDaily, []models.PriceBar{bar})

	if got := s.Len(models.TableDaily); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
	rows, _ := s.Observations(ctx, models.TableDaily, 55, nil)
	if len(rows) != 1 || rows[0].Close != 101 {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestMemoryPriceStoreDeletesAndOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPriceStore(1000)
	_ = s.Insert(ctx, models.TableDaily, []models.PriceBar{
		{InstrumentID: 55, VendorID: 2, Date: day("2024-01-03")},
		{InstrumentID: 55, VendorID: 1, Date: day("2024-01-03")},
		{InstrumentID: 55, VendorID: 1, Date: day("2024-01-02")},
		{InstrumentID: 55, VendorID: 1000, Date: day("2024-01-02")},
		{InstrumentID: 77, VendorID: 1000, Date: day("2024-01-02")},
	})

	rows, _ := s.Observations(ctx, models.TableDaily, 55, nil)
	if len(rows) != 4 || rows[0].VendorID != 1 || rows[1].VendorID != 1000 || rows[2].VendorID != 1 || rows[3].VendorID != 2 {
		t.Fatalf("unexpected order %+v", rows)
	}

	ids, _ := s.InstrumentIDs(ctx, models.TableDaily)
	if len(ids) != 1 || ids[0] != 55 {
		t.Fatalf("InstrumentIDs = %v, want [55]", ids)
	}

	after := day("2024-01-02")
	_ = s.DeleteAfter(ctx, models.TableDaily, 1, 55, &after)
	latest, ok, _ := s.LatestDate(ctx, models.TableDaily, 1, 55)
	if !ok || !latest.Equal(after) {
		t.Fatalf("LatestDate = %v %v, want %v", latest, ok, after)
	}

	_ = s.DeleteFrom(ctx, models.TableDaily, 1, 55, day("2024-01-02"))
	if _, ok, _ := s.LatestDate(ctx, models.TableDaily, 1, 55); ok {
		t.Fatalf("vendor 1 rows should be gone")
	}
	if got := s.Len(models.TableDaily); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}
}
