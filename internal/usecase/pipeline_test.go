package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"SecMaster/internal/domain/models"
	domrepo "SecMaster/internal/domain/repository"
	"SecMaster/internal/repository"
	"SecMaster/internal/usecase/ingest"
	"SecMaster/internal/usecase/validator"
)

type recorder struct {
	calls []string
}

type fakeSymbology struct {
	*recorder
	err error
}

func (f fakeSymbology) Rebuild(_ context.Context, sources []string) (*models.PhaseSummary, error) {
	f.calls = append(f.calls, "symbology")
	if f.err != nil {
		return nil, f.err
	}
	return &models.PhaseSummary{Phase: models.PhaseSymbology, Processed: len(sources)}, nil
}

type fakeIngest struct {
	*recorder
	noData map[string]bool
}

func (f fakeIngest) Run(_ context.Context, req ingest.IngestRequest) (*models.PhaseSummary, error) {
	f.calls = append(f.calls, "ingest:"+req.Vendor+":"+string(req.Table))
	if f.noData[req.Vendor] {
		return nil, domrepo.ErrNoData
	}
	return &models.PhaseSummary{Phase: models.PhaseIngest, Processed: 1, Rows: 10}, nil
}

type fakeValidate struct {
	*recorder
	period *int
}

func (f *fakeValidate) Run(_ context.Context, req validator.Request) (*models.PhaseSummary, error) {
	f.calls = append(f.calls, "validate:"+string(req.Table))
	f.period = req.PeriodDays
	return &models.PhaseSummary{Phase: models.PhaseValidate, Processed: 2, Rows: 5}, nil
}

func TestPipelineRunsPhasesInOrder(t *testing.T) {
	rec := &recorder{}
	pub := &repository.RecordingPublisher{}
	val := &fakeValidate{recorder: rec}
	p := NewPipeline(fakeSymbology{recorder: rec}, fakeIngest{recorder: rec, noData: map[string]bool{"google": true}}, val, pub, nil)

	period := 30
	out, err := p.Run(context.Background(), Plan{
		Sources:    []string{"yahoo", "tsid"},
		Vendors:    []string{"yahoo", "google"},
		Tables:     []models.PriceTable{models.TableDaily},
		PeriodDays: &period,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"symbology", "ingest:yahoo:daily", "ingest:google:daily", "validate:daily"}
	if len(rec.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", rec.calls, want)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, rec.calls[i], want[i])
		}
	}
	if len(out) != 3 {
		t.Fatalf("summaries = %d, want 3", len(out))
	}
	if out[0].Processed != 2 || out[1].Rows != 10 || out[2].Rows != 5 {
		t.Errorf("summaries = %v %v %v", out[0], out[1], out[2])
	}
	if val.period == nil || *val.period != 30 {
		t.Error("period not forwarded to validator")
	}
	if n := len(pub.Events(models.EventPhaseCompleted)); n != 3 {
		t.Errorf("phase events = %d, want 3", n)
	}
}

func TestPipelineStopsOnPhaseFailure(t *testing.T) {
	rec := &recorder{}
	p := NewPipeline(fakeSymbology{recorder: rec, err: domrepo.ErrRebuildInProgress}, fakeIngest{recorder: rec}, &fakeValidate{recorder: rec}, repository.NopPublisher{}, nil)

	_, err := p.Run(context.Background(), Plan{Vendors: []string{"yahoo"}})
	if !errors.Is(err, domrepo.ErrRebuildInProgress) {
		t.Fatalf("expected ErrRebuildInProgress, got %v", err)
	}
	if len(rec.calls) != 1 {
		t.Errorf("later phases ran: %v", rec.calls)
	}
}

func TestPipelineSelectedPhases(t *testing.T) {
	rec := &recorder{}
	p := NewPipeline(fakeSymbology{recorder: rec, err: domrepo.ErrNoData}, fakeIngest{recorder: rec}, &fakeValidate{recorder: rec}, repository.NopPublisher{}, nil)

	out, err := p.Run(context.Background(), Plan{
		Phases: []string{models.PhaseSymbology, models.PhaseValidate},
		Tables: []models.PriceTable{models.TableDaily, models.TableMinute},
	})
	if err != nil {
		t.Fatalf("empty reference data must not fail the run: %v", err)
	}
	if len(out) != 1 || out[0].Processed != 4 {
		t.Errorf("summaries = %v", out)
	}
	for _, c := range rec.calls {
		if c == "ingest:yahoo:daily" {
			t.Error("ingest phase should be skipped")
		}
	}
}

func TestConsensusGetPrices(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryPriceStore(1000)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var bars []models.PriceBar
	for i := 0; i < 5; i++ {
		bars = append(bars, models.PriceBar{InstrumentID: 7, VendorID: 1000, Date: base.AddDate(0, 0, i), Close: float64(i)})
	}
	bars = append(bars, models.PriceBar{InstrumentID: 7, VendorID: 2, Date: base, Close: 99})
	_ = store.Insert(ctx, models.TableDaily, bars)
	uc := NewConsensusUseCase(store, 1000)

	tests := []struct {
		name    string
		params  GetPricesParams
		count   int
		wantErr error
	}{
		{"consensus by default", GetPricesParams{InstrumentID: 7, From: base, To: base.AddDate(0, 0, 10)}, 5, nil},
		{"explicit vendor", GetPricesParams{InstrumentID: 7, VendorID: 2, From: base, To: base}, 1, nil},
		{"limit keeps latest", GetPricesParams{InstrumentID: 7, From: base, To: base.AddDate(0, 0, 10), Limit: 2}, 2, nil},
		{"empty range", GetPricesParams{InstrumentID: 8, From: base, To: base}, 0, domrepo.ErrNoData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := uc.GetPrices(ctx, tt.params)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetPrices: %v", err)
			}
			if res.Count != tt.count {
				t.Errorf("Count = %d, want %d", res.Count, tt.count)
			}
		})
	}

	res, _ := uc.GetPrices(ctx, GetPricesParams{InstrumentID: 7, From: base, To: base.AddDate(0, 0, 10), Limit: 2})
	if res.Bars[1].Close != 4 {
		t.Errorf("limit should keep the latest rows, got %+v", res.Bars)
	}
	if _, err := uc.GetPrices(ctx, GetPricesParams{InstrumentID: 7, From: base.AddDate(0, 0, 1), To: base}); err == nil {
		t.Error("inverted range should fail")
	}
}
