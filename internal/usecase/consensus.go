package usecase

import (
	"context"
	"fmt"
	"time"

	"SecMaster/internal/domain/models"
	domrepo "SecMaster/internal/domain/repository"
)

// ConsensusUseCase reads consensus and vendor price rows.
type ConsensusUseCase struct {
	store       domrepo.PriceStore
	consensusID int32
}

func NewConsensusUseCase(store domrepo.PriceStore, consensusID int32) *ConsensusUseCase {
	return &ConsensusUseCase{store: store, consensusID: consensusID}
}

type GetPricesParams struct {
	InstrumentID int64
	Table        models.PriceTable
	// VendorID defaults to the consensus vendor.
	VendorID int32
	From     time.Time
	To       time.Time
	Limit    int
}

type GetPricesResult struct {
	InstrumentID int64             `json:"instrument_id"`
	VendorID     int32             `json:"vendor_id"`
	Table        models.PriceTable `json:"table"`
	From         time.Time         `json:"from"`
	To           time.Time         `json:"to"`
	Count        int               `json:"count"`
	Bars         []models.PriceBar `json:"bars"`
}

func (uc *ConsensusUseCase) GetPrices(ctx context.Context, p GetPricesParams) (*GetPricesResult, error) {
	if p.InstrumentID <= 0 {
		return nil, fmt.Errorf("instrument_id required")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Table == "" {
		p.Table = models.TableDaily
	}
	if !p.Table.IsValid() {
		return nil, fmt.Errorf("unknown price table %q", p.Table)
	}
	if p.VendorID == 0 {
		p.VendorID = uc.consensusID
	}
	if p.Limit <= 0 {
		p.Limit = 10000
	}
	if p.Limit > 50000 {
		p.Limit = 50000
	}

	bars, err := uc.store.Query(ctx, p.Table, p.InstrumentID, p.VendorID, p.From, p.To)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("instrument %d vendor %d: %w", p.InstrumentID, p.VendorID, domrepo.ErrNoData)
	}
	if len(bars) > p.Limit {
		bars = bars[len(bars)-p.Limit:]
	}

	return &GetPricesResult{
		InstrumentID: p.InstrumentID,
		VendorID:     p.VendorID,
		Table:        p.Table,
		From:         p.From,
		To:           p.To,
		Count:        len(bars),
		Bars:         bars,
	}, nil
}
