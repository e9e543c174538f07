package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"SecMaster/internal/domain/models"
	"SecMaster/internal/domain/repository"
	pkgkafka "SecMaster/pkg/kafka"
	applogger "SecMaster/pkg/logger"
	"SecMaster/pkg/retry"
)

// KafkaPricesHandler writes VendorPriceBatch messages through the push path.
type KafkaPricesHandler struct {
	topic    string
	ingestor *Ingestor
	log      *applogger.Logger
}

func NewKafkaPricesHandler(topic string, ingestor *Ingestor, l *applogger.Logger) *KafkaPricesHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &KafkaPricesHandler{topic: topic, ingestor: ingestor, log: l}
}

func (h *KafkaPricesHandler) Topic() string { return h.topic }

// Handle decodes one batch. Malformed payloads, unknown vendors and
// unresolved codes are permanent and go straight to the DLQ.
func (h *KafkaPricesHandler) Handle(ctx context.Context, b []byte) error {
	var batch models.VendorPriceBatch
	if err := json.Unmarshal(b, &batch); err != nil {
		return retry.Permanent(fmt.Errorf("decode price batch: %w", err))
	}
	if batch.Vendor == "" || batch.SourceCode == "" {
		return retry.Permanent(errors.New("price batch needs vendor and source_code"))
	}

	rows, err := h.ingestor.Ingest(ctx, batch.Vendor, batch.Table, batch.SourceCode, batch.Bars)
	switch {
	case err == nil:
		h.log.Debug("price batch stored",
			applogger.String("vendor", batch.Vendor),
			applogger.String("code", batch.SourceCode),
			applogger.Int("rows", rows),
		)
		return nil
	case errors.Is(err, repository.ErrNoData):
		return nil
	case errors.Is(err, repository.ErrUnresolved), errors.Is(err, repository.ErrNotFound):
		return retry.Permanent(err)
	default:
		return err
	}
}

var _ pkgkafka.MessageHandler = (*KafkaPricesHandler)(nil)
