package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SecMaster/internal/domain/models"
	domrepo "SecMaster/internal/domain/repository"
	"SecMaster/internal/usecase/ingest"
	"SecMaster/internal/usecase/validator"
	applogger "SecMaster/pkg/logger"

	"github.com/google/uuid"
)

// SymbologyRebuilder is the symbology phase.
type SymbologyRebuilder interface {
	Rebuild(ctx context.Context, sources []string) (*models.PhaseSummary, error)
}

// PriceIngestor is the ingestion phase.
type PriceIngestor interface {
	Run(ctx context.Context, req ingest.IngestRequest) (*models.PhaseSummary, error)
}

// ConsensusValidator is the validation phase.
type ConsensusValidator interface {
	Run(ctx context.Context, req validator.Request) (*models.PhaseSummary, error)
}

// Plan selects what one pipeline run covers. Empty Phases runs all three.
type Plan struct {
	Phases     []string
	Sources    []string
	Vendors    []string
	Tables     []models.PriceTable
	PeriodDays *int
}

func (p Plan) runs(phase string) bool {
	if len(p.Phases) == 0 {
		return true
	}
	for _, ph := range p.Phases {
		if ph == phase {
			return true
		}
	}
	return false
}

// Pipeline runs symbology, ingestion and validation strictly in that order.
type Pipeline struct {
	symbology SymbologyRebuilder
	ingestor  PriceIngestor
	validator ConsensusValidator
	publisher domrepo.Publisher
	log       *applogger.Logger
}

func NewPipeline(s SymbologyRebuilder, i PriceIngestor, v ConsensusValidator, pub domrepo.Publisher, l *applogger.Logger) *Pipeline {
	if l == nil {
		l = applogger.NewNop()
	}
	return &Pipeline{symbology: s, ingestor: i, validator: v, publisher: pub, log: l}
}

// Run executes the plan and returns one summary per phase run. A phase with
// nothing to do is logged and the next one still runs; any other phase error
// stops the pipeline so later phases never see half-built inputs.
func (p *Pipeline) Run(ctx context.Context, plan Plan) ([]*models.PhaseSummary, error) {
	if len(plan.Tables) == 0 {
		plan.Tables = []models.PriceTable{models.TableDaily}
	}
	p.log.Info("pipeline started",
		applogger.Any("phases", plan.Phases),
		applogger.Any("vendors", plan.Vendors),
		applogger.Any("tables", plan.Tables))
	var out []*models.PhaseSummary

	if plan.runs(models.PhaseSymbology) {
		s, err := p.symbology.Rebuild(ctx, plan.Sources)
		if err = p.complete(ctx, models.PhaseSymbology, s, err); err != nil {
			return out, err
		}
		out = appendSummary(out, s)
	}

	if plan.runs(models.PhaseIngest) {
		var parts []*models.PhaseSummary
		for _, vendor := range plan.Vendors {
			for _, table := range plan.Tables {
				s, err := p.ingestor.Run(ctx, ingest.IngestRequest{Vendor: vendor, Table: table})
				if err != nil && !errors.Is(err, domrepo.ErrNoData) {
					return out, fmt.Errorf("ingest %s/%s: %w", vendor, table, err)
				}
				if err != nil {
					p.log.Warn("nothing to ingest", applogger.String("vendor", vendor), applogger.String("table", string(table)))
				}
				parts = appendSummary(parts, s)
			}
		}
		s := mergeSummaries(models.PhaseIngest, parts)
		if err := p.complete(ctx, models.PhaseIngest, s, nil); err != nil {
			return out, err
		}
		out = append(out, s)
	}

	if plan.runs(models.PhaseValidate) {
		var parts []*models.PhaseSummary
		for _, table := range plan.Tables {
			s, err := p.validator.Run(ctx, validator.Request{Table: table, PeriodDays: plan.PeriodDays})
			if err != nil && !errors.Is(err, domrepo.ErrNoData) {
				return out, fmt.Errorf("validate %s: %w", table, err)
			}
			parts = appendSummary(parts, s)
		}
		s := mergeSummaries(models.PhaseValidate, parts)
		if err := p.complete(ctx, models.PhaseValidate, s, nil); err != nil {
			return out, err
		}
		out = append(out, s)
	}
	return out, nil
}

// complete logs and publishes a finished phase. ErrNoData is not a failure.
func (p *Pipeline) complete(ctx context.Context, phase string, s *models.PhaseSummary, err error) error {
	if err != nil && !errors.Is(err, domrepo.ErrNoData) {
		p.log.Error("phase failed", applogger.String("phase", phase), applogger.Error(err))
		return fmt.Errorf("%s phase: %w", phase, err)
	}
	if err != nil {
		p.log.Warn("phase had nothing to do", applogger.String("phase", phase), applogger.Error(err))
		return nil
	}
	if s == nil {
		return nil
	}
	p.log.Info("phase completed", applogger.String("phase", phase), applogger.String("summary", s.String()))
	if perr := p.publisher.PublishEvent(ctx, models.DomainEvent{
		ID:         uuid.NewString(),
		Type:       models.EventPhaseCompleted,
		OccurredAt: time.Now().UTC(),
		Payload:    s,
	}); perr != nil {
		p.log.Warn("publish phase event", applogger.String("phase", phase), applogger.Error(perr))
	}
	return nil
}

func appendSummary(out []*models.PhaseSummary, s *models.PhaseSummary) []*models.PhaseSummary {
	if s == nil {
		return out
	}
	return append(out, s)
}

func mergeSummaries(phase string, parts []*models.PhaseSummary) *models.PhaseSummary {
	m := models.NewPhaseSummary(phase, uuid.NewString())
	if len(parts) > 0 {
		m.StartedAt = parts[0].StartedAt
	}
	for _, s := range parts {
		m.Processed += s.Processed
		m.Skipped += s.Skipped
		m.Failed += s.Failed
		m.Rows += s.Rows
		m.Duration += s.Duration
		for k, v := range s.Details {
			m.Add(k, v)
		}
	}
	return m
}
