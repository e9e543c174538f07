package api

import (
	"context"
	"errors"
	"time"

	"SecMaster/internal/domain/models"
	domrepo "SecMaster/internal/domain/repository"
	"SecMaster/internal/usecase"
	"SecMaster/internal/usecase/ingest"
	"SecMaster/internal/usecase/symbology"
	"SecMaster/internal/usecase/validator"
	xhttp "SecMaster/pkg/http"
	xlogger "SecMaster/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SymbologyService is the resolver surface the API exposes.
type SymbologyService interface {
	Resolve(ctx context.Context, source, code string) (int64, error)
	Translate(ctx context.Context, instrumentID int64, source string) (string, error)
	Rebuild(ctx context.Context, sources []string) (*models.PhaseSummary, error)
}

type IngestService interface {
	Run(ctx context.Context, req ingest.IngestRequest) (*models.PhaseSummary, error)
}

type ValidateService interface {
	Run(ctx context.Context, req validator.Request) (*models.PhaseSummary, error)
}

type PriceReader interface {
	GetPrices(ctx context.Context, p usecase.GetPricesParams) (*usecase.GetPricesResult, error)
}

type ResolveRequest struct {
	Source string `query:"source" validate:"required"`
	Code   string `query:"code" validate:"required"`
}

type TranslateRequest struct {
	InstrumentID int64  `query:"instrument_id" validate:"required,gt=0"`
	Source       string `query:"source" validate:"required"`
}

type RebuildRequest struct {
	Sources []string `json:"sources" validate:"omitempty,dive,required"`
}

type ConsensusRequest struct {
	InstrumentID int64  `query:"instrument_id" validate:"required,gt=0"`
	Table        string `query:"table" default:"daily" validate:"oneof=daily minute"`
	VendorID     int32  `query:"vendor_id" validate:"gte=0"`
	Limit        int    `query:"limit" validate:"gte=0,lte=50000"`
}

type ResolveResponse struct {
	Source       string `json:"source"`
	Code         string `json:"code"`
	InstrumentID int64  `json:"instrument_id"`
}

// SecMasterEchoHandler serves symbology, ingestion, validation and consensus reads.
type SecMasterEchoHandler struct {
	logger    *xlogger.Logger
	symbology SymbologyService
	ingestor  IngestService
	validator ValidateService
	prices    PriceReader
	// defaultWindow bounds consensus reads without a from parameter.
	defaultWindow time.Duration
}

func NewSecMasterEchoHandler(logger *xlogger.Logger, s SymbologyService, i IngestService, v ValidateService, p PriceReader) *SecMasterEchoHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &SecMasterEchoHandler{
		logger:        logger,
		symbology:     s,
		ingestor:      i,
		validator:     v,
		prices:        p,
		defaultWindow: 365 * 24 * time.Hour,
	}
}

func (h *SecMasterEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/symbology/resolve", h.Resolve)
	g.GET("/symbology/translate", h.Translate)
	g.POST("/symbology/rebuild", h.Rebuild)
	g.POST("/ingest", h.Ingest)
	g.POST("/validate", h.Validate)
	g.GET("/consensus", h.Consensus)
}

func (h *SecMasterEchoHandler) Resolve(c echo.Context) error {
	req := &ResolveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	id, err := h.symbology.Resolve(c.Request().Context(), req.Source, req.Code)
	if err != nil {
		return h.fail(c, "resolve", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, ResolveResponse{Source: req.Source, Code: req.Code, InstrumentID: id})
}

func (h *SecMasterEchoHandler) Translate(c echo.Context) error {
	req := &TranslateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	code, err := h.symbology.Translate(c.Request().Context(), req.InstrumentID, req.Source)
	if err != nil {
		return h.fail(c, "translate", err)
	}
	return xhttp.SuccessResponse(c, ResolveResponse{Source: req.Source, Code: code, InstrumentID: req.InstrumentID})
}

func (h *SecMasterEchoHandler) Rebuild(c echo.Context) error {
	req := &RebuildRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	summary, err := h.symbology.Rebuild(c.Request().Context(), req.Sources)
	if err != nil {
		return h.fail(c, "rebuild", err)
	}
	return xhttp.SuccessResponse(c, summary)
}

func (h *SecMasterEchoHandler) Ingest(c echo.Context) error {
	req := &ingest.IngestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	summary, err := h.ingestor.Run(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "ingest", err)
	}
	return xhttp.SuccessResponse(c, summary)
}

func (h *SecMasterEchoHandler) Validate(c echo.Context) error {
	req := &validator.Request{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	summary, err := h.validator.Run(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "validate", err)
	}
	return xhttp.SuccessResponse(c, summary)
}

func (h *SecMasterEchoHandler) Consensus(c echo.Context) error {
	req := &ConsensusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tr, err := xhttp.QueryTimeRange(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	to := time.Now().UTC()
	if tr.To != nil {
		to = *tr.To
	}
	from := to.Add(-h.defaultWindow)
	if tr.From != nil {
		from = *tr.From
	}

	res, err := h.prices.GetPrices(c.Request().Context(), usecase.GetPricesParams{
		InstrumentID: req.InstrumentID,
		Table:        models.PriceTable(req.Table),
		VendorID:     req.VendorID,
		From:         from,
		To:           to,
		Limit:        req.Limit,
	})
	if err != nil {
		return h.fail(c, "consensus", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// fail maps usecase errors onto API errors.
func (h *SecMasterEchoHandler) fail(c echo.Context, op string, err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.Is(err, domrepo.ErrNoData),
		errors.Is(err, domrepo.ErrNotFound),
		errors.Is(err, domrepo.ErrUnresolved):
		appErr = xhttp.NotFoundError(err.Error())
	case errors.Is(err, domrepo.ErrRebuildInProgress):
		appErr = xhttp.ConflictError(err.Error())
	case errors.Is(err, symbology.ErrUnknownSource):
		appErr = xhttp.BadRequestError(err.Error())
	default:
		h.logger.Error(op+" failed", xlogger.String("path", c.Path()), xlogger.Error(err))
		appErr = xhttp.InternalError(op + " failed")
	}
	return xhttp.AppErrorResponse(c, appErr.WithError(err))
}
