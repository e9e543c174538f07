package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"SecMaster/internal/domain/models"
	"SecMaster/internal/usecase"
	"SecMaster/pkg/config"
	xhttp "SecMaster/pkg/http"
	pkgkafka "SecMaster/pkg/kafka"
	applogger "SecMaster/pkg/logger"
)

type service interface {
	Start() error
	Stop(ctx context.Context) error
}

type priceConsumer interface {
	service
	RegisterHandler(h pkgkafka.MessageHandler)
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	httpServer  service
	consumer    priceConsumer
	kh          pkgkafka.MessageHandler
	pipeline    *usecase.Pipeline
	diagnostics *applogger.DiagnosticCollector
}

// New creates a new App instance with all dependencies. consumer, kh and
// diagnostics are optional.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	pipeline *usecase.Pipeline,
	diagnostics *applogger.DiagnosticCollector,
) *App {
	a := &App{
		cfg:         cfg,
		log:         log,
		httpServer:  httpServer,
		kh:          kh,
		pipeline:    pipeline,
		diagnostics: diagnostics,
	}
	if consumer != nil {
		a.consumer = consumer
	}
	return a
}

// Serve starts the HTTP API and the price consumer and blocks until
// interrupted.
func (a *App) Serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.diagnostics != nil {
		a.log.AttachCollector(a.diagnostics)
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		a.stopConsumer()
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// RunOnce executes the configured pipeline plan and returns.
func (a *App) RunOnce(plan usecase.Plan) ([]*models.PhaseSummary, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.diagnostics != nil {
		a.log.AttachCollector(a.diagnostics)
		defer func() {
			a.log.DetachCollector()
			a.diagnostics.Close()
		}()
	}

	summaries, err := a.pipeline.Run(ctx, plan)
	for _, s := range summaries {
		a.log.Info("phase summary", applogger.String("phase", s.Phase), applogger.String("summary", s.String()))
	}
	if err != nil {
		a.log.Error("pipeline failed", applogger.Error(err))
	}
	return summaries, err
}

// PlanFromConfig builds the default pipeline plan.
func PlanFromConfig(cfg *config.Config) usecase.Plan {
	plan := usecase.Plan{
		Sources:    cfg.Pipeline.Sources,
		Vendors:    cfg.Pipeline.Vendors,
		PeriodDays: cfg.Pipeline.PeriodDays,
	}
	if len(plan.Vendors) == 0 {
		for _, v := range cfg.Vendors {
			if !v.Excluded && v.BaseURL != "" {
				plan.Vendors = append(plan.Vendors, v.Name)
			}
		}
	}
	for _, t := range cfg.Pipeline.Tables {
		plan.Tables = append(plan.Tables, models.PriceTable(t))
	}
	return plan
}

func (a *App) stopConsumer() {
	if a.consumer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.consumer.Stop(ctx); err != nil {
		a.log.Warn("kafka consumer stop error", applogger.Error(err))
	}
}

// shutdown stops the consumer first so no batch is half-written, then the
// HTTP server and the diagnostics flush.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.stopConsumer()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.diagnostics != nil {
		a.log.DetachCollector()
		a.diagnostics.Close()
	}

	a.log.Info("shutdown complete")
	return nil
}
