package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"SecMaster/internal/domain/models"
	"SecMaster/pkg/config"
	pkgkafka "SecMaster/pkg/kafka"
	applogger "SecMaster/pkg/logger"
)

type fakeService struct {
	startErr error
	started  bool
	stopped  bool
}

func (f *fakeService) Start() error {
	f.started = true
	return f.startErr
}

func (f *fakeService) Stop(context.Context) error {
	f.stopped = true
	return nil
}

type fakeConsumer struct {
	fakeService
	handlers int
}

func (f *fakeConsumer) RegisterHandler(pkgkafka.MessageHandler) { f.handlers++ }

type nopHandler struct{}

func (nopHandler) Topic() string                        { return "secmaster.prices" }
func (nopHandler) Handle(context.Context, []byte) error { return nil }

func TestServeStopsConsumerWhenHTTPFails(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.ShutdownTimeout = time.Second

	httpSrv := &fakeService{startErr: errors.New("address in use")}
	consumer := &fakeConsumer{}
	app := &App{
		cfg:        cfg,
		log:        applogger.NewNop(),
		httpServer: httpSrv,
		consumer:   consumer,
		kh:         nopHandler{},
	}

	if err := app.Serve(); err == nil {
		t.Fatal("Serve should return the http start error")
	}
	if !consumer.started || consumer.handlers != 1 {
		t.Fatalf("consumer started=%v handlers=%d", consumer.started, consumer.handlers)
	}
	if !consumer.stopped {
		t.Fatal("consumer left running after http start failure")
	}
}

func TestNewDropsNilConsumer(t *testing.T) {
	app := New(&config.Config{}, applogger.NewNop(), nil, nil, nil, nil, nil)
	if app.consumer != nil {
		t.Fatal("nil consumer should stay nil")
	}
}

func TestPlanFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Vendors = []config.VendorConfig{
		{ID: 1, Name: "quandl_wiki", BaseURL: "http://gw"},
		{ID: 2, Name: "yahoo", BaseURL: "http://gw", Excluded: true},
		{ID: 3, Name: "csi_data"},
	}
	cfg.Pipeline.Tables = []string{"daily"}

	plan := PlanFromConfig(cfg)
	if len(plan.Vendors) != 1 || plan.Vendors[0] != "quandl_wiki" {
		t.Fatalf("vendors = %v, want [quandl_wiki]", plan.Vendors)
	}
	if len(plan.Tables) != 1 || plan.Tables[0] != models.TableDaily {
		t.Fatalf("tables = %v", plan.Tables)
	}
}
