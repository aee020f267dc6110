package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/narralabs/narra-core/internal/api"
	"github.com/narralabs/narra-core/internal/bus"
	"github.com/narralabs/narra-core/internal/config"
	"github.com/narralabs/narra-core/internal/ledger"
	"github.com/narralabs/narra-core/internal/natsserver"
	"github.com/narralabs/narra-core/internal/pipeline"
	"github.com/narralabs/narra-core/internal/synth"
	"github.com/narralabs/narra-core/internal/voices"
	"github.com/narralabs/narra-core/internal/worker"
)

// Runtime wires the synthesizer, pipeline, ledger, bus, and HTTP API
// together and owns their lifecycles.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	busClient   *bus.Client
	workerSvc   *worker.Service
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings every component up and blocks until ctx is cancelled,
// then shuts them down in dependency order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	catalog, err := voices.Load(r.cfg.Voices.Path, r.cfg.Voices.Default)
	if err != nil {
		return fmt.Errorf("load voice catalog: %w", err)
	}

	store, err := ledger.Open(ctx, r.cfg.Ledger, r.logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	synthesizer, pinger, err := buildSynthesizer(r.cfg.Synthesis, r.logger)
	if err != nil {
		return fmt.Errorf("configure synthesizer: %w", err)
	}

	observers := []pipeline.Observer{ledger.NewRecorder(store, r.logger)}
	if metrics, err := pipeline.NewMetrics(); err != nil {
		r.logger.Warn("pipeline metrics unavailable", slog.String("error", err.Error()))
	} else {
		observers = append(observers, metrics)
	}

	if r.cfg.Bus.Enabled {
		embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded nats: %w", err)
		}
		defer embedded.Shutdown()

		busCfg := r.cfg.Bus
		if busCfg.Embedded {
			busCfg.Servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", busCfg.Port)}
		}
		r.busClient, err = bus.Connect(ctx, busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("connect bus: %w", err)
		}
		defer r.busClient.Close()
		observers = append(observers, bus.NewAnnouncer(r.busClient, r.logger))
	}

	pipe := pipeline.New(r.cfg.Pipeline, synthesizer, catalog, r.logger, observers...)
	pipe.SetSegmentTimeout(time.Duration(r.cfg.Synthesis.RequestTimeoutMS) * time.Millisecond)

	if r.cfg.Worker.Enabled && r.busClient != nil {
		r.workerSvc = worker.NewService(ctx, r.cfg.Worker, r.busClient, pipe, r.logger)
		if err := r.workerSvc.Start(); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
		defer r.workerSvc.Close()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	api.New(r.cfg, pipe, catalog, store, pinger, r.logger).Register(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           api.Middleware(mux, r.logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("provider", r.cfg.Synthesis.Provider),
		slog.Bool("bus", r.cfg.Bus.Enabled),
		slog.Bool("worker", r.cfg.Worker.Enabled))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// buildSynthesizer selects the provider implementation from config.
func buildSynthesizer(cfg config.SynthesisConfig, log *slog.Logger) (synth.Synthesizer, synth.Pinger, error) {
	switch cfg.Provider {
	case "elevenlabs":
		if cfg.APIKey == "" {
			return nil, nil, errors.New("synthesis.api_key must be set for the elevenlabs provider")
		}
		el := synth.NewElevenLabs(cfg, log)
		return el, el, nil
	case "exec":
		ex, err := synth.NewExec(cfg.Command, time.Duration(cfg.RequestTimeoutMS)*time.Millisecond, log)
		if err != nil {
			return nil, nil, err
		}
		return ex, ex, nil
	case "mock":
		m := synth.NewMock()
		return m, m, nil
	default:
		return nil, nil, fmt.Errorf("unknown synthesis provider %q", cfg.Provider)
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := r.ready.Load()
	if ready && r.cfg.Bus.Enabled && !r.busClient.Healthy() {
		ready = false
	}
	if ready && r.workerSvc != nil && !r.workerSvc.Healthy() {
		ready = false
	}
	if ready {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
