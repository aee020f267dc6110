package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/narralabs/narra-core/internal/config"
	"github.com/narralabs/narra-core/internal/ledger"
	"github.com/narralabs/narra-core/internal/pipeline"
	"github.com/narralabs/narra-core/internal/synth"
	"github.com/narralabs/narra-core/internal/voices"
)

// Generator runs one generation job. *pipeline.Pipeline satisfies it.
type Generator interface {
	Generate(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// Server exposes the generation API over HTTP.
type Server struct {
	gen     Generator
	catalog *voices.Catalog
	store   *ledger.Store
	pinger  synth.Pinger
	log     *slog.Logger

	provider      string
	defaultFormat string
	defaultRate   int
	maxText       int
}

func New(cfg config.Config, gen Generator, catalog *voices.Catalog, store *ledger.Store, pinger synth.Pinger, log *slog.Logger) *Server {
	return &Server{
		gen:           gen,
		catalog:       catalog,
		store:         store,
		pinger:        pinger,
		log:           log.With(slog.String("component", "api")),
		provider:      cfg.Synthesis.Provider,
		defaultFormat: cfg.Synthesis.DefaultFormat,
		defaultRate:   cfg.Synthesis.DefaultSampleRate,
		maxText:       cfg.Pipeline.MaxTextLength,
	}
}

// Register mounts the v1 routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/tts/generate", s.handleGenerate)
	mux.HandleFunc("GET /v1/tts/voices", s.handleVoices)
	mux.HandleFunc("POST /v1/tts/voices/{name}/config", s.handleVoiceConfig)
	mux.HandleFunc("GET /v1/tts/health", s.handleHealth)
	mux.HandleFunc("GET /v1/tts/generations", s.handleGenerations)
	mux.HandleFunc("GET /v1/tts/generations/{id}", s.handleGeneration)
}
