package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/narralabs/narra-core/internal/ledger"
	"github.com/narralabs/narra-core/internal/pipeline"
	"github.com/narralabs/narra-core/internal/synth"
	"github.com/narralabs/narra-core/internal/voices"
)

var newsIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const (
	minBodyChars = 10
	maxTitleRune = 200
	minRate      = 8000
	maxRate      = 48000
)

type generateRequest struct {
	NewsID     string         `json:"news_id"`
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	Voice      string         `json:"voice,omitempty"`
	Format     string         `json:"format,omitempty"`
	SampleRate int            `json:"sample_rate,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, synth.NewError(synth.CodeInvalidInput, "invalid JSON body: %v", err))
		return
	}
	if err := s.validateGenerate(&req); err != nil {
		writeError(w, r, err)
		return
	}

	out, err := s.gen.Generate(r.Context(), pipeline.Request{
		RequestID:  RequestIDFrom(r.Context()),
		NewsID:     req.NewsID,
		Title:      req.Title,
		Body:       req.Body,
		Voice:      req.Voice,
		Format:     req.Format,
		SampleRate: req.SampleRate,
		Metadata:   req.Metadata,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	metadata, err := json.Marshal(out.Record)
	if err != nil {
		writeError(w, r, synth.NewError(synth.CodeInternal, "encode metadata: %v", err))
		return
	}

	h := w.Header()
	h.Set("Content-Type", out.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(out.Audio)))
	h.Set("X-News-ID", out.Record.NewsID)
	h.Set("X-Voice-Used", out.Record.VoiceUsed)
	h.Set("X-Audio-Size", strconv.Itoa(len(out.Audio)))
	h.Set("X-Generation-Time", strconv.FormatInt(out.Record.GenerationMS, 10))
	h.Set("X-Metadata", string(metadata))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Audio)
}

// validateGenerate enforces the request contract and fills defaults.
// The pipeline re-checks its own invariants downstream.
func (s *Server) validateGenerate(req *generateRequest) error {
	if req.NewsID == "" {
		return synth.NewError(synth.CodeInvalidInput, "news_id is required")
	}
	if !newsIDPattern.MatchString(req.NewsID) {
		return synth.NewError(synth.CodeInvalidInput, "news_id may contain only letters, digits, underscore, and hyphen")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return synth.NewError(synth.CodeInvalidInput, "title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleRune {
		return synth.NewError(synth.CodeInvalidInput, "title exceeds %d characters", maxTitleRune)
	}
	body := strings.TrimSpace(req.Body)
	if utf8.RuneCountInString(body) < minBodyChars {
		return synth.NewError(synth.CodeInvalidInput, "body must be at least %d characters", minBodyChars)
	}
	if s.maxText > 0 && utf8.RuneCountInString(body) > s.maxText {
		return synth.NewError(synth.CodeInvalidInput, "body exceeds %d characters", s.maxText)
	}
	if req.Format == "" {
		req.Format = s.defaultFormat
	}
	switch req.Format {
	case "mp3", "wav", "ogg":
	default:
		return synth.NewError(synth.CodeInvalidInput, "format must be one of mp3, wav, ogg")
	}
	if req.SampleRate == 0 {
		req.SampleRate = s.defaultRate
	}
	if req.SampleRate < minRate || req.SampleRate > maxRate {
		return synth.NewError(synth.CodeInvalidInput, "sample_rate must be between %d and %d", minRate, maxRate)
	}
	return nil
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Voices  []voices.Voice `json:"voices"`
		Default string         `json:"default"`
	}{
		Voices:  s.catalog.List(),
		Default: s.catalog.Default().Name,
	})
}

type voiceConfigRequest struct {
	Stability       *float64 `json:"stability"`
	SimilarityBoost *float64 `json:"similarity_boost"`
	Style           *float64 `json:"style"`
	UseSpeakerBoost *bool    `json:"use_speaker_boost"`
}

// handleVoiceConfig previews voice settings with the given overrides
// applied. Nothing persists; callers pass the result per request.
func (s *Server) handleVoiceConfig(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	voice, err := s.catalog.Get(name)
	if err != nil {
		writeError(w, r, synth.NewError(synth.CodeVoiceNotFound, "unknown voice %q", name))
		return
	}

	var req voiceConfigRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, r, synth.NewError(synth.CodeInvalidInput, "invalid JSON body: %v", err))
		return
	}

	settings := voice.Settings
	if req.Stability != nil {
		settings.Stability = *req.Stability
	}
	if req.SimilarityBoost != nil {
		settings.SimilarityBoost = *req.SimilarityBoost
	}
	if req.Style != nil {
		settings.Style = *req.Style
	}
	if req.UseSpeakerBoost != nil {
		settings.UseSpeakerBoost = *req.UseSpeakerBoost
	}
	for field, v := range map[string]float64{
		"stability":        settings.Stability,
		"similarity_boost": settings.SimilarityBoost,
		"style":            settings.Style,
	} {
		if v < 0 || v > 1 {
			writeError(w, r, synth.NewError(synth.CodeInvalidInput, "%s must be between 0 and 1", field))
			return
		}
	}

	writeJSON(w, http.StatusOK, struct {
		Voice    string          `json:"voice"`
		VoiceID  string          `json:"voice_id"`
		ModelID  string          `json:"model_id"`
		Settings voices.Settings `json:"settings"`
	}{
		Voice:    voice.Name,
		VoiceID:  voice.VoiceID,
		ModelID:  voice.ModelID,
		Settings: settings,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type health struct {
		Status          string `json:"status"`
		Provider        string `json:"provider"`
		VoicesAvailable int    `json:"voices_available"`
		Error           string `json:"error,omitempty"`
	}

	resp := health{
		Status:          "healthy",
		Provider:        s.provider,
		VoicesAvailable: len(s.catalog.List()),
	}
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGenerations(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeError(w, r, synth.NewError(synth.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}
	entries, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, synth.NewError(synth.CodeInternal, "list generations: %v", err))
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, struct {
		Generations []ledger.Entry `json:"generations"`
	}{entries})
}

func (s *Server) handleGeneration(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, err := s.store.Get(r.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		writeErrorCode(w, r, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("no generation with id %q", id))
		return
	}
	if err != nil {
		writeError(w, r, synth.NewError(synth.CodeInternal, "load generation: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
