package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/narralabs/narra-core/internal/audio"
	"github.com/narralabs/narra-core/internal/config"
	"github.com/narralabs/narra-core/internal/synth"
	"github.com/narralabs/narra-core/internal/textseg"
	"github.com/narralabs/narra-core/internal/voices"
)

// Request describes one generation job. Metadata passes through to the
// generation record untouched.
type Request struct {
	RequestID  string
	NewsID     string
	Title      string
	Body       string
	Voice      string
	Format     string
	SampleRate int
	Metadata   map[string]any
}

// Outcome bundles assembled audio with its generation record.
type Outcome struct {
	Audio       []byte
	ContentType string
	Record      GenerationRecord
}

// Pipeline fans text segments out to the synthesizer under a
// concurrency bound and reassembles the clips in segment order.
type Pipeline struct {
	cfg      config.PipelineConfig
	synth    synth.Synthesizer
	catalog  *voices.Catalog
	observer Observer
	log      *slog.Logger

	// segmentTimeout scales the whole-request budget by segment count.
	segmentTimeout time.Duration
	now            func() time.Time
}

func New(cfg config.PipelineConfig, syn synth.Synthesizer, catalog *voices.Catalog, log *slog.Logger, observers ...Observer) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.SegmentChars <= 0 {
		cfg.SegmentChars = 2500
	}
	return &Pipeline{
		cfg:      cfg,
		synth:    syn,
		catalog:  catalog,
		observer: CombineObservers(observers...),
		log:      log.With(slog.String("component", "pipeline")),
		now:      time.Now,
	}
}

// SetSegmentTimeout bounds a request to timeout*segments, capped by the
// configured overall timeout.
func (p *Pipeline) SetSegmentTimeout(d time.Duration) {
	p.segmentTimeout = d
}

// Generate validates the request, splits the text, synthesizes every
// segment, and assembles the audio. The first failed segment aborts the
// remaining work and fails the whole request.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*Outcome, error) {
	start := p.now()

	if strings.TrimSpace(req.Body) == "" {
		return nil, synth.NewError(synth.CodeInvalidInput, "body must not be empty")
	}
	if p.cfg.MaxTextLength > 0 && utf8.RuneCountInString(req.Body) > p.cfg.MaxTextLength {
		return nil, synth.NewError(synth.CodeInvalidInput, "body exceeds %d characters", p.cfg.MaxTextLength)
	}
	format := req.Format
	if format == "" {
		format = "mp3"
	}
	switch format {
	case "mp3", "wav", "ogg":
	default:
		return nil, synth.NewError(synth.CodeInvalidInput, "unsupported audio format %q", format)
	}

	voice, err := p.catalog.Get(req.Voice)
	if err != nil {
		return nil, synth.NewError(synth.CodeVoiceNotFound, "unknown voice %q", req.Voice)
	}

	fullText := req.Body
	if title := strings.TrimSpace(req.Title); title != "" {
		fullText = title + ". " + req.Body
	}
	segments, err := textseg.Split(fullText, p.cfg.SegmentChars)
	if err != nil {
		return nil, synth.NewError(synth.CodeInternal, "segment text: %v", err)
	}
	if len(segments) == 0 {
		return nil, synth.NewError(synth.CodeInvalidInput, "no synthesizable text")
	}
	chars := utf8.RuneCountInString(fullText)

	p.log.Info("generation started",
		slog.String("request_id", req.RequestID),
		slog.String("news_id", req.NewsID),
		slog.String("voice", voice.Name),
		slog.String("format", format),
		slog.Int("segments", len(segments)),
		slog.Int("chars", chars))
	p.observer.GenerationStarted(ctx, StartInfo{
		RequestID: req.RequestID,
		NewsID:    req.NewsID,
		Voice:     voice.Name,
		Format:    format,
		Segments:  len(segments),
		Chars:     chars,
	})

	if budget := p.requestBudget(len(segments)); budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	chunks := make([][]byte, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrency)
	for _, seg := range segments {
		g.Go(func() error {
			segStart := p.now()
			res, err := p.synth.Synthesize(gctx, synth.Request{
				Text:       seg.Text,
				VoiceID:    voice.VoiceID,
				ModelID:    voice.ModelID,
				Settings:   voice.Settings,
				Format:     format,
				SampleRate: req.SampleRate,
			})
			info := SegmentInfo{
				RequestID: req.RequestID,
				Index:     seg.Index,
				Duration:  p.now().Sub(segStart),
			}
			if err != nil {
				info.Err = err
				p.observer.SegmentSynthesized(gctx, info)
				return fmt.Errorf("segment %d: %w", seg.Index, err)
			}
			info.Attempts = res.Attempts
			info.Bytes = len(res.Audio)
			p.observer.SegmentSynthesized(gctx, info)
			chunks[seg.Index] = res.Audio
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		serr := classify(err)
		elapsed := p.now().Sub(start)
		p.log.Error("generation failed",
			slog.String("request_id", req.RequestID),
			slog.String("news_id", req.NewsID),
			slog.String("code", string(serr.Code)),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", elapsed))
		p.observer.GenerationFinished(ctx, FinishInfo{
			RequestID:    req.RequestID,
			NewsID:       req.NewsID,
			Voice:        voice.Name,
			Model:        voice.ModelID,
			Format:       format,
			Segments:     len(segments),
			Chars:        chars,
			GenerationMS: elapsed.Milliseconds(),
			Duration:     elapsed,
			Err:          serr,
		})
		return nil, serr
	}

	assembled, err := audio.Assemble(chunks, format)
	if err != nil {
		return nil, synth.NewError(synth.CodeInternal, "assemble audio: %v", err)
	}
	if err := audio.Validate(assembled.Data, format); err != nil {
		p.log.Warn("assembled audio failed sanity check",
			slog.String("request_id", req.RequestID),
			slog.String("error", err.Error()))
	}

	finished := p.now()
	record := BuildRecord(req, voice, len(segments), chars, assembled, start, finished)

	p.log.Info("generation completed",
		slog.String("request_id", req.RequestID),
		slog.String("news_id", req.NewsID),
		slog.String("voice", voice.Name),
		slog.Int("segments", len(segments)),
		slog.Int("audio_bytes", assembled.Info.SizeBytes),
		slog.Int64("generation_ms", record.GenerationMS))
	p.observer.GenerationFinished(ctx, FinishInfo{
		RequestID:    req.RequestID,
		NewsID:       req.NewsID,
		Voice:        voice.Name,
		Model:        voice.ModelID,
		Format:       format,
		Segments:     len(segments),
		Chars:        chars,
		AudioBytes:   assembled.Info.SizeBytes,
		AudioSeconds: assembled.Info.DurationSeconds,
		GenerationMS: record.GenerationMS,
		Duration:     finished.Sub(start),
	})

	return &Outcome{
		Audio:       assembled.Data,
		ContentType: synth.ContentTypeFor(format),
		Record:      record,
	}, nil
}

// requestBudget computes the whole-request deadline. Zero means the
// caller's context is the only bound.
func (p *Pipeline) requestBudget(segments int) time.Duration {
	overall := time.Duration(p.cfg.OverallTimeoutMS) * time.Millisecond
	if p.segmentTimeout > 0 {
		scaled := p.segmentTimeout * time.Duration(segments)
		if overall <= 0 || scaled < overall {
			return scaled
		}
	}
	return overall
}

// classify maps a failed synthesis group to a typed error, preserving
// the synthesizer's own classification when present.
func classify(err error) *synth.Error {
	if serr, ok := synth.AsError(err); ok {
		return serr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return synth.NewError(synth.CodeTimeout, "generation deadline exceeded")
	}
	if errors.Is(err, context.Canceled) {
		return synth.NewError(synth.CodeTimeout, "generation cancelled")
	}
	return synth.NewError(synth.CodeInternal, "synthesis failed: %v", err)
}
