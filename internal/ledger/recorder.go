package ledger

import (
	"context"
	"log/slog"

	"github.com/narralabs/narra-core/internal/pipeline"
	"github.com/narralabs/narra-core/internal/synth"
)

// Recorder persists generation outcomes as they finish. It implements
// pipeline.Observer; a failed write logs a warning and never fails the
// request it describes.
type Recorder struct {
	store *Store
	log   *slog.Logger
}

func NewRecorder(store *Store, log *slog.Logger) *Recorder {
	return &Recorder{store: store, log: log.With(slog.String("component", "ledger"))}
}

func (r *Recorder) GenerationStarted(context.Context, pipeline.StartInfo) {}

func (r *Recorder) SegmentSynthesized(context.Context, pipeline.SegmentInfo) {}

func (r *Recorder) GenerationFinished(ctx context.Context, info pipeline.FinishInfo) {
	entry := Entry{
		RequestID:       info.RequestID,
		NewsID:          info.NewsID,
		Voice:           info.Voice,
		Model:           info.Model,
		Format:          info.Format,
		Status:          "completed",
		Segments:        info.Segments,
		CharsProcessed:  info.Chars,
		AudioSizeBytes:  info.AudioBytes,
		DurationSeconds: info.AudioSeconds,
		GenerationMS:    info.GenerationMS,
	}
	if info.Err != nil {
		entry.Status = "failed"
		entry.ErrorCode = string(synth.CodeOf(info.Err))
	}
	// The request context may already be expired when a generation fails.
	if err := r.store.Put(context.WithoutCancel(ctx), entry); err != nil {
		r.log.Warn("ledger write failed",
			slog.String("request_id", info.RequestID),
			slog.String("error", err.Error()))
	}
}
