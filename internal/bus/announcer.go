package bus

import (
	"context"
	"log/slog"
	"time"

	"github.com/narralabs/narra-core/internal/pipeline"
	"github.com/narralabs/narra-core/internal/protocol"
	"github.com/narralabs/narra-core/internal/synth"
)

// Announcer publishes generation lifecycle events to the bus. It
// implements pipeline.Observer; publish failures are logged and never
// affect the generation they describe.
type Announcer struct {
	client *Client
	log    *slog.Logger
	now    func() time.Time
}

func NewAnnouncer(client *Client, log *slog.Logger) *Announcer {
	return &Announcer{
		client: client,
		log:    log.With(slog.String("component", "bus")),
		now:    time.Now,
	}
}

func (a *Announcer) GenerationStarted(_ context.Context, info pipeline.StartInfo) {
	a.publish(protocol.SubjectGenerationStarted, protocol.GenerationStarted{
		RequestID: info.RequestID,
		NewsID:    info.NewsID,
		Voice:     info.Voice,
		Format:    info.Format,
		Segments:  info.Segments,
		Timestamp: a.now().UTC(),
	})
}

func (a *Announcer) SegmentSynthesized(context.Context, pipeline.SegmentInfo) {}

func (a *Announcer) GenerationFinished(_ context.Context, info pipeline.FinishInfo) {
	if info.Err != nil {
		a.publish(protocol.SubjectGenerationFailed, protocol.GenerationFailed{
			RequestID: info.RequestID,
			NewsID:    info.NewsID,
			Voice:     info.Voice,
			ErrorCode: string(synth.CodeOf(info.Err)),
			Message:   info.Err.Error(),
			Retryable: synth.IsRetryable(info.Err),
			Timestamp: a.now().UTC(),
		})
		return
	}
	a.publish(protocol.SubjectGenerationCompleted, protocol.GenerationCompleted{
		RequestID:       info.RequestID,
		NewsID:          info.NewsID,
		Voice:           info.Voice,
		Model:           info.Model,
		Format:          info.Format,
		CharsProcessed:  info.Chars,
		AudioSizeBytes:  info.AudioBytes,
		DurationSeconds: info.AudioSeconds,
		GenerationMS:    info.GenerationMS,
		Timestamp:       a.now().UTC(),
	})
}

func (a *Announcer) publish(subject string, event any) {
	if err := a.client.PublishEvent(subject, event); err != nil {
		a.log.Warn("publish lifecycle event failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}
