package pipeline

import (
	"time"

	"github.com/narralabs/narra-core/internal/audio"
	"github.com/narralabs/narra-core/internal/voices"
)

// GenerationRecord is the durable description of one completed request.
// It travels in the X-Metadata response header and is what the ledger
// keeps; assembled audio bytes never persist.
type GenerationRecord struct {
	RequestID       string         `json:"request_id"`
	NewsID          string         `json:"news_id"`
	Status          string         `json:"status"`
	AudioSizeBytes  int            `json:"audio_size_bytes"`
	DurationSeconds *float64       `json:"duration_seconds"`
	Format          string         `json:"format"`
	SampleRate      int            `json:"sample_rate"`
	VoiceUsed       string         `json:"voice_used"`
	ModelUsed       string         `json:"model_used"`
	CharsProcessed  int            `json:"chars_processed"`
	GenerationMS    int64          `json:"generation_time_ms"`
	CreatedAt       time.Time      `json:"created_at"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// BuildRecord aggregates values the pipeline already computed. It
// performs no IO and no probing of its own. Caller-supplied metadata is
// copied through with the audio info and voice description layered on
// top.
func BuildRecord(req Request, voice voices.Voice, segments, chars int, assembled *audio.Assembled, startedAt, finishedAt time.Time) GenerationRecord {
	// Probing may not recover a frame rate; the requested rate stands in.
	sampleRate := req.SampleRate
	if assembled.Info.FrameRate != nil {
		sampleRate = *assembled.Info.FrameRate
	}
	metadata := make(map[string]any, len(req.Metadata)+3)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["audio_info"] = assembled.Info
	metadata["voice_config"] = voice.Description
	metadata["chunks_processed"] = segments
	return GenerationRecord{
		RequestID:       req.RequestID,
		NewsID:          req.NewsID,
		Status:          "completed",
		AudioSizeBytes:  assembled.Info.SizeBytes,
		DurationSeconds: assembled.Info.DurationSeconds,
		Format:          assembled.Format,
		SampleRate:      sampleRate,
		VoiceUsed:       voice.Name,
		ModelUsed:       voice.ModelID,
		CharsProcessed:  chars,
		GenerationMS:    finishedAt.Sub(startedAt).Milliseconds(),
		CreatedAt:       finishedAt.UTC(),
		Metadata:        metadata,
	}
}
