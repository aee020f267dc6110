package protocol

import "time"

// GenerationStarted is published when a pipeline run begins.
type GenerationStarted struct {
	RequestID string    `json:"request_id"`
	NewsID    string    `json:"news_id"`
	Voice     string    `json:"voice"`
	Format    string    `json:"format"`
	Segments  int       `json:"segments"`
	Timestamp time.Time `json:"timestamp"`
}

// GenerationCompleted is published when a pipeline run produces audio.
type GenerationCompleted struct {
	RequestID       string    `json:"request_id"`
	NewsID          string    `json:"news_id"`
	Voice           string    `json:"voice"`
	Model           string    `json:"model"`
	Format          string    `json:"format"`
	CharsProcessed  int       `json:"chars_processed"`
	AudioSizeBytes  int       `json:"audio_size_bytes"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	GenerationMS    int64     `json:"generation_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

// GenerationFailed is published when a pipeline run ends in a classified error.
type GenerationFailed struct {
	RequestID string    `json:"request_id"`
	NewsID    string    `json:"news_id"`
	Voice     string    `json:"voice"`
	ErrorCode string    `json:"error_code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

// GenerateRequest asks the worker to run a generation over the bus.
type GenerateRequest struct {
	RequestID  string            `json:"request_id,omitempty"`
	NewsID     string            `json:"news_id"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Voice      string            `json:"voice,omitempty"`
	Format     string            `json:"format,omitempty"`
	SampleRate int               `json:"sample_rate,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// GenerateResult carries the outcome of a bus-driven generation. Audio is
// included only when it fits the configured payload ceiling.
type GenerateResult struct {
	RequestID string         `json:"request_id"`
	Status    string         `json:"status"`
	Record    []byte         `json:"record,omitempty"`
	Audio     []byte         `json:"audio,omitempty"`
	Error     *GenerateError `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// GenerateError describes a failed bus-driven generation.
type GenerateError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

const (
	SubjectGenerationStarted   = "tts.generation.started"
	SubjectGenerationCompleted = "tts.generation.completed"
	SubjectGenerationFailed    = "tts.generation.failed"
	SubjectGenerateRequest     = "tts.generate.request"
	SubjectGenerateResult      = "tts.generate.result"
)
