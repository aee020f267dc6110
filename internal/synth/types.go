package synth

import (
	"context"

	"github.com/narralabs/narra-core/internal/voices"
)

// Request carries one text segment to the upstream provider.
type Request struct {
	Text       string
	VoiceID    string
	ModelID    string
	Settings   voices.Settings
	Format     string
	SampleRate int
}

// Result is the audio produced for a single request.
type Result struct {
	Audio       []byte
	ContentType string
	Attempts    int
}

// Synthesizer is the contract for producing audio from one segment. A nil
// error guarantees non-empty audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Result, error)
}

// Pinger verifies reachability of the synthesis backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ContentTypeFor maps an output format to its response media type.
func ContentTypeFor(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
