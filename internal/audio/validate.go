package audio

import (
	"bytes"
	"fmt"
)

const (
	// MinBytes flags payloads too small to be a real utterance.
	MinBytes = 1000
	// MaxBytes caps what a single generation may return.
	MaxBytes = 50 << 20
)

// Validate sanity-checks an assembled payload: size bounds plus the
// container magic for formats that have one.
func Validate(data []byte, format string) error {
	if len(data) < MinBytes {
		return fmt.Errorf("audio payload suspiciously small: %d bytes", len(data))
	}
	if len(data) > MaxBytes {
		return fmt.Errorf("audio payload too large: %d bytes", len(data))
	}
	switch format {
	case "mp3":
		if !looksLikeMP3(data) {
			return fmt.Errorf("payload does not start with an MP3 header")
		}
	case "wav":
		if !looksLikeWAV(data) {
			return fmt.Errorf("payload does not start with a RIFF/WAVE header")
		}
	}
	return nil
}

func looksLikeMP3(data []byte) bool {
	if bytes.HasPrefix(data, []byte("ID3")) {
		return true
	}
	if len(data) < 2 || data[0] != 0xFF {
		return false
	}
	return data[1] == 0xFB || data[1] == 0xF3 || data[1] == 0xF2
}

func looksLikeWAV(data []byte) bool {
	return len(data) >= 12 &&
		bytes.HasPrefix(data, []byte("RIFF")) &&
		bytes.Equal(data[8:12], []byte("WAVE"))
}
