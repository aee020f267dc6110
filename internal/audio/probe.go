package audio

import (
	"bytes"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Info describes an audio payload. Pointer fields are nil when the
// property could not be derived from the bytes; callers treat that as
// missing metadata, not as a failure.
type Info struct {
	DurationSeconds *float64 `json:"duration_seconds"`
	FrameRate       *int     `json:"frame_rate"`
	Channels        *int     `json:"channels"`
	SampleWidth     *int     `json:"sample_width"`
	SizeBytes       int      `json:"size_bytes"`
	Format          string   `json:"format"`
}

// Probe inspects assembled audio and extracts whatever metadata the
// container yields. It never fails: undecodable data produces an Info
// with only size and format populated.
func Probe(data []byte, format string) Info {
	info := Info{SizeBytes: len(data), Format: format}
	switch format {
	case "mp3":
		probeMP3(data, &info)
	case "wav":
		probeWAV(data, &info)
	}
	return info
}

func probeMP3(data []byte, info *Info) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return
	}
	// The decoder always emits 16-bit stereo frames, 4 bytes per frame.
	channels := 2
	width := 2
	info.Channels = &channels
	info.SampleWidth = &width
	rate := dec.SampleRate()
	if rate > 0 {
		info.FrameRate = &rate
	}
	if length := dec.Length(); length > 0 && rate > 0 {
		seconds := float64(length) / 4.0 / float64(rate)
		info.DurationSeconds = &seconds
	}
}

func probeWAV(data []byte, info *Info) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return
	}
	if dec.SampleRate > 0 {
		rate := int(dec.SampleRate)
		info.FrameRate = &rate
	}
	if dec.NumChans > 0 {
		channels := int(dec.NumChans)
		info.Channels = &channels
	}
	if dec.BitDepth >= 8 {
		width := int(dec.BitDepth) / 8
		info.SampleWidth = &width
	}
	if dur, err := wav.NewDecoder(bytes.NewReader(data)).Duration(); err == nil && dur > 0 {
		seconds := dur.Seconds()
		info.DurationSeconds = &seconds
	}
}
