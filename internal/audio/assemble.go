package audio

import (
	"bytes"
	"errors"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Assembled is the final audio stream for one request.
type Assembled struct {
	Data   []byte
	Format string
	Info   Info
}

// Assemble joins per-segment audio payloads in order. MP3 and OGG streams
// concatenate byte-wise; WAV chunks are re-muxed into a single container,
// falling back to byte concatenation when any chunk cannot be decoded.
func Assemble(chunks [][]byte, format string) (*Assembled, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no audio chunks to assemble")
	}
	var data []byte
	if format == "wav" && len(chunks) > 1 {
		data = mergeWAV(chunks)
	} else {
		data = concat(chunks)
	}
	return &Assembled{
		Data:   data,
		Format: format,
		Info:   Probe(data, format),
	}, nil
}

func concat(chunks [][]byte) []byte {
	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	out := make([]byte, 0, size)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// mergeWAV decodes every chunk, appends the PCM frames, and encodes one
// container. Mixed sample formats or decode failures degrade to raw
// concatenation rather than failing the request.
func mergeWAV(chunks [][]byte) []byte {
	buffers := make([]*goaudio.IntBuffer, 0, len(chunks))
	for _, chunk := range chunks {
		dec := wav.NewDecoder(bytes.NewReader(chunk))
		buf, err := dec.FullPCMBuffer()
		if err != nil || buf == nil || buf.Format == nil {
			return concat(chunks)
		}
		buffers = append(buffers, buf)
	}

	first := buffers[0]
	merged := &goaudio.IntBuffer{
		Format:         first.Format,
		SourceBitDepth: first.SourceBitDepth,
	}
	for _, buf := range buffers {
		if buf.Format.SampleRate != first.Format.SampleRate || buf.Format.NumChannels != first.Format.NumChannels {
			return concat(chunks)
		}
		merged.Data = append(merged.Data, buf.Data...)
	}

	bitDepth := first.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}

	tmp, err := os.CreateTemp("", "narra-wav-*.wav")
	if err != nil {
		return concat(chunks)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	enc := wav.NewEncoder(tmp, first.Format.SampleRate, bitDepth, first.Format.NumChannels, 1)
	if err := enc.Write(merged); err != nil {
		return concat(chunks)
	}
	if err := enc.Close(); err != nil {
		return concat(chunks)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return concat(chunks)
	}
	data, err := io.ReadAll(tmp)
	if err != nil {
		return concat(chunks)
	}
	return data
}
