package audio

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

// PCMBuffer holds fully decoded samples.
type PCMBuffer struct {
	buf    *beep.Buffer
	format beep.Format
}

// Release drops the decoded samples.
func (b *PCMBuffer) Release() {
	b.buf = nil
}

// Samples returns the number of decoded samples, zero once released.
func (b *PCMBuffer) Samples() int {
	if b.buf == nil {
		return 0
	}
	return b.buf.Len()
}

// BeepDecoder decodes mp3 and wav payloads with beep.
type BeepDecoder struct{}

// Decode implements Decoder.
func (BeepDecoder) Decode(data []byte, format string) (Buffer, error) {
	return decodePCM(data, format)
}

func decodePCM(data []byte, format string) (*PCMBuffer, error) {
	streamer, f, err := decodeStream(data, format)
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	buf := beep.NewBuffer(f)
	buf.Append(streamer)
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("failed to decode audio: %w", err)
	}
	return &PCMBuffer{buf: buf, format: f}, nil
}

func decodeStream(data []byte, format string) (beep.StreamSeekCloser, beep.Format, error) {
	if len(data) == 0 {
		return nil, beep.Format{}, fmt.Errorf("failed to decode audio: empty payload")
	}
	switch sniffFormat(data, format) {
	case "wav":
		s, f, err := wav.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("failed to decode wav: %w", err)
		}
		return s, f, nil
	case "mp3":
		s, f, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("failed to decode mp3: %w", err)
		}
		return s, f, nil
	}
	return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func sniffFormat(data []byte, declared string) string {
	switch strings.ToLower(strings.TrimPrefix(declared, "audio/")) {
	case "wav", "wave", "x-wav":
		return "wav"
	case "mp3", "mpeg":
		return "mp3"
	case "":
	default:
		return declared
	}
	if bytes.HasPrefix(data, []byte("RIFF")) {
		return "wav"
	}
	return "mp3"
}
