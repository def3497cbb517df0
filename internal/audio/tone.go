// Package audio produces the placeholder audio and transcripts served
// until real speech models are wired in.
package audio

import (
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/generators"
	"github.com/gopxl/beep/v2/wav"
)

const (
	// SampleRate of generated audio in Hz.
	SampleRate = 22050
	// ToneHz is the frequency of the placeholder tone.
	ToneHz = 440.0

	secondsPerChar = 0.06
	minDuration    = 500 * time.Millisecond
	maxDuration    = 30 * time.Second
)

// Clip is an encoded WAV file.
type Clip struct {
	Data       []byte
	Duration   time.Duration
	SampleRate int
}

// DurationForText is the clip length for text: 60ms per character,
// clamped to [0.5s, 30s].
func DurationForText(text string) time.Duration {
	d := time.Duration(float64(utf8.RuneCountInString(text)) * secondsPerChar * float64(time.Second))
	return min(max(d, minDuration), maxDuration)
}

// SynthesizeTone renders a mono 16-bit 440Hz sine WAV sized to text.
func SynthesizeTone(text string) (*Clip, error) {
	return Tone(DurationForText(text))
}

// Tone renders a mono 16-bit 440Hz sine WAV of length d.
func Tone(d time.Duration) (*Clip, error) {
	if d <= 0 {
		return nil, errors.New("duration must be positive")
	}

	format := beep.Format{SampleRate: beep.SampleRate(SampleRate), NumChannels: 1, Precision: 2}

	sine, err := generators.SineTone(format.SampleRate, ToneHz)
	if err != nil {
		return nil, fmt.Errorf("sine generator: %w", err)
	}
	// Half amplitude leaves headroom against clipping.
	quiet := &effects.Gain{Streamer: sine, Gain: -0.5}
	samples := format.SampleRate.N(d)

	var buf seekBuffer
	if err := wav.Encode(&buf, beep.Take(samples, quiet), format); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}

	return &Clip{
		Data:       buf.Bytes(),
		Duration:   format.SampleRate.D(samples),
		SampleRate: SampleRate,
	}, nil
}

// seekBuffer is an in-memory io.WriteSeeker. wav.Encode seeks back to
// patch the RIFF header sizes after writing samples.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.buf) {
		b.buf = append(b.buf, make([]byte, end-len(b.buf))...)
	}
	copy(b.buf[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("seekBuffer: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("seekBuffer: negative position")
	}
	b.pos = int(abs)
	return abs, nil
}

func (b *seekBuffer) Bytes() []byte {
	return b.buf
}
