package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth  = 16
	wavPCMFormat = 1
)

// WAVOutput renders every clip to a 16-bit mono WAV file in Dir. A host-side
// player (or a human) picks the files up from there.
type WAVOutput struct {
	Dir        string
	SampleRate int

	now func() time.Time
}

// NewWAVOutput creates the directory if needed
func NewWAVOutput(dir string, sampleRate int) (*WAVOutput, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create wav dir: %w", err)
	}
	return &WAVOutput{Dir: dir, SampleRate: sampleRate, now: time.Now}, nil
}

// Play writes the clip to <dir>/<unix-nanos>-<priority>.wav
func (o *WAVOutput) Play(ctx context.Context, clip Clip) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := fmt.Sprintf("%d-%s.wav", o.now().UnixNano(), clip.Priority)
	f, err := os.Create(filepath.Join(o.Dir, name))
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}

	if err := RenderWAV(f, clip, o.SampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// RenderWAV encodes the synthesized clip as 16-bit mono PCM
func RenderWAV(w io.WriteSeeker, clip Clip, sampleRate int) error {
	samples := Synthesize(clip, sampleRate)

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: wavBitDepth,
	}
	for i, s := range samples {
		buf.Data[i] = int(s * 32767)
	}

	enc := wav.NewEncoder(w, sampleRate, wavBitDepth, 1, wavPCMFormat)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}
