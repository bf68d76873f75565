// Package wavout renders a source of int16 PCM to a WAV file.
package wavout

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// chunkFrames is the number of frames pulled from the source per block.
const chunkFrames = 4096

// ErrBadFormat is returned for a sample rate or channel count that cannot
// be written.
var ErrBadFormat = errors.New("unsupported wav format")

// Source fills a buffer of interleaved int16 samples.
type Source interface {
	Callback(buf []int16)
}

// Options describes the rendered stream.
type Options struct {
	SampleRate int
	Channels   int
	Frames     int // Total frames to render

	// Stop, if set, is checked between blocks; rendering ends early once it
	// returns true.
	Stop func() bool
}

// Render pulls opts.Frames frames from src and writes them to w as 16-bit
// PCM. It returns the number of frames written.
func Render(w io.WriteSeeker, src Source, opts Options) (int, error) {
	if opts.SampleRate <= 0 || opts.Channels < 1 || opts.Channels > 2 {
		return 0, fmt.Errorf("wavout: %d Hz, %d channels: %w", opts.SampleRate, opts.Channels, ErrBadFormat)
	}

	enc := wav.NewEncoder(w, opts.SampleRate, 16, opts.Channels, 1)
	pcm := make([]int16, chunkFrames*opts.Channels)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: opts.Channels, SampleRate: opts.SampleRate},
		Data:           make([]int, len(pcm)),
		SourceBitDepth: 16,
	}

	written := 0
	for written < opts.Frames {
		if opts.Stop != nil && opts.Stop() {
			break
		}
		n := opts.Frames - written
		if n > chunkFrames {
			n = chunkFrames
		}
		block := pcm[:n*opts.Channels]
		src.Callback(block)

		buf.Data = buf.Data[:len(block)]
		for i, v := range block {
			buf.Data[i] = int(v)
		}
		if err := enc.Write(buf); err != nil {
			return written, fmt.Errorf("wavout: write: %w", err)
		}
		written += n
	}

	if err := enc.Close(); err != nil {
		return written, fmt.Errorf("wavout: close: %w", err)
	}
	return written, nil
}
