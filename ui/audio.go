// Package ui plays rendered PCM through the system audio device.
package ui

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// ringBufferDuration is how much audio the ring buffer holds.
const ringBufferDuration = 250 * time.Millisecond

var ErrFormatChanged = errors.New("audio device already opened with another format")

// AudioPlayer feeds int16 samples to oto through a ring buffer that oto
// pulls from.
type AudioPlayer struct {
	player     *oto.Player
	ringBuffer *AudioRingBuffer
	sampleRate int
	channels   int
}

// oto allows a single context per process.
var (
	otoCtx      *oto.Context
	otoRate     int
	otoChannels int
	otoInitOnce sync.Once
	otoInitErr  error
)

func ensureOtoContext(rate, channels int) (*oto.Context, error) {
	otoInitOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   50 * time.Millisecond,
		}
		var readyChan chan struct{}
		otoCtx, readyChan, otoInitErr = oto.NewContext(op)
		if otoInitErr != nil {
			return
		}
		otoRate, otoChannels = rate, channels
		<-readyChan
	})
	if otoInitErr != nil {
		return nil, otoInitErr
	}
	if rate != otoRate || channels != otoChannels {
		return nil, fmt.Errorf("%d Hz/%d ch: %w", rate, channels, ErrFormatChanged)
	}
	return otoCtx, nil
}

// NewAudioPlayer opens the audio device for interleaved int16 samples at
// the given rate and channel count.
func NewAudioPlayer(rate, channels int, volume float64) (*AudioPlayer, error) {
	ctx, err := ensureOtoContext(rate, channels)
	if err != nil {
		return nil, fmt.Errorf("oto audio not available: %w", err)
	}

	samples := int(int64(rate) * int64(channels) * int64(ringBufferDuration) / int64(time.Second))
	rb := NewAudioRingBuffer(samples)
	player := ctx.NewPlayer(rb)
	// oto's own buffer is sized in bytes: half the ring's duration
	player.SetBufferSize(samples)
	player.SetVolume(volume)
	player.Play()

	return &AudioPlayer{
		player:     player,
		ringBuffer: rb,
		sampleRate: rate,
		channels:   channels,
	}, nil
}

// QueueSamples hands samples to the device.
func (a *AudioPlayer) QueueSamples(samples []int16) {
	a.ringBuffer.Write(samples)
}

// BufferedFrames returns the frames queued but not yet played, counting
// oto's internal buffer.
func (a *AudioPlayer) BufferedFrames() int {
	bytes := a.ringBuffer.Buffered() + a.player.BufferedSize()
	return bytes / (2 * a.channels)
}

// SetVolume sets the playback volume (0.0 = silent, 1.0 = full).
func (a *AudioPlayer) SetVolume(vol float64) {
	a.player.SetVolume(vol)
}

// Close stops playback.
func (a *AudioPlayer) Close() {
	if a.ringBuffer != nil {
		a.ringBuffer.Close()
	}
	if a.player != nil {
		a.player.Close()
	}
}
