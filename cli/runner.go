// Package cli plays a song through the audio device from the command
// line, optionally printing a register trace and the driver state.
package cli

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/user-none/go-adlib/adlib"
	"github.com/user-none/go-adlib/opl"
	"github.com/user-none/go-adlib/ui"
)

// fragmentsPerSecond sets the render fragment size.
const fragmentsPerSecond = 60

// Buffer-level pacing thresholds, in fragments queued.
const (
	adtMinFragments = 3
	adtMaxFragments = 6
)

// Options controls a Runner.
type Options struct {
	Volume  float64
	Frames  int64 // Stop after this many frames, 0 = when the music ends
	FadeOut bool  // Fade instead of cutting off at Frames
	Trace   io.Writer
}

// Runner renders a player on a dedicated goroutine, paced by how much
// audio the device has queued.
type Runner struct {
	player      *adlib.Player
	chip        *opl.Chip
	audioPlayer *ui.AudioPlayer
	opts        Options
	styles      styles
	tracer      *Tracer

	control *ui.PlaybackControl
	status  *ui.SharedStatus
	done    chan struct{}
}

// NewRunner starts playback. Audio initialization failure is non-fatal;
// the runner keeps time without sound.
func NewRunner(p *adlib.Player, chip *opl.Chip, opts Options) *Runner {
	player, err := ui.NewAudioPlayer(chip.SampleRate(), chip.Channels(), opts.Volume)
	if err != nil {
		log.Printf("Warning: audio initialization failed: %v", err)
	}

	r := &Runner{
		player:      p,
		chip:        chip,
		audioPlayer: player,
		opts:        opts,
		styles:      newStyles(),
		control:     ui.NewPlaybackControl(),
		status:      &ui.SharedStatus{},
		done:        make(chan struct{}),
	}
	if opts.Trace != nil {
		r.tracer = NewTracer(opts.Trace)
		chip.SetWriteHook(r.tracer.Write)
	}

	go r.playbackLoop()
	return r
}

// Pause parks the playback goroutine. It returns at once if playback
// has already ended.
func (r *Runner) Pause() { r.control.RequestPause() }

// Resume continues after Pause.
func (r *Runner) Resume() { r.control.RequestResume() }

// Paused reports whether the playback goroutine is parked.
func (r *Runner) Paused() bool { return r.control.IsPaused() }

// Done is closed when playback ends.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Status returns the last published position and driver state.
func (r *Runner) Status() (frames int64, playing bool, lines []string) {
	return r.status.Read()
}

// Close stops playback and releases the audio device.
func (r *Runner) Close() {
	if r.control != nil {
		r.control.Stop()
		<-r.done
	}
	if r.tracer != nil {
		r.chip.SetWriteHook(nil)
	}
	if r.audioPlayer != nil {
		r.audioPlayer.Close()
		r.audioPlayer = nil
	}
}

func (r *Runner) playbackLoop() {
	defer close(r.done)
	defer r.control.Exit()

	rate := r.chip.SampleRate()
	chans := r.chip.Channels()
	fragFrames := rate / fragmentsPerSecond
	buf := make([]int16, fragFrames*chans)
	fragTime := time.Duration(float64(time.Second) * float64(fragFrames) / float64(rate))
	lastTime := time.Now()

	var frames int64
	fading := false
	for {
		if !r.control.CheckPause() {
			return
		}
		if !r.player.IsPlaying() {
			r.drain(fragTime)
			return
		}
		if r.opts.Frames > 0 && frames >= r.opts.Frames {
			if !r.opts.FadeOut {
				return
			}
			if !fading {
				r.player.BeginFadeOut()
				fading = true
			}
		}

		if r.tracer != nil {
			r.tracer.SetFrame(frames)
		}
		r.player.Callback(buf)
		frames += int64(fragFrames)
		if r.audioPlayer != nil {
			r.audioPlayer.QueueSamples(buf)
		}
		r.publish(frames)

		sleepTime := fragTime - time.Since(lastTime)
		if r.audioPlayer != nil {
			queued := r.audioPlayer.BufferedFrames()
			if queued < adtMinFragments*fragFrames {
				sleepTime = time.Duration(float64(sleepTime) * 0.9)
			} else if queued > adtMaxFragments*fragFrames {
				sleepTime = time.Duration(float64(sleepTime) * 1.1)
			}
		}
		if sleepTime > time.Millisecond {
			time.Sleep(sleepTime)
		}
		lastTime = time.Now()
	}
}

// drain waits up to a second for queued audio to play out.
func (r *Runner) drain(fragTime time.Duration) {
	if r.audioPlayer == nil {
		return
	}
	for i := 0; i < fragmentsPerSecond && r.audioPlayer.BufferedFrames() > 0; i++ {
		if !r.control.CheckPause() {
			return
		}
		time.Sleep(fragTime)
	}
}

func (r *Runner) publish(frames int64) {
	lines := statusLines(r.styles, r.player.Driver())
	playing := r.player.IsPlaying()
	r.status.Update(frames, playing, lines)
}

// FormatTime renders a frame count as mm:ss.
func FormatTime(frames int64, rate int) string {
	secs := frames / int64(rate)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
