package adlib

import (
	"fmt"

	"github.com/user-none/go-adlib/opl"
)

// Player owns a driver and interleaves its 72 Hz ticks with sample
// generation.
type Player struct {
	chip *opl.Chip
	song *Song
	drv  *Driver

	perTick int // Whole frames per tick
	rem     int // Leftover frames per tick, in 1/TickRate units
	acc     int
	left    int // Frames until the next tick

	filter *lowPass
}

// NewPlayer parses a song and takes exclusive control of the chip.
func NewPlayer(chip *opl.Chip, data []byte) (*Player, error) {
	song, err := ParseSong(data)
	if err != nil {
		return nil, err
	}
	drv, err := NewDriver(chip, song)
	if err != nil {
		return nil, fmt.Errorf("adlib: %w", err)
	}
	rate := chip.SampleRate()
	return &Player{
		chip:    chip,
		song:    song,
		drv:     drv,
		perTick: rate / TickRate,
		rem:     rate % TickRate,
	}, nil
}

// Close stops playback and releases the chip.
func (p *Player) Close() {
	p.drv.Close()
}

// Song returns the parsed song.
func (p *Player) Song() *Song {
	return p.song
}

// Driver returns the underlying driver.
func (p *Player) Driver() *Driver {
	return p.drv
}

// SetLowPass enables an output low-pass filter at cutoffHz. Zero or a
// cutoff at or above Nyquist disables it.
func (p *Player) SetLowPass(cutoffHz float64) {
	rate := p.chip.SampleRate()
	if cutoffHz <= 0 || cutoffHz >= float64(rate)/2 {
		p.filter = nil
		return
	}
	p.filter = newLowPass(rate, cutoffHz)
}

// Callback fills buf with audio, ticking the driver whenever a tick's
// worth of frames has been rendered. Stereo chips fill interleaved frames.
func (p *Player) Callback(buf []int16) {
	chans := p.chip.Channels()
	frames := len(buf) / chans
	pos := 0
	for pos < frames {
		if p.left == 0 {
			p.drv.Tick()
			p.left = p.perTick
			p.acc += p.rem
			if p.acc >= TickRate {
				p.acc -= TickRate
				p.left++
			}
			if p.left == 0 {
				continue
			}
		}
		n := frames - pos
		if n > p.left {
			n = p.left
		}
		p.chip.Generate(buf[pos*chans : (pos+n)*chans])
		pos += n
		p.left -= n
	}
	if p.filter != nil {
		p.filter.apply(buf[:frames*chans], chans)
	}
}

// PlayTrack starts a track from the song's track table as music.
func (p *Player) PlayTrack(track int) error {
	prog, err := p.song.Track(track)
	if err != nil {
		return err
	}
	if err := p.drv.PlayTrack(prog); err != nil {
		return fmt.Errorf("adlib: track %d: %w", track, err)
	}
	return nil
}

// PlaySoundEffect starts a track as a sound effect. It reports whether the
// effect took its channel.
func (p *Player) PlaySoundEffect(track int) (bool, error) {
	prog, err := p.song.Track(track)
	if err != nil {
		return false, err
	}
	ok, err := p.drv.PlaySoundEffect(prog)
	if err != nil {
		return false, fmt.Errorf("adlib: effect %d: %w", track, err)
	}
	return ok, nil
}

func (p *Player) HaltTrack()    { p.drv.HaltTrack() }
func (p *Player) ResumeTrack()  { p.drv.ResumeTrack() }
func (p *Player) BeginFadeOut() { p.drv.BeginFadeOut() }
func (p *Player) IsPlaying() bool {
	return p.drv.IsPlaying()
}

// Subsongs lists the playable tracks of the song.
func (p *Player) Subsongs() []int {
	return p.song.Subsongs()
}
