// Package config loads player settings from an ini file.
//
//	[audio]
//	sample_rate = 44100
//	chip        = opl2
//	backend     = dosbox
//	free_run    = false
//	volume      = 1.0
//	lowpass_hz  = 0
//
//	[player]
//	track    = 0
//	seconds  = 0
//	fade_out = false
//	trace    = false
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/user-none/go-adlib/opl"
	"gopkg.in/ini.v1"
)

// Audio holds the chip and output settings.
type Audio struct {
	SampleRate int     `ini:"sample_rate"`
	Chip       string  `ini:"chip"`
	Backend    string  `ini:"backend"`
	FreeRun    bool    `ini:"free_run"`
	Volume     float64 `ini:"volume"`
	LowPassHz  float64 `ini:"lowpass_hz"` // 0 disables the output filter
}

// Player holds the playback settings.
type Player struct {
	Track   int  `ini:"track"`
	Seconds int  `ini:"seconds"` // 0 plays until the track ends
	FadeOut bool `ini:"fade_out"`
	Trace   bool `ini:"trace"`
}

// Config is the full settings file.
type Config struct {
	Audio  Audio  `ini:"audio"`
	Player Player `ini:"player"`
}

// ErrInvalid is wrapped by every Validate and ChipConfig failure.
var ErrInvalid = errors.New("invalid setting")

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Audio: Audio{
			SampleRate: 44100,
			Chip:       "opl2",
			Backend:    "dosbox",
			Volume:     1.0,
		},
	}
}

var loadOptions = ini.LoadOptions{
	InsensitiveSections:     true,
	InsensitiveKeys:         true,
	SkipUnrecognizableLines: true,
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := ini.LoadSources(loadOptions, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := f.MapTo(&cfg); err != nil {
		return Default(), fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Parse reads settings from ini data over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	f, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := f.MapTo(&cfg); err != nil {
		return Default(), fmt.Errorf("config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Save writes the settings to path.
func (c Config) Save(path string) error {
	f := ini.Empty()
	if err := f.ReflectFrom(&c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := f.SaveTo(path); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Validate checks every field that has a fixed range.
func (c Config) Validate() error {
	if _, err := c.ChipConfig(); err != nil {
		return err
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		return fmt.Errorf("config: volume %g: %w", c.Audio.Volume, ErrInvalid)
	}
	if c.Audio.LowPassHz < 0 {
		return fmt.Errorf("config: lowpass %g: %w", c.Audio.LowPassHz, ErrInvalid)
	}
	if c.Player.Track < 0 {
		return fmt.Errorf("config: track %d: %w", c.Player.Track, ErrInvalid)
	}
	if c.Player.Seconds < 0 {
		return fmt.Errorf("config: seconds %d: %w", c.Player.Seconds, ErrInvalid)
	}
	return nil
}

// ChipConfig converts the audio section to a chip configuration.
func (c Config) ChipConfig() (opl.Config, error) {
	t, err := opl.ParseType(c.Audio.Chip)
	if err != nil {
		return opl.Config{}, fmt.Errorf("config: %w", err)
	}
	b, err := opl.ParseBackend(c.Audio.Backend)
	if err != nil {
		return opl.Config{}, fmt.Errorf("config: %w", err)
	}
	if c.Audio.SampleRate < opl.MinSampleRate || c.Audio.SampleRate > opl.MaxSampleRate {
		return opl.Config{}, fmt.Errorf("config: sample rate %d: %w", c.Audio.SampleRate, ErrInvalid)
	}
	return opl.Config{
		SampleRate:   c.Audio.SampleRate,
		Type:         t,
		Backend:      b,
		FreeRunPhase: c.Audio.FreeRun,
	}, nil
}
