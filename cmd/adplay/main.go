package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/user-none/go-adlib/adlib"
	"github.com/user-none/go-adlib/cli"
	"github.com/user-none/go-adlib/config"
	"github.com/user-none/go-adlib/opl"
	"github.com/user-none/go-adlib/wavout"
)

func main() {
	songPath := flag.String("song", "", "path to an AdLib song file (required)")
	configPath := flag.String("config", "", "path to an ini settings file")
	track := flag.Int("track", 0, "track number to play")
	rate := flag.Int("rate", 0, "output sample rate")
	chip := flag.String("chip", "", "chip: opl2, dual-opl2, or opl3")
	backend := flag.String("backend", "", "emulation core: dosbox or mame")
	freeRun := flag.Bool("free-run", false, "keep operator phase running across key-on")
	seconds := flag.Int("seconds", 0, "stop after this many seconds (0 = end of track)")
	fade := flag.Bool("fade", false, "fade out at the time limit instead of cutting off")
	trace := flag.Bool("trace", false, "print every register write")
	wavPath := flag.String("wav", "", "render to a WAV file instead of playing")
	lowpass := flag.Float64("lowpass", 0, "output low-pass cutoff in Hz (0 = off)")
	list := flag.Bool("list", false, "list the tracks in the song and exit")
	saveConfig := flag.Bool("save-config", false, "write the effective settings to -config and exit")
	status := flag.Bool("status", false, "print every active channel with the once-a-second position line")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	// Flags given on the command line override the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "track":
			cfg.Player.Track = *track
		case "rate":
			cfg.Audio.SampleRate = *rate
		case "chip":
			cfg.Audio.Chip = *chip
		case "backend":
			cfg.Audio.Backend = *backend
		case "free-run":
			cfg.Audio.FreeRun = *freeRun
		case "seconds":
			cfg.Player.Seconds = *seconds
		case "fade":
			cfg.Player.FadeOut = *fade
		case "trace":
			cfg.Player.Trace = *trace
		case "lowpass":
			cfg.Audio.LowPassHz = *lowpass
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}

	if *saveConfig {
		if *configPath == "" {
			log.Fatal("-save-config needs -config")
		}
		if err := cfg.Save(*configPath); err != nil {
			log.Fatalf("Failed to save config: %v", err)
		}
		return
	}

	if *songPath == "" {
		log.Fatal("Song path is required. Usage: adplay -song <path>")
	}
	data, err := os.ReadFile(*songPath)
	if err != nil {
		log.Fatalf("Failed to load song: %v", err)
	}

	if *list {
		song, err := adlib.ParseSong(data)
		if err != nil {
			log.Fatalf("Failed to parse song: %v", err)
		}
		for _, n := range song.Subsongs() {
			prog, _ := song.Track(n)
			fmt.Printf("track %3d -> program %3d\n", n, prog)
		}
		return
	}

	chipCfg, err := cfg.ChipConfig()
	if err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}
	c, err := opl.New(chipCfg)
	if err != nil {
		log.Fatalf("Failed to initialize chip: %v", err)
	}
	player, err := adlib.NewPlayer(c, data)
	if err != nil {
		log.Fatalf("Failed to load song: %v", err)
	}
	err = play(player, c, cfg, *wavPath, *status)
	player.Close()
	if err != nil {
		log.Fatal(err)
	}
}

// play starts the configured track and renders it to the WAV file or the
// audio device. Cleanup runs before it returns.
func play(player *adlib.Player, c *opl.Chip, cfg config.Config, wavPath string, status bool) error {
	player.SetLowPass(cfg.Audio.LowPassHz)
	if err := player.PlayTrack(cfg.Player.Track); err != nil {
		return fmt.Errorf("failed to start track: %w", err)
	}

	frames := int64(cfg.Player.Seconds) * int64(c.SampleRate())

	if wavPath != "" {
		return renderWAV(wavPath, player, c, frames, cfg.Player.FadeOut)
	}

	opts := cli.Options{
		Volume:  cfg.Audio.Volume,
		Frames:  frames,
		FadeOut: cfg.Player.FadeOut,
	}
	if cfg.Player.Trace {
		opts.Trace = os.Stdout
	}
	runner := cli.NewRunner(player, c, opts)
	defer runner.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	toggle := make(chan os.Signal, 1)
	if len(pauseSignals) > 0 {
		signal.Notify(toggle, pauseSignals...)
		defer signal.Stop(toggle)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-runner.Done():
			break loop
		case <-interrupt:
			break loop
		case <-toggle:
			if runner.Paused() {
				runner.Resume()
			} else {
				runner.Pause()
			}
		case <-ticker.C:
			printStatus(runner, c.SampleRate(), status)
		}
	}
	for _, f := range faults(player) {
		log.Printf("Warning: %s", f)
	}
	return nil
}

// printStatus writes the playback position, and with verbose the state of
// every active channel, to stderr.
func printStatus(r *cli.Runner, rate int, verbose bool) {
	frames, playing, lines := r.Status()
	state := "playing"
	switch {
	case r.Paused():
		state = "paused"
	case !playing:
		state = "stopped"
	}
	fmt.Fprintf(os.Stderr, "%s %s %d ch\n", cli.FormatTime(frames, rate), state, len(lines))
	if verbose {
		for _, l := range lines {
			fmt.Fprintln(os.Stderr, "  "+l)
		}
	}
}

// maxWAVSeconds bounds an offline render of a looping track.
const maxWAVSeconds = 600

func renderWAV(path string, p *adlib.Player, c *opl.Chip, frames int64, fade bool) error {
	limit := frames
	if limit == 0 || fade {
		limit = maxWAVSeconds * int64(c.SampleRate())
	}

	src := &countingSource{p: p, chans: c.Channels()}
	return writeFile(path, func(w io.WriteSeeker) error {
		_, err := wavout.Render(w, src, wavout.Options{
			SampleRate: c.SampleRate(),
			Channels:   c.Channels(),
			Frames:     int(limit),
			Stop: func() bool {
				if fade && frames > 0 && src.frames >= frames {
					p.BeginFadeOut()
				}
				return !p.IsPlaying()
			},
		})
		return err
	})
}

// writeFile creates path and fills it with write. The file is removed
// when write or the close fails.
func writeFile(path string, write func(io.WriteSeeker) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	err = write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to render %s: %w", path, err)
	}
	return nil
}

// countingSource counts the frames pulled through a player.
type countingSource struct {
	p      *adlib.Player
	chans  int
	frames int64
}

func (s *countingSource) Callback(buf []int16) {
	s.p.Callback(buf)
	s.frames += int64(len(buf) / s.chans)
}

func faults(p *adlib.Player) []string {
	var out []string
	for i := 0; i < adlib.NumChannels; i++ {
		if err := p.Driver().Fault(i); err != nil {
			out = append(out, fmt.Sprintf("channel %d: %v", i, err))
		}
	}
	return out
}
