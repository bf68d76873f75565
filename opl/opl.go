// Package opl emulates the Yamaha YM3812 (OPL2) and YMF262 (OPL3) FM
// synthesizers. A Chip accepts register writes through the two-port
// address/data protocol and renders signed 16-bit PCM on demand.
//
// Two independent emulation cores sit behind the Handler interface: a
// cycle-step core (BackendDOSBox) and a table-driven core (BackendMAME).
// For OPL2 and dual OPL2 they produce identical output.
package opl

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Type selects the emulated chip configuration.
type Type int

const (
	TypeOPL2     Type = iota // Single YM3812, mono
	TypeDualOPL2             // Two YM3812, left and right
	TypeOPL3                 // YMF262, stereo
)

func (t Type) String() string {
	switch t {
	case TypeOPL2:
		return "opl2"
	case TypeDualOPL2:
		return "dual-opl2"
	case TypeOPL3:
		return "opl3"
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Backend selects the emulation core.
type Backend int

const (
	BackendDOSBox Backend = iota // Cycle-step core
	BackendMAME                  // Table-driven core
)

func (b Backend) String() string {
	switch b {
	case BackendDOSBox:
		return "dosbox"
	case BackendMAME:
		return "mame"
	}
	return fmt.Sprintf("Backend(%d)", int(b))
}

// ParseBackend maps a backend name to its value.
func ParseBackend(name string) (Backend, error) {
	switch name {
	case "dosbox":
		return BackendDOSBox, nil
	case "mame":
		return BackendMAME, nil
	}
	return 0, fmt.Errorf("opl: backend %q: %w", name, ErrUnknownBackend)
}

// ParseType maps a chip type name to its value.
func ParseType(name string) (Type, error) {
	switch name {
	case "opl2":
		return TypeOPL2, nil
	case "dual-opl2":
		return TypeDualOPL2, nil
	case "opl3":
		return TypeOPL3, nil
	}
	return 0, fmt.Errorf("opl: type %q: %w", name, ErrUnsupportedType)
}

// Supported output sample rates.
const (
	MinSampleRate = 1000
	MaxSampleRate = 384000
)

// Errors returned by New, the name parsers and Claim.
var (
	// ErrUnsupportedRate means the sample rate is outside MinSampleRate..MaxSampleRate.
	ErrUnsupportedRate = errors.New("unsupported sample rate")
	// ErrUnsupportedType means the backend cannot emulate the chip type.
	ErrUnsupportedType = errors.New("unsupported chip type for backend")
	// ErrUnknownBackend means the backend value or name is not recognized.
	ErrUnknownBackend = errors.New("unknown backend")
	// ErrChipClaimed means another owner already drives the chip.
	ErrChipClaimed = errors.New("chip already claimed")
)

// Config describes a chip instance.
type Config struct {
	SampleRate int
	Type       Type
	Backend    Backend

	// FreeRunPhase keeps the phase accumulator running across key-on
	// instead of restarting it, as some chip revisions do.
	FreeRunPhase bool
}

// Chip is the register front end of an emulated OPL. It owns the latch,
// a shadow copy of every register, the timer pair(s) and the core.
type Chip struct {
	cfg     Config
	handler Handler

	latch  [2]uint32     // Address latch per port pair
	regs   [2][256]uint8 // Raw register shadow, bank/chip 0 and 1
	timers [2]timerPair  // Chip 0/1 (dual OPL2); OPL3 uses index 0
	hook   func(uint32, uint8)

	claimed atomic.Bool
}

// New creates a chip. It returns an error if the core cannot be
// initialized at the requested rate or does not support the type.
func New(cfg Config) (*Chip, error) {
	if cfg.SampleRate < MinSampleRate || cfg.SampleRate > MaxSampleRate {
		return nil, fmt.Errorf("opl: %d Hz: %w", cfg.SampleRate, ErrUnsupportedRate)
	}
	h, err := newHandler(cfg)
	if err != nil {
		return nil, fmt.Errorf("opl: %s/%s: %w", cfg.Backend, cfg.Type, err)
	}
	if err := h.Init(cfg.SampleRate); err != nil {
		return nil, fmt.Errorf("opl: init %s/%s: %w", cfg.Backend, cfg.Type, err)
	}
	c := &Chip{cfg: cfg, handler: h}
	c.timers[0].reset()
	c.timers[1].reset()
	return c, nil
}

// Config returns the configuration the chip was built with.
func (c *Chip) Config() Config {
	return c.cfg
}

// SampleRate returns the output sample rate.
func (c *Chip) SampleRate() int {
	return c.cfg.SampleRate
}

// IsStereo reports whether Generate produces interleaved L/R frames.
func (c *Chip) IsStereo() bool {
	return c.cfg.Type != TypeOPL2
}

// Channels returns 1 for mono chips and 2 for stereo chips.
func (c *Chip) Channels() int {
	if c.IsStereo() {
		return 2
	}
	return 1
}

// Reset returns every register, timer and core state to power-on.
func (c *Chip) Reset() {
	if err := c.handler.Init(c.cfg.SampleRate); err != nil {
		panic(fmt.Sprintf("opl: re-init of a working core failed: %v", err))
	}
	c.latch = [2]uint32{}
	c.regs = [2][256]uint8{}
	c.timers[0].reset()
	c.timers[1].reset()
}

// WriteAddr latches a register address written to a port and returns the
// resolved address.
func (c *Chip) WriteAddr(port uint32, val uint8) uint32 {
	addr := c.handler.WriteAddr(port, val)
	c.latch[c.latchIndex(port)] = addr
	return addr
}

// Write performs a raw port write: even ports latch an address, odd
// ports write data to the latched register.
func (c *Chip) Write(port uint32, val uint8) {
	if port&1 == 0 {
		c.WriteAddr(port, val)
		return
	}
	c.WriteReg(c.latch[c.latchIndex(port)], val)
}

func (c *Chip) latchIndex(port uint32) int {
	if c.cfg.Type == TypeDualOPL2 {
		return int((port >> 1) & 1)
	}
	return 0
}

// WriteReg writes val to a resolved register address. Timer registers are
// handled here; everything else is decoded by the core.
func (c *Chip) WriteReg(addr uint32, val uint8) {
	if c.cfg.Type == TypeOPL2 {
		addr &= 0xFF
	} else {
		addr &= 0x1FF
	}
	if c.hook != nil {
		c.hook(addr, val)
	}
	bank := int(addr>>8) & 1
	reg := uint8(addr)
	c.regs[bank][reg] = val

	if reg >= 0x02 && reg <= 0x04 && (c.cfg.Type != TypeOPL3 || bank == 0) {
		c.timers[bank].write(reg, val)
		return
	}
	c.handler.WriteReg(addr, val)
}

// ReadStatus reads a port. Address ports return the timer status of the
// selected chip; data ports read back 0xFF.
func (c *Chip) ReadStatus(port uint32) uint8 {
	if port&1 != 0 {
		return 0xFF
	}
	if c.cfg.Type == TypeDualOPL2 {
		return c.timers[(port>>1)&1].status()
	}
	return c.timers[0].status()
}

// Generate renders len(buf) samples (mono) or len(buf)/2 frames (stereo)
// and advances the timers by the same number of samples.
func (c *Chip) Generate(buf []int16) {
	frames := len(buf) / c.Channels()
	if frames == 0 {
		return
	}
	rate := uint64(c.cfg.SampleRate)
	c.timers[0].advance(frames, rate)
	if c.cfg.Type == TypeDualOPL2 {
		c.timers[1].advance(frames, rate)
	}
	c.handler.Generate(buf[:frames*c.Channels()])
}

// Register returns the last value written to a register.
func (c *Chip) Register(addr uint32) uint8 {
	return c.regs[(addr>>8)&1][uint8(addr)]
}

// Registers returns a copy of the raw register shadow. Index 0 is bank 0
// (or the left chip), index 1 bank 1 (or the right chip).
func (c *Chip) Registers() [2][256]uint8 {
	return c.regs
}

// SetWriteHook installs a function called for every register write, in
// issue order. Pass nil to remove it.
func (c *Chip) SetWriteHook(fn func(addr uint32, val uint8)) {
	c.hook = fn
}

// Claim marks the chip as exclusively driven by one owner.
func (c *Chip) Claim() error {
	if !c.claimed.CompareAndSwap(false, true) {
		return ErrChipClaimed
	}
	return nil
}

// Release ends an exclusive claim.
func (c *Chip) Release() {
	c.claimed.Store(false)
}
