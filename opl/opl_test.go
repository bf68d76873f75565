package opl

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"
)

// newTestChip builds a chip or fails the test.
func newTestChip(t *testing.T, typ Type, backend Backend) *Chip {
	t.Helper()
	c, err := New(Config{SampleRate: 44100, Type: typ, Backend: backend})
	if err != nil {
		t.Fatalf("New(%s/%s): %v", backend, typ, err)
	}
	return c
}

// writeAll applies a sequence of register/value pairs through the ports.
func writeAll(c *Chip, regs [][2]uint32) {
	for _, rv := range regs {
		port := uint32(0)
		if rv[0]&0x100 != 0 {
			port = 2
		}
		c.Write(port, uint8(rv[0]))
		c.Write(port+1, uint8(rv[1]))
	}
}

// sineVoice is a plain sine on channel ch: silent modulator, carrier with
// instant attack, sustain hold and fast release.
func sineVoice(ch int) [][2]uint32 {
	off := uint32(channelSlotOffset[ch%9])
	base := uint32(0)
	if ch >= 9 {
		base = 0x100
	}
	c := uint32(ch % 9)
	return [][2]uint32{
		{base | 0x20 + off, 0x21},
		{base | 0x23 + off, 0x21},
		{base | 0x40 + off, 0x3F},
		{base | 0x43 + off, 0x00},
		{base | 0x60 + off, 0xF0},
		{base | 0x63 + off, 0xF0},
		{base | 0x80 + off, 0x0F},
		{base | 0x83 + off, 0x0F},
		{base | 0xC0 + c, 0x30},
		{base | 0xA0 + c, 0x41},
		{base | 0xB0 + c, 0x32}, // key on, block 4
	}
}

func keyOffVoice(ch int) [][2]uint32 {
	base := uint32(0)
	if ch >= 9 {
		base = 0x100
	}
	return [][2]uint32{{base | 0xB0 + uint32(ch%9), 0x12}}
}

// hashInt16Buffer computes SHA-256 of a buffer of int16 values (little-endian).
func hashInt16Buffer(buf []int16) [32]byte {
	b := make([]byte, len(buf)*2)
	for i, v := range buf {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return sha256.Sum256(b)
}

func allZero(buf []int16) bool {
	for _, v := range buf {
		if v != 0 {
			return false
		}
	}
	return true
}

func TestNew_RateLimits(t *testing.T) {
	tests := []struct {
		rate int
		ok   bool
	}{
		{999, false},
		{1000, true},
		{44100, true},
		{384000, true},
		{384001, false},
		{0, false},
	}
	for _, tt := range tests {
		_, err := New(Config{SampleRate: tt.rate, Type: TypeOPL2})
		if tt.ok && err != nil {
			t.Errorf("%d Hz: unexpected error %v", tt.rate, err)
		}
		if !tt.ok && !errors.Is(err, ErrUnsupportedRate) {
			t.Errorf("%d Hz: expected ErrUnsupportedRate, got %v", tt.rate, err)
		}
	}
}

func TestNew_MAMERejectsOPL3(t *testing.T) {
	c, err := New(Config{SampleRate: 44100, Type: TypeOPL3, Backend: BackendMAME})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if c != nil {
		t.Error("expected nil chip on error")
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(Config{SampleRate: 44100, Type: TypeOPL2, Backend: Backend(7)})
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestParseNames(t *testing.T) {
	for _, b := range []Backend{BackendDOSBox, BackendMAME} {
		got, err := ParseBackend(b.String())
		if err != nil || got != b {
			t.Errorf("ParseBackend(%q) = %v, %v", b.String(), got, err)
		}
	}
	for _, typ := range []Type{TypeOPL2, TypeDualOPL2, TypeOPL3} {
		got, err := ParseType(typ.String())
		if err != nil || got != typ {
			t.Errorf("ParseType(%q) = %v, %v", typ.String(), got, err)
		}
	}
	if _, err := ParseBackend("nuked"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestChip_Channels(t *testing.T) {
	tests := []struct {
		typ    Type
		stereo bool
	}{
		{TypeOPL2, false},
		{TypeDualOPL2, true},
		{TypeOPL3, true},
	}
	for _, tt := range tests {
		c := newTestChip(t, tt.typ, BackendDOSBox)
		if c.IsStereo() != tt.stereo {
			t.Errorf("%s: expected stereo=%v", tt.typ, tt.stereo)
		}
	}
}

func TestChip_AddressLatch(t *testing.T) {
	c := newTestChip(t, TypeOPL3, BackendDOSBox)

	if got := c.WriteAddr(0, 0x20); got != 0x020 {
		t.Errorf("expected bank 0 address 0x020, got 0x%03X", got)
	}
	if got := c.WriteAddr(2, 0x05); got != 0x105 {
		t.Errorf("expected bank 1 address 0x105, got 0x%03X", got)
	}
	c.Write(3, 0x01)
	if c.Register(0x105) != 0x01 {
		t.Errorf("expected $105 = 0x01, got 0x%02X", c.Register(0x105))
	}
}

func TestChip_DualAddressSelectsChip(t *testing.T) {
	c := newTestChip(t, TypeDualOPL2, BackendDOSBox)

	c.Write(0, 0xA0)
	c.Write(2, 0xA0)
	c.Write(1, 0x11)
	c.Write(3, 0x22)
	if c.Register(0x0A0) != 0x11 {
		t.Errorf("expected left $A0 = 0x11, got 0x%02X", c.Register(0x0A0))
	}
	if c.Register(0x1A0) != 0x22 {
		t.Errorf("expected right $A0 = 0x22, got 0x%02X", c.Register(0x1A0))
	}
}

func TestChip_OPL2MasksBank(t *testing.T) {
	c := newTestChip(t, TypeOPL2, BackendDOSBox)
	c.WriteReg(0x1A0, 0x55)
	if c.Register(0x0A0) != 0x55 {
		t.Errorf("expected bank bit dropped, got $A0 = 0x%02X", c.Register(0x0A0))
	}
}

func TestChip_DataPortReadsFF(t *testing.T) {
	c := newTestChip(t, TypeOPL2, BackendDOSBox)
	if got := c.ReadStatus(1); got != 0xFF {
		t.Errorf("expected 0xFF from data port, got 0x%02X", got)
	}
	if got := c.ReadStatus(0); got != 0 {
		t.Errorf("expected status 0 at power-on, got 0x%02X", got)
	}
}

func TestChip_WriteHookOrder(t *testing.T) {
	c := newTestChip(t, TypeOPL2, BackendMAME)

	var trace [][2]uint32
	c.SetWriteHook(func(addr uint32, val uint8) {
		trace = append(trace, [2]uint32{addr, uint32(val)})
	})
	seq := sineVoice(0)
	writeAll(c, seq)

	if len(trace) != len(seq) {
		t.Fatalf("expected %d hooked writes, got %d", len(seq), len(trace))
	}
	for i := range seq {
		if trace[i] != seq[i] {
			t.Errorf("write %d: expected %03X=%02X, got %03X=%02X",
				i, seq[i][0], seq[i][1], trace[i][0], trace[i][1])
		}
	}

	c.SetWriteHook(nil)
	c.WriteReg(0x20, 0)
	if len(trace) != len(seq) {
		t.Error("expected no writes after removing the hook")
	}
}

func TestChip_Claim(t *testing.T) {
	c := newTestChip(t, TypeOPL2, BackendDOSBox)
	if err := c.Claim(); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := c.Claim(); !errors.Is(err, ErrChipClaimed) {
		t.Fatalf("expected ErrChipClaimed, got %v", err)
	}
	c.Release()
	if err := c.Claim(); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
}

func TestChip_ResetRestoresSilence(t *testing.T) {
	for _, b := range []Backend{BackendDOSBox, BackendMAME} {
		c := newTestChip(t, TypeOPL2, b)
		writeAll(c, sineVoice(0))
		buf := make([]int16, 1024)
		c.Generate(buf)
		if allZero(buf) {
			t.Fatalf("%s: expected sound before reset", b)
		}

		c.Reset()
		if c.Register(0xB0) != 0 {
			t.Errorf("%s: expected register shadow cleared", b)
		}
		c.Generate(buf)
		if !allZero(buf) {
			t.Errorf("%s: expected silence after reset", b)
		}
	}
}
