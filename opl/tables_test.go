package opl

import "testing"

func TestExpOutput_Monotonic(t *testing.T) {
	prev := expOutput(0)
	if prev <= 0 {
		t.Fatalf("expected positive full-scale output, got %d", prev)
	}
	for x := uint32(1); x <= logClampMax; x++ {
		v := expOutput(x)
		if v > prev {
			t.Fatalf("output rose at x=0x%04X: %d -> %d", x, prev, v)
		}
		prev = v
	}
	if expOutput(logSilent) != 0 {
		t.Errorf("expected silent log to produce 0, got %d", expOutput(logSilent))
	}
	if expOutput(0xFFFF) != 0 {
		t.Errorf("expected clamp to produce 0, got %d", expOutput(0xFFFF))
	}
}

func TestExpOutput_FloorIsSilent(t *testing.T) {
	// Envelope floor on the loudest wave point
	if v := expOutput(uint32(logSinRom[255]) + envMax<<3); v != 0 {
		t.Errorf("expected floor attenuation to be silent, got %d", v)
	}
}

func TestWaveforms_TableMatchesDecode(t *testing.T) {
	for w := uint8(0); w < mameWaves; w++ {
		for p := uint32(0); p < sinLen; p++ {
			log, neg := dbWave(w, p)
			want := log << 1
			if neg {
				want |= 1
			}
			if got := sinTab[uint32(w)*sinLen+p]; got != want {
				t.Fatalf("wave %d index %d: table 0x%04X, decode 0x%04X", w, p, got, want)
			}
		}
	}
}

func TestTables_DerivedFromFilledROMs(t *testing.T) {
	if logSinRom[0] == 0 || expRom[255] == 0 {
		t.Fatalf("expected filled ROMs, got logSin[0]=0x%X exp[255]=0x%X", logSinRom[0], expRom[255])
	}
	if sinTab[0] != logSinRom[0]<<1 {
		t.Errorf("expected sinTab[0] 0x%X, got 0x%X", logSinRom[0]<<1, sinTab[0])
	}
	if tlTab[0] != expOutput(0) || tlTab[1] != -expOutput(0) {
		t.Errorf("expected tlTab[0:2] = %d,%d, got %d,%d", expOutput(0), -expOutput(0), tlTab[0], tlTab[1])
	}
	if vibratoTable[7][1][0] != 7 {
		t.Errorf("expected deep vibrato peak 7, got %d", vibratoTable[7][1][0])
	}
}

func TestWaveforms_Shapes(t *testing.T) {
	sample := func(w uint8, p uint32) int32 {
		log, neg := dbWave(w, p)
		v := int32(expOutput(uint32(log)))
		if neg {
			v = -v
		}
		return v
	}

	// Quarter points: peak positive at 0x100, peak negative at 0x300
	tests := []struct {
		wave     uint8
		pos, neg int // sign at 0x0FF and 0x2FF: 1, -1 or 0 (silent)
	}{
		{0, 1, -1},
		{1, 1, 0},
		{2, 1, 1},
		{3, 1, 1},
		{4, 1, 0},
		{5, 1, 0},
		{6, 1, -1},
		{7, 1, -1},
	}
	sign := func(v int32) int {
		switch {
		case v > 0:
			return 1
		case v < 0:
			return -1
		}
		return 0
	}
	for _, tt := range tests {
		if got := sign(sample(tt.wave, 0x080)); got != tt.pos {
			t.Errorf("wave %d: expected sign %d in first half, got %d", tt.wave, tt.pos, got)
		}
		if got := sign(sample(tt.wave, 0x280)); got != tt.neg {
			t.Errorf("wave %d: expected sign %d in second half, got %d", tt.wave, tt.neg, got)
		}
	}

	// Pulse-sine is silent on the falling quarters
	if sample(3, 0x180) != 0 {
		t.Error("expected wave 3 silent in its second quarter")
	}
	// Square is always full scale
	if sample(6, 0x001) != int32(expOutput(0)) {
		t.Error("expected wave 6 at full scale")
	}
}

func TestAMTable_Shape(t *testing.T) {
	peak := uint8(0)
	for _, v := range amTable {
		if v > peak {
			peak = v
		}
	}
	if peak != 26 {
		t.Errorf("expected tremolo peak 26, got %d", peak)
	}
	if amTable[0] != 0 || amTable[amTableLen-1] != 1 {
		t.Errorf("expected triangle ends 0 and 1, got %d and %d", amTable[0], amTable[amTableLen-1])
	}
}

func TestVibratoTable_Symmetric(t *testing.T) {
	for n := 0; n < 8; n++ {
		for d := 0; d < 2; d++ {
			row := vibratoTable[n][d]
			for i := 0; i < 4; i++ {
				if row[i] != -row[i+4] {
					t.Errorf("fnum>>7=%d depth %d: position %d not mirrored", n, d, i)
				}
			}
		}
	}
	if vibratoTable[7][1][0] != 7 || vibratoTable[7][0][0] != 3 {
		t.Errorf("expected top offsets 7 (deep) and 3, got %d and %d",
			vibratoTable[7][1][0], vibratoTable[7][0][0])
	}
}

func TestPhaseBase_Frequency(t *testing.T) {
	// F-number 0x241, block 4 is A4 (~440 Hz) at the native rate
	inc := opIncrement(phaseBase(0x241, 4, freqBaseFor(44100)), multTable[1])
	hz := float64(inc) / 65536.0 / 1024.0 * 44100.0
	if hz < 436 || hz > 444 {
		t.Errorf("expected ~440 Hz, got %.2f", hz)
	}
}

func TestSustainLevel(t *testing.T) {
	if sustainLevel(0) != 0 || sustainLevel(1) != 16 || sustainLevel(14) != 224 || sustainLevel(15) != 496 {
		t.Error("unexpected sustain level mapping")
	}
}

func TestSlotDecode(t *testing.T) {
	tests := []struct {
		offset uint8
		ch, op int8
	}{
		{0x00, 0, 0},
		{0x03, 0, 1},
		{0x05, 2, 1},
		{0x06, -1, -1},
		{0x08, 3, 0},
		{0x15, 8, 1},
		{0x16, -1, -1},
	}
	for _, tt := range tests {
		if slotChannel[tt.offset] != tt.ch || slotOperator[tt.offset] != tt.op {
			t.Errorf("offset 0x%02X: expected ch%d op%d, got ch%d op%d",
				tt.offset, tt.ch, tt.op, slotChannel[tt.offset], slotOperator[tt.offset])
		}
	}
}

func TestRhythmPhases(t *testing.T) {
	hh, sd, cy := rhythmPhases(0, 0, 0)
	if hh != 0x34 || sd != 0 || cy != 0x80 {
		t.Errorf("expected 0x34/0x000/0x080, got 0x%03X/0x%03X/0x%03X", hh, sd, cy)
	}
	hh, sd, _ = rhythmPhases(0x100, 0, 1)
	if hh != 0xD0 || sd != 0x200 {
		t.Errorf("expected 0x0D0/0x200, got 0x%03X/0x%03X", hh, sd)
	}
	hh, _, cy = rhythmPhases(0x004, 0, 0)
	if hh != 0x2D0 || cy != 0x280 {
		t.Errorf("expected 0x2D0/0x280, got 0x%03X/0x%03X", hh, cy)
	}
}
