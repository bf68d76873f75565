package opl

import (
	"math"
	"testing"
)

// scoreStep is a write batch followed by a number of rendered frames.
type scoreStep struct {
	regs   [][2]uint32
	frames int
}

// render plays a score on a fresh chip and returns the whole output.
func render(t *testing.T, typ Type, backend Backend, score []scoreStep) []int16 {
	t.Helper()
	c := newTestChip(t, typ, backend)
	var out []int16
	for _, st := range score {
		writeAll(c, st.regs)
		buf := make([]int16, st.frames*c.Channels())
		c.Generate(buf)
		out = append(out, buf...)
	}
	return out
}

// melodyScore exercises feedback, both algorithms, vibrato, tremolo, KSL,
// KSR, waveforms, NTS and the rhythm section on a single OPL2.
func melodyScore(bank uint32) []scoreStep {
	b := func(regs ...[2]uint32) [][2]uint32 {
		for i := range regs {
			regs[i][0] |= bank
		}
		return regs
	}
	return []scoreStep{
		{regs: b(
			[2]uint32{0x01, 0x20}, // WSE
			[2]uint32{0x08, 0x40}, // NTS
			[2]uint32{0xBD, 0xC0}, // deep AM and vibrato
		), frames: 16},
		// Channel 0: FM with feedback, vibrato carrier
		{regs: b(
			[2]uint32{0x20, 0x21}, [2]uint32{0x23, 0x61},
			[2]uint32{0x40, 0x50}, [2]uint32{0x43, 0x80},
			[2]uint32{0x60, 0xC4}, [2]uint32{0x63, 0xA3},
			[2]uint32{0x80, 0x47}, [2]uint32{0x83, 0x36},
			[2]uint32{0xE0, 0x01}, [2]uint32{0xE3, 0x02},
			[2]uint32{0xC0, 0x0C},
			[2]uint32{0xA0, 0x98}, [2]uint32{0xB0, 0x31},
		), frames: 2000},
		// Channel 1: additive, tremolo, KSR, percussive envelope
		{regs: b(
			[2]uint32{0x21, 0x92}, [2]uint32{0x24, 0x84},
			[2]uint32{0x41, 0x10}, [2]uint32{0x44, 0xC8},
			[2]uint32{0x61, 0xF2}, [2]uint32{0x64, 0x75},
			[2]uint32{0x81, 0x24}, [2]uint32{0x84, 0x58},
			[2]uint32{0xE1, 0x03},
			[2]uint32{0xC1, 0x07},
			[2]uint32{0xA1, 0x44}, [2]uint32{0xB1, 0x2E},
		), frames: 3000},
		// Rhythm: bass drum, snare, hi-hat
		{regs: b(
			[2]uint32{0x30, 0x01}, [2]uint32{0x33, 0x01},
			[2]uint32{0x50, 0x0A}, [2]uint32{0x53, 0x00},
			[2]uint32{0x70, 0xF8}, [2]uint32{0x73, 0xF6},
			[2]uint32{0x90, 0x77}, [2]uint32{0x93, 0x77},
			[2]uint32{0x31, 0x01}, [2]uint32{0x34, 0x01},
			[2]uint32{0x51, 0x00}, [2]uint32{0x54, 0x00},
			[2]uint32{0x71, 0xF7}, [2]uint32{0x74, 0xF7},
			[2]uint32{0x91, 0x57}, [2]uint32{0x94, 0x57},
			[2]uint32{0x32, 0x05}, [2]uint32{0x35, 0x01},
			[2]uint32{0x72, 0xF7}, [2]uint32{0x75, 0xF6},
			[2]uint32{0x92, 0x57}, [2]uint32{0x95, 0x67},
			[2]uint32{0xC6, 0x08},
			[2]uint32{0xA6, 0x57}, [2]uint32{0xB6, 0x09},
			[2]uint32{0xA7, 0x03}, [2]uint32{0xB7, 0x0A},
			[2]uint32{0xA8, 0x57}, [2]uint32{0xB8, 0x09},
			[2]uint32{0xBD, 0xF9},
		), frames: 2500},
		{regs: b([2]uint32{0xBD, 0xE6}), frames: 2500},
		// Pitch change mid-note and key-offs
		{regs: b([2]uint32{0xA0, 0x20}, [2]uint32{0xB0, 0x36}), frames: 1500},
		{regs: b([2]uint32{0xB0, 0x16}, [2]uint32{0xB1, 0x0E}), frames: 1500},
		// Rhythm off, waveform select disabled (E0 writes ignored)
		{regs: b(
			[2]uint32{0xBD, 0x00},
			[2]uint32{0x01, 0x00},
			[2]uint32{0xE3, 0x00},
			[2]uint32{0xB0, 0x31},
		), frames: 4000},
	}
}

func TestBackends_IdenticalOPL2(t *testing.T) {
	score := melodyScore(0)
	a := render(t, TypeOPL2, BackendDOSBox, score)
	b := render(t, TypeOPL2, BackendMAME, score)
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d: dosbox %d, mame %d", i, a[i], b[i])
		}
	}
	if allZero(a) {
		t.Fatal("expected the score to produce sound")
	}
}

func TestBackends_IdenticalDualOPL2(t *testing.T) {
	score := melodyScore(0)
	right := melodyScore(0x100)
	// Right chip plays a shifted copy so the two sides differ
	right[1].regs = append(right[1].regs, [2]uint32{0x1A0, 0x30})
	for i := range score {
		score[i].regs = append(score[i].regs, right[i].regs...)
	}

	a := render(t, TypeDualOPL2, BackendDOSBox, score)
	b := render(t, TypeDualOPL2, BackendMAME, score)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d: dosbox %d, mame %d", i, a[i], b[i])
		}
	}

	same := true
	for i := 0; i+1 < len(a); i += 2 {
		if a[i] != a[i+1] {
			same = false
			break
		}
	}
	if same {
		t.Error("expected left and right chips to differ")
	}
}

func TestBackends_IdenticalAtOddRates(t *testing.T) {
	for _, rate := range []int{8000, 22050, 49716, 96000} {
		var out [2][]int16
		for i, backend := range []Backend{BackendDOSBox, BackendMAME} {
			c, err := New(Config{SampleRate: rate, Type: TypeOPL2, Backend: backend})
			if err != nil {
				t.Fatal(err)
			}
			for _, st := range melodyScore(0) {
				writeAll(c, st.regs)
				buf := make([]int16, st.frames/4)
				c.Generate(buf)
				out[i] = append(out[i], buf...)
			}
		}
		for i := range out[0] {
			if out[0][i] != out[1][i] {
				t.Fatalf("%d Hz sample %d: dosbox %d, mame %d", rate, i, out[0][i], out[1][i])
			}
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	for _, typ := range []Type{TypeOPL2, TypeOPL3} {
		a := hashInt16Buffer(render(t, typ, BackendDOSBox, melodyScore(0)))
		b := hashInt16Buffer(render(t, typ, BackendDOSBox, melodyScore(0)))
		if a != b {
			t.Errorf("%s: expected identical hashes, got %x and %x", typ, a, b)
		}
	}
}

func TestGenerate_PowerOnSilence(t *testing.T) {
	for _, typ := range []Type{TypeOPL2, TypeDualOPL2, TypeOPL3} {
		for _, backend := range []Backend{BackendDOSBox, BackendMAME} {
			if backend == BackendMAME && typ == TypeOPL3 {
				continue
			}
			c := newTestChip(t, typ, backend)
			buf := make([]int16, 8192)
			c.Generate(buf)
			if !allZero(buf) {
				t.Errorf("%s/%s: expected silence at power-on", backend, typ)
			}
		}
	}
}

func TestGenerate_KeyOffReachesSilence(t *testing.T) {
	for _, backend := range []Backend{BackendDOSBox, BackendMAME} {
		out := render(t, TypeOPL2, backend, []scoreStep{
			{regs: sineVoice(0), frames: 2048},
			{regs: keyOffVoice(0), frames: 4096},
		})
		if allZero(out[:2048]) {
			t.Fatalf("%s: expected sound while keyed", backend)
		}
		if !allZero(out[len(out)-2048:]) {
			t.Errorf("%s: expected silence after release", backend)
		}
	}
}

func TestGenerate_ZeroLengthBuffer(t *testing.T) {
	c := newTestChip(t, TypeOPL3, BackendDOSBox)
	c.Generate(nil)
	c.Generate(make([]int16, 1)) // less than one stereo frame
}

func rms(buf []int16) float64 {
	var sum float64
	for _, v := range buf {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(buf)))
}

func TestGenerate_AttackReleaseShape(t *testing.T) {
	// Slow attack and release on a pure carrier
	voice := [][2]uint32{
		{0x20, 0x21}, {0x23, 0x21},
		{0x40, 0x3F}, {0x43, 0x00},
		{0x60, 0x60}, {0x63, 0x60},
		{0x80, 0x05}, {0x83, 0x05},
		{0xC0, 0x01},
		{0xA0, 0x41}, {0xB0, 0x32},
	}
	const window = 441
	for _, backend := range []Backend{BackendDOSBox, BackendMAME} {
		out := render(t, TypeOPL2, backend, []scoreStep{
			{regs: voice, frames: window * 20},
			{regs: [][2]uint32{{0xB0, 0x12}}, frames: window * 60},
		})

		first := rms(out[:window])
		peak := rms(out[19*window : 20*window])
		if peak < first*2 {
			t.Errorf("%s: expected attack to rise, first %.1f peak %.1f", backend, first, peak)
		}

		prev := peak
		for w := 21; w < 80; w += 5 {
			r := rms(out[w*window : (w+1)*window])
			if r > prev*1.05 {
				t.Errorf("%s: window %d rose during release: %.1f after %.1f", backend, w, r, prev)
			}
			prev = r
		}
		if prev > peak/4 {
			t.Errorf("%s: expected release to decay, peak %.1f end %.1f", backend, peak, prev)
		}
	}
}

func TestGenerate_FreeRunPhase(t *testing.T) {
	c, err := New(Config{SampleRate: 44100, Type: TypeOPL2, FreeRunPhase: true})
	if err != nil {
		t.Fatal(err)
	}
	writeAll(c, sineVoice(0))
	c.Generate(make([]int16, 100))
	core := c.handler.(*dosboxCore)
	before := core.ch[0].op[1].phase

	writeAll(c, keyOffVoice(0))
	c.Generate(make([]int16, 1024))
	writeAll(c, [][2]uint32{{0xB0, 0x32}})
	if core.ch[0].op[1].phase == 0 || core.ch[0].op[1].phase == before {
		t.Errorf("expected free-running phase, got 0x%08X", core.ch[0].op[1].phase)
	}

	d := newTestChip(t, TypeOPL2, BackendDOSBox)
	writeAll(d, sineVoice(0))
	d.Generate(make([]int16, 100))
	writeAll(d, keyOffVoice(0))
	d.Generate(make([]int16, 1024))
	writeAll(d, [][2]uint32{{0xB0, 0x32}})
	if p := d.handler.(*dosboxCore).ch[0].op[1].phase; p != 0 {
		t.Errorf("expected phase reset on key-on, got 0x%08X", p)
	}
}

func TestOPL3_PanRouting(t *testing.T) {
	voice := sineVoice(0)
	voice[8] = [2]uint32{0xC0, 0x10} // left only
	out := render(t, TypeOPL3, BackendDOSBox, []scoreStep{
		{regs: [][2]uint32{{0x105, 0x01}}, frames: 1},
		{regs: voice, frames: 1024},
	})
	var left, right bool
	for i := 0; i+1 < len(out); i += 2 {
		left = left || out[i] != 0
		right = right || out[i+1] != 0
	}
	if !left || right {
		t.Errorf("expected left-only output, got left=%v right=%v", left, right)
	}
}

func TestOPL3_CompatModeIgnoresPan(t *testing.T) {
	voice := sineVoice(0)
	voice[8] = [2]uint32{0xC0, 0x10}
	out := render(t, TypeOPL3, BackendDOSBox, []scoreStep{{regs: voice, frames: 1024}})
	for i := 0; i+1 < len(out); i += 2 {
		if out[i] != out[i+1] {
			t.Fatalf("frame %d: expected L == R without NEW, got %d/%d", i/2, out[i], out[i+1])
		}
	}
}

func TestOPL3_MatchesOPL2InCompatMode(t *testing.T) {
	score := melodyScore(0)
	mono := render(t, TypeOPL2, BackendDOSBox, score)
	stereo := render(t, TypeOPL3, BackendDOSBox, score)
	for i := range mono {
		if stereo[i*2] != mono[i] {
			t.Fatalf("sample %d: OPL3 %d, OPL2 %d", i, stereo[i*2], mono[i])
		}
	}
}

func TestOPL3_FourOpPairing(t *testing.T) {
	// Serial 4-op: only the chained carrier (op 4, channel 3 op 2) is loud
	regs := [][2]uint32{
		{0x105, 0x01},
		{0x104, 0x01},
	}
	for _, off := range []uint32{0x00, 0x03, 0x08, 0x0B} {
		regs = append(regs,
			[2]uint32{0x20 + off, 0x21},
			[2]uint32{0x40 + off, 0x3F},
			[2]uint32{0x60 + off, 0xF0},
			[2]uint32{0x80 + off, 0x0F},
		)
	}
	regs = append(regs,
		[2]uint32{0x4B, 0x00},
		[2]uint32{0xC0, 0x30},
		[2]uint32{0xC3, 0x30},
		[2]uint32{0xA0, 0x41},
		[2]uint32{0xB0, 0x32},
	)
	c := newTestChip(t, TypeOPL3, BackendDOSBox)
	writeAll(c, regs)
	buf := make([]int16, 2048)
	c.Generate(buf)
	if allZero(buf) {
		t.Fatal("expected 4-op voice keyed through channel 0")
	}

	core := c.handler.(*dosboxCore)
	if core.ch[0].mode != dbFourOp || core.ch[3].mode != dbFourTail {
		t.Errorf("expected channels 0/3 paired, got modes %d/%d", core.ch[0].mode, core.ch[3].mode)
	}
	if core.ch[3].op[1].stage == stageOff {
		t.Error("expected channel 3 operators keyed by channel 0")
	}
	if core.ch[3].fnum != 0x241 {
		t.Errorf("expected channel 3 to follow channel 0 frequency, got 0x%03X", core.ch[3].fnum)
	}

	// Frequency writes to the second channel are ignored while paired
	writeAll(c, [][2]uint32{{0xA3, 0x10}})
	if core.ch[3].fnum != 0x241 {
		t.Errorf("expected channel 3 write ignored, got 0x%03X", core.ch[3].fnum)
	}

	// Leaving NEW mode splits the pair
	writeAll(c, [][2]uint32{{0x105, 0x00}})
	if core.ch[0].mode != dbTwoOp || core.ch[3].mode != dbTwoOp {
		t.Error("expected 2-op channels when NEW is cleared")
	}
}

func TestOPL3_SecondBank(t *testing.T) {
	out := render(t, TypeOPL3, BackendDOSBox, []scoreStep{{regs: sineVoice(9), frames: 1024}})
	if allZero(out) {
		t.Error("expected channel 9 (bank 1) to sound")
	}
}

func TestRhythm_KeyOffWhenDisabled(t *testing.T) {
	c := newTestChip(t, TypeOPL2, BackendDOSBox)
	score := melodyScore(0)
	writeAll(c, score[3].regs)
	c.Generate(make([]int16, 256))

	core := c.handler.(*dosboxCore)
	if core.ch[6].op[1].keys&keyRhythm == 0 {
		t.Fatal("expected bass drum keyed by rhythm")
	}
	writeAll(c, [][2]uint32{{0xBD, 0x00}})
	for ch := 6; ch < 9; ch++ {
		for op := 0; op < 2; op++ {
			if core.ch[ch].op[op].keys != 0 {
				t.Errorf("ch%d op%d: expected no key sources, got %d", ch, op, core.ch[ch].op[op].keys)
			}
		}
	}
}

func TestRhythm_CoexistsWithNormalKey(t *testing.T) {
	c := newTestChip(t, TypeOPL2, BackendMAME)
	writeAll(c, [][2]uint32{
		{0xB6, 0x20},
		{0xBD, 0x30},
		{0xBD, 0x20},
	})
	core := c.handler.(*mameCore)
	if core.ch[6].slot[0].key != keyNormal {
		t.Errorf("expected normal key to remain, got %d", core.ch[6].slot[0].key)
	}
	if core.ch[6].slot[0].state != stageAttack {
		t.Errorf("expected attack to continue, got %s", core.ch[6].slot[0].state)
	}
}
