package opl

import "math"

// Master clock of the YM3812/YMF262 and the internal sample divider.
const (
	chipClock  = 3579545
	nativeDiv  = 72
	nativeRate = chipClock / nativeDiv // ~49716 Hz
)

// Envelope and attenuation limits (9-bit envelope, 0=loudest).
const (
	envMax      = 0x1FF
	logSilent   = 0x1000 // log value that always exp-converts to 0
	logClampMax = 0x1FFF
)

// logSinRom is the quarter-wave log-sine ROM: 256 entries of
// -log2(sin((i+0.5)/256 * pi/2)) in 4.8 fixed point. Both ROMs are
// package-level initializers so that every init() sees them filled.
var logSinRom = func() [256]uint16 {
	var t [256]uint16
	for i := range t {
		angle := (float64(i) + 0.5) / 256.0 * math.Pi / 2.0
		t[i] = uint16(math.Round(-math.Log2(math.Sin(angle)) * 256.0))
	}
	return t
}()

// expRom is the exponent ROM: 256 entries of (2^(i/256)-1)*1024.
var expRom = func() [256]uint16 {
	var t [256]uint16
	for i := range t {
		t[i] = uint16(math.Round((math.Pow(2.0, float64(i)/256.0) - 1.0) * 1024.0))
	}
	return t
}()

// expOutput converts a 4.8 log attenuation into a signed-magnitude
// 13-bit linear amplitude (always positive here, sign applied by caller).
func expOutput(x uint32) int16 {
	if x > logClampMax {
		x = logClampMax
	}
	v := (uint32(expRom[(x&0xFF)^0xFF]) | 0x400) << 1
	return int16(v >> (x >> 8))
}

// multTable is the frequency multiplier in half steps (MULT=0 means x0.5).
var multTable = [16]uint32{1, 2, 4, 6, 8, 10, 12, 14, 16, 18, 20, 20, 24, 24, 30, 30}

// kslRom is the key scale level ROM indexed by the top 4 bits of the F-number.
var kslRom = [16]int32{0, 32, 40, 45, 48, 51, 53, 55, 56, 58, 59, 60, 61, 62, 63, 64}

// kslShift maps the 2-bit KSL field to a right shift (0, 3, 1.5, 6 dB/oct).
var kslShift = [4]uint{8, 1, 2, 0}

// egIncTable holds the envelope increment patterns, 8 steps per row.
// Rows 0-3 serve rates below 52, rows 4-11 rates 52-59, row 12 the
// top decay rates and row 13 the instant attack rates.
var egIncTable = [15][8]uint8{
	{0, 1, 0, 1, 0, 1, 0, 1},
	{0, 1, 0, 1, 1, 1, 0, 1},
	{0, 1, 1, 1, 0, 1, 1, 1},
	{0, 1, 1, 1, 1, 1, 1, 1},
	{1, 1, 1, 1, 1, 1, 1, 1},
	{1, 1, 1, 2, 1, 1, 1, 2},
	{1, 2, 1, 2, 1, 2, 1, 2},
	{1, 2, 2, 2, 1, 2, 2, 2},
	{2, 2, 2, 2, 2, 2, 2, 2},
	{2, 2, 2, 4, 2, 2, 2, 4},
	{2, 4, 2, 4, 2, 4, 2, 4},
	{2, 4, 4, 4, 2, 4, 4, 4},
	{4, 4, 4, 4, 4, 4, 4, 4},
	{8, 8, 8, 8, 8, 8, 8, 8},
	{0, 0, 0, 0, 0, 0, 0, 0},
}

// egRowFrozen selects the all-zero row used for rate 0.
const egRowFrozen = 14

// Tremolo: 210 step triangle, one step per 64 native samples.
const (
	amTableLen   = 210
	amStepShift  = 6
	pmStepShift  = 10
	pmPositions  = 8
	amCycleTicks = amTableLen << amStepShift
	pmCycleTicks = pmPositions << pmStepShift
)

var amTable = func() [amTableLen]uint8 {
	var t [amTableLen]uint8
	i := 7 // seven leading zeros
	for v := uint8(1); v <= 25; v++ {
		for k := 0; k < 4; k++ {
			t[i] = v
			i++
		}
	}
	for k := 0; k < 3; k++ {
		t[i] = 26
		i++
	}
	for v := uint8(25); v >= 1; v-- {
		for k := 0; k < 4; k++ {
			t[i] = v
			i++
		}
	}
	return t
}()

// vibratoTable is indexed by [fnum>>7][depth][position] and holds the
// F-number offset applied when the VIB bit is set.
var vibratoTable = func() [8][2][pmPositions]int8 {
	var t [8][2][pmPositions]int8
	for n := 0; n < 8; n++ {
		for depth := 0; depth < 2; depth++ {
			v := int8(n)
			if depth == 0 {
				v >>= 1
			}
			half := v >> 1
			t[n][depth] = [pmPositions]int8{v, half, 0, -half, -v, -half, 0, half}
		}
	}
	return t
}()

// Register slot decode for the operator register groups ($20-$35, $40-$55,
// $60-$75, $80-$95, $E0-$F5). Offsets 6, 7, 14, 15 and above 21 do not map
// to an operator.
var slotChannel = [32]int8{
	0, 1, 2, 0, 1, 2, -1, -1,
	3, 4, 5, 3, 4, 5, -1, -1,
	6, 7, 8, 6, 7, 8, -1, -1,
	-1, -1, -1, -1, -1, -1, -1, -1,
}

var slotOperator = [32]int8{
	0, 0, 0, 1, 1, 1, -1, -1,
	0, 0, 0, 1, 1, 1, -1, -1,
	0, 0, 0, 1, 1, 1, -1, -1,
	-1, -1, -1, -1, -1, -1, -1, -1,
}

// channelSlotOffset is the register offset of a channel's first operator.
var channelSlotOffset = [9]uint8{0x00, 0x01, 0x02, 0x08, 0x09, 0x0A, 0x10, 0x11, 0x12}

// freqBaseFor returns the native-to-output rate ratio in 16.16 fixed point.
func freqBaseFor(rate int) uint32 {
	return uint32((uint64(chipClock) << 16) / uint64(nativeDiv*rate))
}

// phaseBase returns the per-output-sample phase increment for MULT=1
// in 16.16 wave index units (before the half-step multiplier).
func phaseBase(fnum uint32, block uint8, freqBase uint32) uint32 {
	return uint32(((uint64(fnum<<block) << 6) * uint64(freqBase)) >> 16)
}

// opIncrement applies the half-step multiplier to a phase base. The
// accumulator only keeps the low 26 bits meaningful, so wrapping is fine.
func opIncrement(base, mult uint32) uint32 {
	return uint32((uint64(base) * uint64(mult)) >> 1)
}

// vibratoFnum returns the F-number offset by the vibrato table.
func vibratoFnum(fnum uint16, deep bool, pos int) uint32 {
	depth := 0
	if deep {
		depth = 1
	}
	return uint32(int32(fnum) + int32(vibratoTable[fnum>>7][depth][pos]))
}

// keyCode returns the 4-bit rate key code from block and F-number.
func keyCode(fnum uint16, block uint8, nts bool) uint8 {
	bit := (fnum >> 9) & 1
	if nts {
		bit = (fnum >> 8) & 1
	}
	return block<<1 | uint8(bit)
}

// kslLevel returns the unshifted key scale attenuation for a frequency.
func kslLevel(fnum uint16, block uint8) uint16 {
	v := kslRom[fnum>>6]<<2 - int32(8-int32(block))<<5
	if v < 0 {
		return 0
	}
	return uint16(v)
}

// sustainLevel converts the 4-bit SL field to the 9-bit envelope scale.
func sustainLevel(sl uint8) uint16 {
	if sl == 15 {
		return 31 << 4
	}
	return uint16(sl) << 4
}

// clamp16 saturates a mix accumulator to int16.
func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
