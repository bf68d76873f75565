package opl

// Envelope rate tables indexed by rate base + KSR. Entries 0-15 serve rate 0
// (frozen), entries 16-79 the 64 effective rates and 80-95 absorb
// overflowing rate + KSR sums.
var egRateSelect = [16 + 64 + 16]uint8{
	// rate 0, frozen
	14, 14, 14, 14, 14, 14, 14, 14,
	14, 14, 14, 14, 14, 14, 14, 14,

	// rates 00-12
	0, 1, 2, 3,
	0, 1, 2, 3,
	0, 1, 2, 3,
	0, 1, 2, 3,
	0, 1, 2, 3,
	0, 1, 2, 3,
	0, 1, 2, 3,
	0, 1, 2, 3,
	0, 1, 2, 3,
	0, 1, 2, 3,
	0, 1, 2, 3,
	0, 1, 2, 3,
	0, 1, 2, 3,

	// rate 13
	4, 5, 6, 7,
	// rate 14
	8, 9, 10, 11,
	// rate 15
	12, 12, 12, 12,

	// overflow
	12, 12, 12, 12, 12, 12, 12, 12,
	12, 12, 12, 12, 12, 12, 12, 12,
}

var egRateShift = [16 + 64 + 16]uint8{
	// rate 0, frozen
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,

	// rates 00-12
	12, 12, 12, 12,
	11, 11, 11, 11,
	10, 10, 10, 10,
	9, 9, 9, 9,
	8, 8, 8, 8,
	7, 7, 7, 7,
	6, 6, 6, 6,
	5, 5, 5, 5,
	4, 4, 4, 4,
	3, 3, 3, 3,
	2, 2, 2, 2,
	1, 1, 1, 1,
	0, 0, 0, 0,

	// rates 13-15
	0, 0, 0, 0,
	0, 0, 0, 0,
	0, 0, 0, 0,

	// overflow
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
}

// Index of the first instant-attack entry in the rate tables.
const egRateAttackMax = 16 + 62

const (
	sinLen    = 1024
	tlTabLen  = (logClampMax + 1) * 2
	fnTabLen  = 1024 + 16 // room for vibrato overshoot
	mameWaves = 4
)

// sinTab holds the OPL2 waveforms as log<<1 | sign, one sinLen run per
// waveform.
var sinTab [mameWaves * sinLen]uint16

// tlTab maps (log<<1 | sign) to a signed linear output.
var tlTab [tlTabLen]int16

func init() {
	for x := 0; x <= logClampMax; x++ {
		v := expOutput(uint32(x))
		tlTab[x<<1] = v
		tlTab[x<<1|1] = -v
	}

	for i := 0; i < sinLen; i++ {
		q := i & 0xFF
		if i&0x100 != 0 {
			q ^= 0xFF
		}
		n := logSinRom[q] << 1
		sign := uint16(0)
		if i&0x200 != 0 {
			sign = 1
		}

		// waveform 0: standard sinus
		sinTab[i] = n | sign

		// waveform 1: positive half only
		if i&0x200 != 0 {
			sinTab[1*sinLen+i] = logSilent << 1
		} else {
			sinTab[1*sinLen+i] = n
		}

		// waveform 2: absolute value
		sinTab[2*sinLen+i] = n

		// waveform 3: rising quarters only
		if i&0x100 != 0 {
			sinTab[3*sinLen+i] = logSilent << 1
		} else {
			sinTab[3*sinLen+i] = logSinRom[i&0xFF] << 1
		}
	}
}
