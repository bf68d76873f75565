package opl

// timebase converts output samples into native chip samples and owns the
// global counters that advance once per native sample: the envelope
// counter, both LFOs and the rhythm noise generator.
type timebase struct {
	freqBase uint32 // native/output ratio, 16.16
	acc      uint32 // fractional native samples owed

	egCnt uint32 // global envelope counter
	amCnt uint16 // tremolo position in native samples
	pmCnt uint16 // vibrato position in native samples
	noise uint32 // 23-bit LFSR
}

func (tb *timebase) reset(freqBase uint32) {
	*tb = timebase{freqBase: freqBase, noise: 1}
}

// pending returns how many native samples elapse over the next output
// sample and consumes them from the accumulator.
func (tb *timebase) pending() int {
	tb.acc += tb.freqBase
	n := int(tb.acc >> 16)
	tb.acc &= 0xFFFF
	return n
}

// tick advances the LFO and noise counters by one native sample and
// returns the new envelope counter value.
func (tb *timebase) tick() uint32 {
	tb.egCnt++
	tb.amCnt++
	if tb.amCnt >= amCycleTicks {
		tb.amCnt = 0
	}
	tb.pmCnt++
	if tb.pmCnt >= pmCycleTicks {
		tb.pmCnt = 0
	}
	bit := ((tb.noise >> 14) ^ tb.noise) & 1
	tb.noise = (tb.noise >> 1) | (bit << 22)
	return tb.egCnt
}

// tremolo returns the current AM attenuation for the given depth bit.
func (tb *timebase) tremolo(deep bool) uint16 {
	v := uint16(amTable[tb.amCnt>>amStepShift])
	if !deep {
		v >>= 2
	}
	return v
}

// vibratoPos returns the current PM position (0-7).
func (tb *timebase) vibratoPos() int {
	return int(tb.pmCnt >> pmStepShift)
}

// noiseBit returns the current output bit of the noise generator.
func (tb *timebase) noiseBit() uint32 {
	return tb.noise & 1
}
