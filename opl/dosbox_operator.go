package opl

// dbOperator is one operator of the cycle-step core. Rates and waveforms
// are decoded arithmetically on every step; only the phase increment and
// the key scale values are cached.
type dbOperator struct {
	reg20 uint8 // AM, VIB, EG-TYP, KSR, MULT
	reg40 uint8 // KSL, TL
	reg60 uint8 // AR, DR
	reg80 uint8 // SL, RR
	wave  uint8 // Effective waveform 0-7

	phase uint32
	inc   uint32 // Increment at the channel frequency without vibrato

	env   uint16
	stage envStage
	keys  uint8 // Active key sources

	ksr uint8  // Rate key scale offset
	ksl uint16 // Shifted key scale attenuation
	sl  uint16 // Sustain level, envelope scale

	out [2]int32 // Previous and current output, feedback history
}

// dbEnvStep dispatches one envelope step by stage.
var dbEnvStep = [...]func(*dbOperator, uint32){
	stageOff:     (*dbOperator).envOff,
	stageAttack:  (*dbOperator).envAttack,
	stageDecay:   (*dbOperator).envDecay,
	stageSustain: (*dbOperator).envSustain,
	stageRelease: (*dbOperator).envRelease,
}

func (o *dbOperator) reset() {
	*o = dbOperator{env: envMax, stage: stageOff}
}

// updateFrequency recomputes the cached increment and key scaling from the
// owning channel's frequency.
func (o *dbOperator) updateFrequency(fnum uint16, block uint8, nts bool, freqBase uint32) {
	o.inc = opIncrement(phaseBase(uint32(fnum), block, freqBase), multTable[o.reg20&reg20MULT])
	kc := keyCode(fnum, block, nts)
	if o.reg20&reg20KSR != 0 {
		o.ksr = kc
	} else {
		o.ksr = kc >> 2
	}
	o.ksl = kslLevel(fnum, block) >> kslShift[o.reg40>>6]
}

// step advances the phase by one output sample.
func (o *dbOperator) step(fnum uint16, block uint8, freqBase uint32, vibDeep bool, vibPos int) {
	if o.reg20&reg20VIB == 0 {
		o.phase += o.inc
		return
	}
	f := vibratoFnum(fnum, vibDeep, vibPos)
	o.phase += opIncrement(phaseBase(f, block, freqBase), multTable[o.reg20&reg20MULT])
}

func (o *dbOperator) keyOn(src uint8, freeRun bool) {
	if o.keys == 0 {
		if !freeRun {
			o.phase = 0
		}
		o.stage = stageAttack
	}
	o.keys |= src
}

func (o *dbOperator) keyOff(src uint8) {
	if o.keys == 0 {
		return
	}
	o.keys &^= src
	if o.keys != 0 {
		return
	}
	switch o.stage {
	case stageAttack, stageDecay, stageSustain:
		o.stage = stageRelease
	}
}

// index returns the current 10-bit wave index.
func (o *dbOperator) index() uint32 {
	return (o.phase >> 16) & 0x3FF
}

// output computes the operator output with a modulation offset added to
// the wave index.
func (o *dbOperator) output(mod int32, am uint16) int32 {
	return o.outputAt(uint32(int32(o.phase>>16)+mod), am)
}

// outputAt computes the operator output at an explicit wave index.
func (o *dbOperator) outputAt(idx uint32, am uint16) int32 {
	att := uint32(o.env) + uint32(o.reg40&0x3F)<<2 + uint32(o.ksl)
	if o.reg20&reg20AM != 0 {
		att += uint32(am)
	}
	if att > envMax {
		att = envMax
	}
	log, neg := dbWave(o.wave, idx&0x3FF)
	v := int32(expOutput(uint32(log) + att<<3))
	if neg {
		return -v
	}
	return v
}

// dbWave decodes the log-sine value and sign of a waveform at a 10-bit
// wave index.
func dbWave(w uint8, p uint32) (uint16, bool) {
	switch w {
	case 0:
		return dbSine(p)
	case 1:
		if p&0x200 != 0 {
			return logSilent, false
		}
		return dbSine(p)
	case 2:
		l, _ := dbSine(p)
		return l, false
	case 3:
		if p&0x100 != 0 {
			return logSilent, false
		}
		return logSinRom[p&0xFF], false
	case 4:
		if p&0x200 != 0 {
			return logSilent, false
		}
		return dbSine((p << 1) & 0x3FF)
	case 5:
		if p&0x200 != 0 {
			return logSilent, false
		}
		l, _ := dbSine((p << 1) & 0x3FF)
		return l, false
	case 6:
		return 0, p&0x200 != 0
	case 7:
		neg := p&0x200 != 0
		q := p & 0x1FF
		if neg {
			q ^= 0x1FF
		}
		return uint16(q << 3), neg
	}
	panic("opl: waveform out of range")
}

func dbSine(p uint32) (uint16, bool) {
	q := p & 0xFF
	if p&0x100 != 0 {
		q ^= 0xFF
	}
	return logSinRom[q], p&0x200 != 0
}

// schedule returns the counter shift and increment row for a 4-bit rate.
func (o *dbOperator) schedule(rate uint8, attack bool) (uint, int) {
	if rate == 0 {
		return 0, egRowFrozen
	}
	r := rate<<2 + o.ksr
	if r > 63 {
		r = 63
	}
	if attack && r >= 62 {
		return 0, 13
	}
	g := r >> 2
	switch {
	case g <= 12:
		return uint(12 - g), int(r & 3)
	case g == 13:
		return 0, 4 + int(r&3)
	case g == 14:
		return 0, 8 + int(r&3)
	}
	return 0, 12
}

// due reports whether a step with the given shift lands on cnt, and the
// increment it applies.
func due(cnt uint32, shift uint, row int) (uint16, bool) {
	if cnt&(1<<shift-1) != 0 {
		return 0, false
	}
	return uint16(egIncTable[row][(cnt>>shift)&7]), true
}

func (o *dbOperator) envOff(uint32) {}

func (o *dbOperator) envAttack(cnt uint32) {
	shift, row := o.schedule(o.reg60>>4, true)
	inc, ok := due(cnt, shift, row)
	if !ok {
		return
	}
	v := int32(o.env)
	v += (^v * int32(inc)) >> 3
	if v <= 0 {
		v = 0
		o.stage = stageDecay
	}
	o.env = uint16(v)
}

func (o *dbOperator) envDecay(cnt uint32) {
	shift, row := o.schedule(o.reg60&0x0F, false)
	inc, ok := due(cnt, shift, row)
	if !ok {
		return
	}
	o.env += inc
	if o.env >= o.sl {
		o.stage = stageSustain
	}
}

func (o *dbOperator) envSustain(cnt uint32) {
	if o.reg20&reg20EGT != 0 {
		return
	}
	o.stage = stageRelease
	o.envRelease(cnt)
}

func (o *dbOperator) envRelease(cnt uint32) {
	shift, row := o.schedule(o.reg80&0x0F, false)
	inc, ok := due(cnt, shift, row)
	if !ok {
		return
	}
	o.env += inc
	if o.env >= envMax {
		o.env = envMax
		o.stage = stageOff
	}
}
