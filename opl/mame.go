package opl

// mameSlot is one operator of the table-driven core. Everything the
// sample loop needs is precomputed on register write.
type mameSlot struct {
	ar     uint8 // Attack rate base: AR*4 + 16, or 0
	dr     uint8 // Decay rate base
	rr     uint8 // Release rate base
	ksr    uint8 // Key scale rate offset
	kshift uint8 // KSR bit ? 0 : 2
	mul    uint32

	phase uint32
	incr  uint32

	op1Out  [2]int32 // Feedback history, slot 1 only
	connect *int32   // Slot 1 output destination

	state  envStage
	tl     uint16 // TL*4
	tll    uint16 // tl + key scale level
	volume int32
	sl     uint16
	kslSh  uint8
	egType bool
	key    uint8
	amMask uint16
	vib    bool
	wave   uint16 // Offset into sinTab

	egShAR, egSelAR uint8
	egShDR, egSelDR uint8
	egShRR, egSelRR uint8
}

type mameChannel struct {
	slot      [2]mameSlot
	blockFnum uint16 // block<<10 | fnum
	fc        uint32 // Phase base for MULT=1
	kslBase   uint16
	kcode     uint8
	fb        uint8
	con       bool
}

func (ch *mameChannel) block() uint8 {
	return uint8(ch.blockFnum >> 10)
}

func (ch *mameChannel) fnum() uint16 {
	return ch.blockFnum & 0x3FF
}

// mameCore is a single OPL2 built around lookup tables: rate shift and
// select, per-waveform log-sine runs, the linear output table and a
// per-rate F-number table. It does not model the OPL3.
type mameCore struct {
	opts  coreOptions
	tb    timebase
	ch    [9]mameChannel
	fnTab [8][fnTabLen]uint32

	phaseMod int32 // Slot 1 to slot 2 modulation of the current channel
	output   int32 // Mono accumulator for the current sample

	lfoAM  uint16
	rhythm uint8 // $BD
	wse    bool
	nts    bool
}

func newMAMECore(opts coreOptions) *mameCore {
	return &mameCore{opts: opts}
}

func (c *mameCore) Init(rate int) error {
	if c.opts.opl3 {
		return ErrUnsupportedType
	}
	if rate <= 0 {
		return ErrUnsupportedRate
	}
	c.tb.reset(freqBaseFor(rate))
	for block := range c.fnTab {
		for f := range c.fnTab[block] {
			c.fnTab[block][f] = phaseBase(uint32(f), uint8(block), c.tb.freqBase)
		}
	}
	for i := range c.ch {
		ch := &c.ch[i]
		*ch = mameChannel{}
		for k := range ch.slot {
			s := &ch.slot[k]
			s.volume = envMax
			s.state = stageOff
			s.kshift = 2
			s.kslSh = uint8(kslShift[0])
			s.mul = multTable[0]
			s.updateRates()
		}
		ch.slot[0].connect = &c.phaseMod
	}
	c.phaseMod = 0
	c.output = 0
	c.rhythm = 0
	c.wse = false
	c.nts = false
	return nil
}

func (c *mameCore) WriteAddr(_ uint32, val uint8) uint32 {
	return uint32(val)
}

func (s *mameSlot) updateRates() {
	if s.ar+s.ksr < egRateAttackMax {
		s.egShAR = egRateShift[s.ar+s.ksr]
		s.egSelAR = egRateSelect[s.ar+s.ksr]
	} else {
		s.egShAR = 0
		s.egSelAR = 13
	}
	s.egShDR = egRateShift[s.dr+s.ksr]
	s.egSelDR = egRateSelect[s.dr+s.ksr]
	s.egShRR = egRateShift[s.rr+s.ksr]
	s.egSelRR = egRateSelect[s.rr+s.ksr]
}

// calcFc refreshes a slot's increment and rate key scaling.
func (c *mameCore) calcFc(ch *mameChannel, s *mameSlot) {
	s.incr = opIncrement(ch.fc, s.mul)
	ksr := ch.kcode >> s.kshift
	if s.ksr != ksr {
		s.ksr = ksr
		s.updateRates()
	}
}

func rateBase(r uint8) uint8 {
	if r == 0 {
		return 0
	}
	return 16 + r<<2
}

func (c *mameCore) setMul(ch *mameChannel, s *mameSlot, v uint8) {
	s.mul = multTable[v&reg20MULT]
	s.kshift = 2
	if v&reg20KSR != 0 {
		s.kshift = 0
	}
	s.egType = v&reg20EGT != 0
	s.vib = v&reg20VIB != 0
	s.amMask = 0
	if v&reg20AM != 0 {
		s.amMask = 0xFFFF
	}
	c.calcFc(ch, s)
}

func (ch *mameChannel) setKslTl(s *mameSlot, v uint8) {
	s.kslSh = uint8(kslShift[v>>6])
	s.tl = uint16(v&0x3F) << 2
	s.tll = s.tl + ch.kslBase>>s.kslSh
}

func (s *mameSlot) setArDr(v uint8) {
	s.ar = rateBase(v >> 4)
	s.dr = rateBase(v & 0x0F)
	s.updateRates()
}

func (s *mameSlot) setSlRr(v uint8) {
	s.sl = sustainLevel(v >> 4)
	s.rr = rateBase(v & 0x0F)
	s.updateRates()
}

func (s *mameSlot) keyOn(src uint8, freeRun bool) {
	if s.key == 0 {
		if !freeRun {
			s.phase = 0
		}
		s.state = stageAttack
	}
	s.key |= src
}

func (s *mameSlot) keyOff(src uint8) {
	if s.key == 0 {
		return
	}
	s.key &^= src
	if s.key == 0 && s.state > stageOff && s.state < stageRelease {
		s.state = stageRelease
	}
}

func (c *mameCore) WriteReg(addr uint32, val uint8) {
	r := uint8(addr)
	switch r & 0xE0 {
	case 0x00:
		switch r {
		case 0x01:
			c.wse = val&reg01WSE != 0
		case 0x08:
			c.nts = val&reg08NTS != 0
			for i := range c.ch {
				c.setBlockFnum(&c.ch[i], c.ch[i].blockFnum, true)
			}
		}
	case 0x20:
		if ch, s := c.slotAt(r); s != nil {
			c.setMul(ch, s, val)
		}
	case 0x40:
		if ch, s := c.slotAt(r); s != nil {
			ch.setKslTl(s, val)
		}
	case 0x60:
		if _, s := c.slotAt(r); s != nil {
			s.setArDr(val)
		}
	case 0x80:
		if _, s := c.slotAt(r); s != nil {
			s.setSlRr(val)
		}
	case 0xA0:
		if r == 0xBD {
			c.writeRhythm(val)
			return
		}
		if r&0x0F > 8 {
			return
		}
		ch := &c.ch[r&0x0F]
		var bf uint16
		if r&0x10 == 0 {
			bf = ch.blockFnum&0x1F00 | uint16(val)
		} else {
			bf = uint16(val&0x1F)<<8 | ch.blockFnum&0xFF
			for k := range ch.slot {
				if val&regB0Key != 0 {
					ch.slot[k].keyOn(keyNormal, c.opts.freeRun)
				} else {
					ch.slot[k].keyOff(keyNormal)
				}
			}
		}
		c.setBlockFnum(ch, bf, false)
	case 0xC0:
		if r&0xF0 != 0xC0 || r&0x0F > 8 {
			return
		}
		ch := &c.ch[r&0x0F]
		ch.fb = (val >> 1) & 7
		ch.con = val&regC0Cnt != 0
		if ch.con {
			ch.slot[0].connect = &c.output
		} else {
			ch.slot[0].connect = &c.phaseMod
		}
	case 0xE0:
		if _, s := c.slotAt(r); s != nil {
			if w, ok := waveSelect(false, c.wse, val); ok {
				s.wave = uint16(w) * sinLen
			}
		}
	}
}

// slotAt decodes an operator register to its channel and slot.
func (c *mameCore) slotAt(r uint8) (*mameChannel, *mameSlot) {
	n := r & 0x1F
	ci := slotChannel[n]
	if ci < 0 {
		return nil, nil
	}
	ch := &c.ch[ci]
	return ch, &ch.slot[slotOperator[n]]
}

// setBlockFnum applies a new block/F-number to a channel.
func (c *mameCore) setBlockFnum(ch *mameChannel, bf uint16, force bool) {
	if ch.blockFnum == bf && !force {
		return
	}
	ch.blockFnum = bf
	fnum, block := ch.fnum(), ch.block()
	ch.kslBase = kslLevel(fnum, block)
	ch.fc = c.fnTab[block][fnum]
	ch.kcode = keyCode(fnum, block, c.nts)

	for k := range ch.slot {
		s := &ch.slot[k]
		s.tll = s.tl + ch.kslBase>>s.kslSh
		c.calcFc(ch, s)
	}
}

func (c *mameCore) writeRhythm(v uint8) {
	c.rhythm = v
	bd, hs, tc := &c.ch[6], &c.ch[7], &c.ch[8]
	if v&regBDRhythm == 0 {
		for _, ch := range []*mameChannel{bd, hs, tc} {
			ch.slot[0].keyOff(keyRhythm)
			ch.slot[1].keyOff(keyRhythm)
		}
		return
	}
	key := func(s *mameSlot, on bool) {
		if on {
			s.keyOn(keyRhythm, c.opts.freeRun)
		} else {
			s.keyOff(keyRhythm)
		}
	}
	key(&bd.slot[0], v&regBDBass != 0)
	key(&bd.slot[1], v&regBDBass != 0)
	key(&hs.slot[0], v&regBDHiHat != 0)
	key(&hs.slot[1], v&regBDSnare != 0)
	key(&tc.slot[0], v&regBDTom != 0)
	key(&tc.slot[1], v&regBDCymbal != 0)
}

// attenuation returns the total attenuation of a slot, capped at the floor.
func (s *mameSlot) attenuation(am uint16) uint32 {
	env := uint32(s.tll) + uint32(s.volume) + uint32(am&s.amMask)
	if env > envMax {
		return envMax
	}
	return env
}

func opCalc(phase uint32, env uint32, pm int32, wave uint16) int32 {
	idx := uint32(int32(phase>>16)+pm) & (sinLen - 1)
	return opCalcAt(idx, env, wave)
}

func opCalcAt(idx uint32, env uint32, wave uint16) int32 {
	p := uint32(sinTab[uint32(wave)+idx&(sinLen-1)]) + env<<4
	if p >= tlTabLen {
		return 0
	}
	return int32(tlTab[p])
}

// slot1 renders the first operator of a channel with feedback.
func (c *mameCore) slot1(ch *mameChannel) int32 {
	s := &ch.slot[0]
	var fb int32
	if ch.fb != 0 {
		fb = (s.op1Out[0] + s.op1Out[1]) >> (9 - ch.fb)
	}
	v := opCalc(s.phase, s.attenuation(c.lfoAM), fb, s.wave)
	s.op1Out[0] = s.op1Out[1]
	s.op1Out[1] = v
	return v
}

func (c *mameCore) calcChannel(ch *mameChannel) {
	c.phaseMod = 0
	s := &ch.slot[0]
	*s.connect += c.slot1(ch)
	s = &ch.slot[1]
	c.output += opCalc(s.phase, s.attenuation(c.lfoAM), c.phaseMod, s.wave)
}

func (c *mameCore) calcRhythm(noise uint32) {
	am := c.lfoAM

	bd := &c.ch[6]
	c.phaseMod = 0
	o1 := c.slot1(bd)
	if !bd.con {
		c.phaseMod = o1
	}
	s := &bd.slot[1]
	c.output += opCalc(s.phase, s.attenuation(am), c.phaseMod, s.wave) * 2

	hs, tc := &c.ch[7], &c.ch[8]
	hh, sd, cy := rhythmPhases((hs.slot[0].phase>>16)&0x3FF, (tc.slot[1].phase>>16)&0x3FF, noise)

	s = &hs.slot[0]
	c.output += opCalcAt(hh, s.attenuation(am), s.wave) * 2
	s = &hs.slot[1]
	c.output += opCalcAt(sd, s.attenuation(am), s.wave) * 2
	s = &tc.slot[0]
	c.output += opCalc(s.phase, s.attenuation(am), 0, s.wave) * 2
	s = &tc.slot[1]
	c.output += opCalcAt(cy, s.attenuation(am), s.wave) * 2
}

// advancePhase moves every slot by one output sample, applying vibrato.
func (c *mameCore) advancePhase() {
	deep := c.rhythm&regBDVibDepth != 0
	pos := c.tb.vibratoPos()
	for i := range c.ch {
		ch := &c.ch[i]
		for k := range ch.slot {
			s := &ch.slot[k]
			if !s.vib {
				s.phase += s.incr
				continue
			}
			f := vibratoFnum(ch.fnum(), deep, pos)
			s.phase += opIncrement(c.fnTab[ch.block()][f], s.mul)
		}
	}
}

// advanceEG runs one native envelope tick over all slots.
func (c *mameCore) advanceEG(cnt uint32) {
	for i := range c.ch {
		for k := range c.ch[i].slot {
			c.ch[i].slot[k].advanceEG(cnt)
		}
	}
}

func (s *mameSlot) advanceEG(cnt uint32) {
	switch s.state {
	case stageAttack:
		if cnt&(1<<s.egShAR-1) == 0 {
			inc := int32(egIncTable[s.egSelAR][(cnt>>s.egShAR)&7])
			s.volume += (^s.volume * inc) >> 3
			if s.volume <= 0 {
				s.volume = 0
				s.state = stageDecay
			}
		}
	case stageDecay:
		if cnt&(1<<s.egShDR-1) == 0 {
			s.volume += int32(egIncTable[s.egSelDR][(cnt>>s.egShDR)&7])
			if s.volume >= int32(s.sl) {
				s.state = stageSustain
			}
		}
	case stageSustain:
		if s.egType {
			return
		}
		s.state = stageRelease
		s.release(cnt)
	case stageRelease:
		s.release(cnt)
	}
}

func (s *mameSlot) release(cnt uint32) {
	if cnt&(1<<s.egShRR-1) != 0 {
		return
	}
	s.volume += int32(egIncTable[s.egSelRR][(cnt>>s.egShRR)&7])
	if s.volume >= envMax {
		s.volume = envMax
		s.state = stageOff
	}
}

func (c *mameCore) Generate(buf []int16) {
	for i := range buf {
		c.lfoAM = c.tb.tremolo(c.rhythm&regBDAMDepth != 0)
		c.output = 0

		n := 9
		if c.rhythm&regBDRhythm != 0 {
			n = rhythmBase
		}
		for k := 0; k < n; k++ {
			c.calcChannel(&c.ch[k])
		}
		if n == rhythmBase {
			c.calcRhythm(c.tb.noiseBit())
		}
		buf[i] = clamp16(c.output)

		c.advancePhase()
		for t := c.tb.pending(); t > 0; t-- {
			c.advanceEG(c.tb.tick())
		}
	}
}
