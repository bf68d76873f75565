package opl

// dbMode is how a channel takes part in synthesis.
type dbMode uint8

const (
	dbTwoOp    dbMode = iota
	dbFourOp          // First channel of a 4-op pair, renders both
	dbFourTail        // Second channel of a 4-op pair, rendered by the first
)

// dbChannel is one channel of the cycle-step core.
type dbChannel struct {
	op    [2]dbOperator
	fnum  uint16 // 10 bits
	block uint8
	regC0 uint8
	fb    uint8
	mode  dbMode
	pair  int // Partner channel index in 4-op mode
}

// feedback renders operator 1 with self-modulation and records its output.
func (o *dbOperator) feedback(fb uint8, am uint16) int32 {
	var mod int32
	if fb != 0 {
		mod = (o.out[0] + o.out[1]) >> (9 - fb)
	}
	v := o.output(mod, am)
	o.out[0] = o.out[1]
	o.out[1] = v
	return v
}

func (ch *dbChannel) twoOp(am uint16) int32 {
	o1 := ch.op[0].feedback(ch.fb, am)
	if ch.regC0&regC0Cnt != 0 {
		return o1 + ch.op[1].output(0, am)
	}
	return ch.op[1].output(o1, am)
}

// renderFourOp renders a 4-op pair. Operators 1-2 belong to a, 3-4 to b.
func renderFourOp(a, b *dbChannel, am uint16) int32 {
	o1 := a.op[0].feedback(a.fb, am)
	cntA := a.regC0&regC0Cnt != 0
	cntB := b.regC0&regC0Cnt != 0
	switch {
	case !cntA && !cntB:
		o2 := a.op[1].output(o1, am)
		o3 := b.op[0].output(o2, am)
		return b.op[1].output(o3, am)
	case cntA && !cntB:
		o2 := a.op[1].output(0, am)
		o3 := b.op[0].output(o2, am)
		return o1 + b.op[1].output(o3, am)
	case !cntA && cntB:
		o2 := a.op[1].output(o1, am)
		return o2 + b.op[1].output(b.op[0].output(0, am), am)
	}
	o3 := b.op[0].output(a.op[1].output(0, am), am)
	return o1 + o3 + b.op[1].output(0, am)
}

// dosboxCore steps every operator once per output sample, deriving the
// envelope schedule and waveform from the raw register fields each time.
type dosboxCore struct {
	opts coreOptions
	tb   timebase
	ch   [18]dbChannel
	nch  int

	regBD uint8
	wse   bool  // OPL2 waveform select enable
	nts   bool  // Note select
	newm  bool  // OPL3 NEW mode
	conn  uint8 // OPL3 4-op connection bits ($104)
}

func newDOSBoxCore(opts coreOptions) *dosboxCore {
	c := &dosboxCore{opts: opts, nch: 9}
	if opts.opl3 {
		c.nch = 18
	}
	return c
}

func (c *dosboxCore) Init(rate int) error {
	if rate <= 0 {
		return ErrUnsupportedRate
	}
	c.tb.reset(freqBaseFor(rate))
	for i := range c.ch {
		ch := &c.ch[i]
		*ch = dbChannel{pair: -1}
		ch.op[0].reset()
		ch.op[1].reset()
	}
	c.regBD = 0
	c.wse = false
	c.nts = false
	c.newm = false
	c.conn = 0
	return nil
}

func (c *dosboxCore) WriteAddr(port uint32, val uint8) uint32 {
	if c.opts.opl3 && port&2 != 0 {
		return 0x100 | uint32(val)
	}
	return uint32(val)
}

func (c *dosboxCore) WriteReg(addr uint32, val uint8) {
	bank := 0
	if c.opts.opl3 {
		bank = int(addr>>8) & 1
	}
	reg := uint8(addr)

	switch reg & 0xE0 {
	case 0x00:
		c.writeControl(bank, reg, val)
	case 0x20, 0x40, 0x60, 0x80, 0xE0:
		slot := reg & 0x1F
		ci := slotChannel[slot]
		if ci < 0 {
			return
		}
		ch := &c.ch[bank*9+int(ci)]
		c.writeOperator(ch, &ch.op[slotOperator[slot]], reg&0xE0, val)
	case 0xA0:
		if reg == 0xBD {
			if bank == 0 {
				c.writeBD(val)
			}
			return
		}
		if reg&0x0F > 8 {
			return
		}
		c.writeFrequency(bank*9+int(reg&0x0F), reg&0xF0, val)
	case 0xC0:
		if reg&0xF0 != 0xC0 || reg&0x0F > 8 {
			return
		}
		ch := &c.ch[bank*9+int(reg&0x0F)]
		ch.regC0 = val
		ch.fb = (val >> 1) & 7
	}
}

func (c *dosboxCore) writeControl(bank int, reg, val uint8) {
	switch {
	case bank == 0 && reg == 0x01:
		c.wse = val&reg01WSE != 0
	case bank == 0 && reg == 0x08:
		c.nts = val&reg08NTS != 0
		for i := 0; i < c.nch; i++ {
			c.updateChannel(&c.ch[i])
		}
	case bank == 1 && reg == 0x04:
		c.conn = val & 0x3F
		c.updateModes()
	case bank == 1 && reg == 0x05:
		c.newm = val&reg105New != 0
		c.updateModes()
	}
}

func (c *dosboxCore) writeOperator(ch *dbChannel, op *dbOperator, group, val uint8) {
	switch group {
	case 0x20:
		op.reg20 = val
		op.updateFrequency(ch.fnum, ch.block, c.nts, c.tb.freqBase)
	case 0x40:
		op.reg40 = val
		op.updateFrequency(ch.fnum, ch.block, c.nts, c.tb.freqBase)
	case 0x60:
		op.reg60 = val
	case 0x80:
		op.reg80 = val
		op.sl = sustainLevel(val >> 4)
	case 0xE0:
		if w, ok := waveSelect(c.opts.opl3 && c.newm, c.wse, val); ok {
			op.wave = w
		}
	}
}

// waveSelect applies the waveform register gating: all eight forms in
// OPL3 NEW mode, otherwise four forms and only while WSE is set.
func waveSelect(newMode, wse bool, val uint8) (uint8, bool) {
	if newMode {
		return val & 7, true
	}
	if !wse {
		return 0, false
	}
	return val & 3, true
}

func (c *dosboxCore) writeFrequency(index int, group, val uint8) {
	ch := &c.ch[index]
	if ch.mode == dbFourTail {
		return
	}
	if group == 0xA0 {
		ch.fnum = ch.fnum&0x300 | uint16(val)
		c.updateChannel(ch)
		return
	}
	ch.fnum = ch.fnum&0xFF | uint16(val&3)<<8
	ch.block = (val >> 2) & 7
	c.updateChannel(ch)

	ops := []*dbOperator{&ch.op[0], &ch.op[1]}
	if ch.mode == dbFourOp {
		b := &c.ch[ch.pair]
		ops = append(ops, &b.op[0], &b.op[1])
	}
	for _, op := range ops {
		if val&regB0Key != 0 {
			op.keyOn(keyNormal, c.opts.freeRun)
		} else {
			op.keyOff(keyNormal)
		}
	}
}

// updateChannel propagates the channel frequency to its operators and, for
// a 4-op pair, to the partner channel.
func (c *dosboxCore) updateChannel(ch *dbChannel) {
	for i := range ch.op {
		ch.op[i].updateFrequency(ch.fnum, ch.block, c.nts, c.tb.freqBase)
	}
	if ch.mode != dbFourOp {
		return
	}
	b := &c.ch[ch.pair]
	b.fnum = ch.fnum
	b.block = ch.block
	for i := range b.op {
		b.op[i].updateFrequency(b.fnum, b.block, c.nts, c.tb.freqBase)
	}
}

func (c *dosboxCore) updateModes() {
	for i := range c.ch {
		c.ch[i].mode = dbTwoOp
		c.ch[i].pair = -1
	}
	if !c.opts.opl3 || !c.newm {
		return
	}
	for bit := 0; bit < 6; bit++ {
		if c.conn&(1<<bit) == 0 {
			continue
		}
		a := (bit/3)*9 + bit%3
		c.ch[a].mode = dbFourOp
		c.ch[a].pair = a + 3
		c.ch[a+3].mode = dbFourTail
	}
}

func (c *dosboxCore) writeBD(val uint8) {
	c.regBD = val
	bd, hs, tc := &c.ch[6], &c.ch[7], &c.ch[8]
	if val&regBDRhythm == 0 {
		for _, op := range []*dbOperator{&bd.op[0], &bd.op[1], &hs.op[0], &hs.op[1], &tc.op[0], &tc.op[1]} {
			op.keyOff(keyRhythm)
		}
		return
	}
	c.rhythmKey(&bd.op[0], val&regBDBass != 0)
	c.rhythmKey(&bd.op[1], val&regBDBass != 0)
	c.rhythmKey(&hs.op[0], val&regBDHiHat != 0)
	c.rhythmKey(&hs.op[1], val&regBDSnare != 0)
	c.rhythmKey(&tc.op[0], val&regBDTom != 0)
	c.rhythmKey(&tc.op[1], val&regBDCymbal != 0)
}

func (c *dosboxCore) rhythmKey(op *dbOperator, on bool) {
	if on {
		op.keyOn(keyRhythm, c.opts.freeRun)
	} else {
		op.keyOff(keyRhythm)
	}
}

// rhythm renders the percussion channels 6-8. Each result is doubled.
func (c *dosboxCore) rhythm(am uint16, noise uint32) [3]int32 {
	bd, hs, tc := &c.ch[6], &c.ch[7], &c.ch[8]

	o1 := bd.op[0].feedback(bd.fb, am)
	var bass int32
	if bd.regC0&regC0Cnt != 0 {
		bass = bd.op[1].output(0, am)
	} else {
		bass = bd.op[1].output(o1, am)
	}

	hh, sd, cy := rhythmPhases(hs.op[0].index(), tc.op[1].index(), noise)
	hat := hs.op[0].outputAt(hh, am)
	snare := hs.op[1].outputAt(sd, am)
	tom := tc.op[0].output(0, am)
	cym := tc.op[1].outputAt(cy, am)

	return [3]int32{bass * 2, (hat + snare) * 2, (tom + cym) * 2}
}

// pan reports the left and right enables of a channel.
func (c *dosboxCore) pan(ch *dbChannel) (bool, bool) {
	if !c.opts.opl3 || !c.newm {
		return true, true
	}
	return ch.regC0&regC0PanL != 0, ch.regC0&regC0PanR != 0
}

func (c *dosboxCore) Generate(buf []int16) {
	if c.opts.opl3 {
		for i := 0; i+1 < len(buf); i += 2 {
			l, r := c.sample()
			buf[i] = clamp16(l)
			buf[i+1] = clamp16(r)
		}
		return
	}
	for i := range buf {
		l, _ := c.sample()
		buf[i] = clamp16(l)
	}
}

// sample renders one output sample, then advances phases and runs the
// native ticks that elapse during it.
func (c *dosboxCore) sample() (int32, int32) {
	am := c.tb.tremolo(c.regBD&regBDAMDepth != 0)
	vibDeep := c.regBD&regBDVibDepth != 0
	vibPos := c.tb.vibratoPos()
	rhythm := c.regBD&regBDRhythm != 0

	var l, r int32
	mix := func(ch *dbChannel, v int32) {
		pl, pr := c.pan(ch)
		if pl {
			l += v
		}
		if pr {
			r += v
		}
	}

	for i := 0; i < c.nch; i++ {
		ch := &c.ch[i]
		if rhythm && i >= rhythmBase && i < 9 {
			continue
		}
		switch ch.mode {
		case dbFourTail:
		case dbFourOp:
			mix(ch, renderFourOp(ch, &c.ch[ch.pair], am))
		default:
			mix(ch, ch.twoOp(am))
		}
	}
	if rhythm {
		out := c.rhythm(am, c.tb.noiseBit())
		for k, v := range out {
			mix(&c.ch[rhythmBase+k], v)
		}
	}

	for i := 0; i < c.nch; i++ {
		ch := &c.ch[i]
		ch.op[0].step(ch.fnum, ch.block, c.tb.freqBase, vibDeep, vibPos)
		ch.op[1].step(ch.fnum, ch.block, c.tb.freqBase, vibDeep, vibPos)
	}

	for n := c.tb.pending(); n > 0; n-- {
		cnt := c.tb.tick()
		for i := 0; i < c.nch; i++ {
			ch := &c.ch[i]
			dbEnvStep[ch.op[0].stage](&ch.op[0], cnt)
			dbEnvStep[ch.op[1].stage](&ch.op[1], cnt)
		}
	}
	return l, r
}
