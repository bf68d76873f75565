package opl

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	chipSerializeVersion = 1
	// Per-timer: reload(1) + running(1) + masked(1) + overflow(1) + elapsed(8) = 12
	timerSerializeSize = 12
	// Front end:
	// version(1) + type(1) + backend(1) + latch(2*4) + regs(2*256) + 4 timers * 12 = 571
	chipHeaderSize = 3 + 2*4 + 2*256 + 4*timerSerializeSize
	// Timebase: acc(4) + egCnt(4) + amCnt(2) + pmCnt(2) + noise(4) = 16
	timebaseSerializeSize = 16
	// Per-operator dynamic state:
	// phase(4) + env(2) + stage(1) + keys(1) + out(2*4) = 16
	operatorSerializeSize = 16
)

// ErrBadState is returned when a snapshot does not fit the chip.
var ErrBadState = errors.New("opl: bad state snapshot")

// coreState is implemented by cores that can snapshot the state which is
// not derivable from the register shadow: phases, envelopes, key sources,
// feedback history and the shared counters.
type coreState interface {
	stateSize() int
	saveState(buf []byte) int
	loadState(buf []byte) int
}

// SerializeSize returns the number of bytes needed to serialize the chip.
func (c *Chip) SerializeSize() int {
	return chipHeaderSize + c.handler.(coreState).stateSize()
}

// Serialize writes the chip state into buf. buf must be at least
// SerializeSize bytes.
func (c *Chip) Serialize(buf []byte) error {
	if len(buf) < c.SerializeSize() {
		return fmt.Errorf("%w: buffer too small", ErrBadState)
	}

	offset := 0
	buf[offset] = chipSerializeVersion
	buf[offset+1] = uint8(c.cfg.Type)
	buf[offset+2] = uint8(c.cfg.Backend)
	offset += 3

	for _, l := range c.latch {
		binary.LittleEndian.PutUint32(buf[offset:], l)
		offset += 4
	}
	for bank := range c.regs {
		offset += copy(buf[offset:], c.regs[bank][:])
	}
	for i := range c.timers {
		for k := range c.timers[i].t {
			offset = serializeTimer(&c.timers[i].t[k], buf, offset)
		}
	}

	c.handler.(coreState).saveState(buf[offset:])
	return nil
}

// Deserialize restores chip state from buf. The snapshot must come from a
// chip of the same type and backend; the sample rate is the receiver's.
func (c *Chip) Deserialize(buf []byte) error {
	if len(buf) < c.SerializeSize() {
		return fmt.Errorf("%w: buffer too small", ErrBadState)
	}
	if buf[0] != chipSerializeVersion {
		return fmt.Errorf("%w: version %d", ErrBadState, buf[0])
	}
	if Type(buf[1]) != c.cfg.Type || Backend(buf[2]) != c.cfg.Backend {
		return fmt.Errorf("%w: snapshot is %s/%s, chip is %s/%s",
			ErrBadState, Backend(buf[2]), Type(buf[1]), c.cfg.Backend, c.cfg.Type)
	}

	offset := 3
	for i := range c.latch {
		c.latch[i] = binary.LittleEndian.Uint32(buf[offset:])
		offset += 4
	}
	for bank := range c.regs {
		offset += copy(c.regs[bank][:], buf[offset:offset+256])
	}
	for i := range c.timers {
		for k := range c.timers[i].t {
			offset = deserializeTimer(&c.timers[i].t[k], buf, offset)
		}
	}

	// Rebuild the decoded register state, then overwrite what evolves
	// during synthesis.
	if err := c.handler.Init(c.cfg.SampleRate); err != nil {
		return fmt.Errorf("opl: restore: %w", err)
	}
	c.replayRegisters()
	c.handler.(coreState).loadState(buf[offset:])
	return nil
}

// replayRegisters writes the register shadow to the core. OPL3 mode and
// the 4-op connection bits go first so later writes decode the same way.
func (c *Chip) replayRegisters() {
	banks := 1
	if c.cfg.Type != TypeOPL2 {
		banks = 2
	}
	if c.cfg.Type == TypeOPL3 {
		c.handler.WriteReg(0x105, c.regs[1][0x05])
		c.handler.WriteReg(0x104, c.regs[1][0x04])
	}
	for bank := 0; bank < banks; bank++ {
		for r := 0; r < 256; r++ {
			if r >= 0x02 && r <= 0x04 && (c.cfg.Type != TypeOPL3 || bank == 0) {
				continue
			}
			if c.cfg.Type == TypeOPL3 && bank == 1 && (r == 0x04 || r == 0x05) {
				continue
			}
			c.handler.WriteReg(uint32(bank)<<8|uint32(r), c.regs[bank][r])
		}
	}
}

func serializeTimer(t *timer, buf []byte, offset int) int {
	buf[offset] = t.reload
	buf[offset+1] = boolByte(t.running)
	buf[offset+2] = boolByte(t.masked)
	buf[offset+3] = boolByte(t.overflow)
	binary.LittleEndian.PutUint64(buf[offset+4:], t.elapsed)
	return offset + timerSerializeSize
}

func deserializeTimer(t *timer, buf []byte, offset int) int {
	t.reload = buf[offset]
	t.running = buf[offset+1] != 0
	t.masked = buf[offset+2] != 0
	t.overflow = buf[offset+3] != 0
	t.elapsed = binary.LittleEndian.Uint64(buf[offset+4:])
	return offset + timerSerializeSize
}

func serializeTimebase(tb *timebase, buf []byte, offset int) int {
	binary.LittleEndian.PutUint32(buf[offset:], tb.acc)
	binary.LittleEndian.PutUint32(buf[offset+4:], tb.egCnt)
	binary.LittleEndian.PutUint16(buf[offset+8:], tb.amCnt)
	binary.LittleEndian.PutUint16(buf[offset+10:], tb.pmCnt)
	binary.LittleEndian.PutUint32(buf[offset+12:], tb.noise)
	return offset + timebaseSerializeSize
}

func deserializeTimebase(tb *timebase, buf []byte, offset int) int {
	tb.acc = binary.LittleEndian.Uint32(buf[offset:])
	tb.egCnt = binary.LittleEndian.Uint32(buf[offset+4:])
	tb.amCnt = binary.LittleEndian.Uint16(buf[offset+8:])
	tb.pmCnt = binary.LittleEndian.Uint16(buf[offset+10:])
	tb.noise = binary.LittleEndian.Uint32(buf[offset+12:])
	return offset + timebaseSerializeSize
}

// putOperator writes the layout shared by both cores' operators.
func putOperator(buf []byte, offset int, phase uint32, env uint16, stage envStage, keys uint8, out [2]int32) int {
	binary.LittleEndian.PutUint32(buf[offset:], phase)
	binary.LittleEndian.PutUint16(buf[offset+4:], env)
	buf[offset+6] = uint8(stage)
	buf[offset+7] = keys
	binary.LittleEndian.PutUint32(buf[offset+8:], uint32(out[0]))
	binary.LittleEndian.PutUint32(buf[offset+12:], uint32(out[1]))
	return offset + operatorSerializeSize
}

func getOperator(buf []byte, offset int) (phase uint32, env uint16, stage envStage, keys uint8, out [2]int32) {
	phase = binary.LittleEndian.Uint32(buf[offset:])
	env = binary.LittleEndian.Uint16(buf[offset+4:])
	stage = envStage(buf[offset+6])
	keys = buf[offset+7]
	out[0] = int32(binary.LittleEndian.Uint32(buf[offset+8:]))
	out[1] = int32(binary.LittleEndian.Uint32(buf[offset+12:]))
	return
}

func (c *dosboxCore) stateSize() int {
	return timebaseSerializeSize + len(c.ch)*2*operatorSerializeSize
}

func (c *dosboxCore) saveState(buf []byte) int {
	offset := serializeTimebase(&c.tb, buf, 0)
	for i := range c.ch {
		for k := range c.ch[i].op {
			o := &c.ch[i].op[k]
			offset = putOperator(buf, offset, o.phase, o.env, o.stage, o.keys, o.out)
		}
	}
	return offset
}

func (c *dosboxCore) loadState(buf []byte) int {
	offset := deserializeTimebase(&c.tb, buf, 0)
	for i := range c.ch {
		for k := range c.ch[i].op {
			o := &c.ch[i].op[k]
			o.phase, o.env, o.stage, o.keys, o.out = getOperator(buf, offset)
			offset += operatorSerializeSize
		}
	}
	return offset
}

func (c *mameCore) stateSize() int {
	return timebaseSerializeSize + len(c.ch)*2*operatorSerializeSize
}

func (c *mameCore) saveState(buf []byte) int {
	offset := serializeTimebase(&c.tb, buf, 0)
	for i := range c.ch {
		for k := range c.ch[i].slot {
			s := &c.ch[i].slot[k]
			offset = putOperator(buf, offset, s.phase, uint16(s.volume), s.state, s.key, s.op1Out)
		}
	}
	return offset
}

func (c *mameCore) loadState(buf []byte) int {
	offset := deserializeTimebase(&c.tb, buf, 0)
	for i := range c.ch {
		for k := range c.ch[i].slot {
			s := &c.ch[i].slot[k]
			var vol uint16
			s.phase, vol, s.state, s.key, s.op1Out = getOperator(buf, offset)
			s.volume = int32(vol)
			offset += operatorSerializeSize
		}
	}
	return offset
}

func (d *dualHandler) stateSize() int {
	return d.side[0].(coreState).stateSize() + d.side[1].(coreState).stateSize()
}

func (d *dualHandler) saveState(buf []byte) int {
	n := d.side[0].(coreState).saveState(buf)
	return n + d.side[1].(coreState).saveState(buf[n:])
}

func (d *dualHandler) loadState(buf []byte) int {
	n := d.side[0].(coreState).loadState(buf)
	return n + d.side[1].(coreState).loadState(buf[n:])
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
