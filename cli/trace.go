package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/user-none/go-adlib/adlib"
)

type regKind int

const (
	kindUnknown regKind = iota
	kindGlobal
	kindOperator
	kindChannel
	kindKeyOn
)

// slotName decodes an operator register offset to channel and operator.
func slotName(off uint8) (string, bool) {
	if off >= 0x18 {
		return "", false
	}
	idx := off & 7
	if idx >= 6 {
		return "", false
	}
	return fmt.Sprintf("ch%d.op%d", (off>>3)*3+idx%3, idx/3+1), true
}

func onOff(v uint8, bit uint8) int {
	if v&bit != 0 {
		return 1
	}
	return 0
}

// describe returns a readable decode of one register write.
func describe(addr uint32, val uint8) (string, regKind) {
	bank := addr >> 8 & 1
	reg := uint8(addr)

	switch {
	case reg == 0x01 && bank == 0:
		return fmt.Sprintf("wse=%d", onOff(val, 0x20)), kindGlobal
	case reg == 0x02 && bank == 0:
		return fmt.Sprintf("timer1=%d", val), kindGlobal
	case reg == 0x03 && bank == 0:
		return fmt.Sprintf("timer2=%d", val), kindGlobal
	case reg == 0x04 && bank == 0:
		if val&0x80 != 0 {
			return "irq reset", kindGlobal
		}
		return fmt.Sprintf("timer start=%d%d mask=%d%d",
			onOff(val, 0x01), onOff(val, 0x02), onOff(val, 0x40), onOff(val, 0x20)), kindGlobal
	case reg == 0x04:
		return fmt.Sprintf("4op=%06b", val&0x3F), kindGlobal
	case reg == 0x05 && bank == 1:
		return fmt.Sprintf("opl3=%d", val&1), kindGlobal
	case reg == 0x08 && bank == 0:
		return fmt.Sprintf("csm=%d nts=%d", onOff(val, 0x80), onOff(val, 0x40)), kindGlobal
	case reg == 0xBD && bank == 0:
		drums := []string{"hh", "cy", "tt", "sd", "bd"}
		var on []string
		for i, name := range drums {
			if val&(1<<i) != 0 {
				on = append(on, name)
			}
		}
		return fmt.Sprintf("am=%d vib=%d rhythm=%d [%s]",
			onOff(val, 0x80), onOff(val, 0x40), onOff(val, 0x20), strings.Join(on, " ")), kindGlobal
	}

	hi := reg & 0xE0
	if hi >= 0x20 && hi <= 0x80 || hi == 0xE0 {
		slot, ok := slotName(reg & 0x1F)
		if !ok {
			return "", kindUnknown
		}
		switch hi {
		case 0x20:
			return fmt.Sprintf("%s am=%d vib=%d egt=%d ksr=%d mult=%d", slot,
				onOff(val, 0x80), onOff(val, 0x40), onOff(val, 0x20), onOff(val, 0x10), val&0x0F), kindOperator
		case 0x40:
			return fmt.Sprintf("%s ksl=%d tl=%d", slot, val>>6, val&0x3F), kindOperator
		case 0x60:
			return fmt.Sprintf("%s ar=%d dr=%d", slot, val>>4, val&0x0F), kindOperator
		case 0x80:
			return fmt.Sprintf("%s sl=%d rr=%d", slot, val>>4, val&0x0F), kindOperator
		}
		return fmt.Sprintf("%s wave=%d", slot, val&0x07), kindOperator
	}

	ch := reg & 0x0F
	if ch > 8 {
		return "", kindUnknown
	}
	switch reg & 0xF0 {
	case 0xA0:
		return fmt.Sprintf("ch%d fnum.lo=0x%02X", ch, val), kindChannel
	case 0xB0:
		kind := kindChannel
		if val&0x20 != 0 {
			kind = kindKeyOn
		}
		return fmt.Sprintf("ch%d key=%d block=%d fnum.hi=%d", ch, onOff(val, 0x20), val>>2&7, val&3), kind
	case 0xC0:
		return fmt.Sprintf("ch%d fb=%d cnt=%d pan=%d%d", ch, val>>1&7, val&1, onOff(val, 0x10), onOff(val, 0x20)), kindChannel
	}
	return "", kindUnknown
}

// Tracer prints every register write with a decode.
type Tracer struct {
	w      io.Writer
	styles styles
	frame  int64
}

// NewTracer returns a tracer that writes styled lines to w.
func NewTracer(w io.Writer) *Tracer {
	return &Tracer{w: w, styles: newStyles()}
}

// SetFrame sets the sample position printed with each write.
func (t *Tracer) SetFrame(frame int64) {
	t.frame = frame
}

// Write is installed as the chip's write hook.
func (t *Tracer) Write(addr uint32, val uint8) {
	text, kind := describe(addr, val)
	style := t.styles.idle
	switch kind {
	case kindGlobal:
		style = t.styles.global
	case kindOperator:
		style = t.styles.operator
	case kindChannel:
		style = t.styles.channel
	case kindKeyOn:
		style = t.styles.keyOn
	}
	fmt.Fprintf(t.w, "%10d %s=%02X %s\n", t.frame,
		t.styles.addr.Render(fmt.Sprintf("$%03X", addr)), val, style.Render(text))
}

// statusLines renders one line per active driver channel.
func statusLines(st styles, drv *adlib.Driver) []string {
	var lines []string
	for i := 0; i < adlib.NumChannels; i++ {
		s := drv.State(i)
		if s.Fault != nil {
			lines = append(lines, st.err.Render(fmt.Sprintf("ch%d fault: %v", i, s.Fault)))
			continue
		}
		if !s.Active {
			continue
		}
		owner := st.music
		if s.Owner == adlib.OwnerEffect {
			owner = st.effect
		}
		state := "run"
		if s.Halted {
			state = "halt"
		}
		lines = append(lines, fmt.Sprintf("ch%d %s prio=%3d pc=%05d %s",
			i, owner.Render(fmt.Sprintf("%-5s", s.Owner)), s.Priority, s.PC, state))
	}
	return lines
}
