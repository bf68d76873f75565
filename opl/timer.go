package opl

// Timer resolutions in microseconds per count.
const (
	timer1Micros = 80
	timer2Micros = 320
)

// Status register bits.
const (
	StatusIRQ    = 0x80
	StatusTimer1 = 0x40
	StatusTimer2 = 0x20
)

// timer is one of the two OPL countdown timers. Time is kept as
// microseconds multiplied by the output sample rate so that overflow
// happens on an exact, reproducible sample.
type timer struct {
	reload   uint8  // Register $02 or $03
	micros   uint64 // Microseconds per count
	running  bool
	masked   bool
	overflow bool
	elapsed  uint64 // microseconds * sampleRate since last reload
}

// advance moves the timer forward by the given number of output samples.
func (t *timer) advance(samples int, rate uint64) {
	if !t.running {
		return
	}
	t.elapsed += uint64(samples) * 1000000
	period := uint64(256-int(t.reload)) * t.micros * rate
	if t.elapsed < period {
		return
	}
	t.elapsed %= period
	if !t.masked {
		t.overflow = true
	}
}

// control applies the mask and start bits from register $04.
func (t *timer) control(masked, start bool) {
	t.masked = masked
	if masked {
		t.overflow = false
	}
	if start && !t.running {
		t.elapsed = 0
	}
	t.running = start
}

// timerPair holds both timers of one chip.
type timerPair struct {
	t [2]timer
}

func (p *timerPair) reset() {
	p.t[0] = timer{micros: timer1Micros}
	p.t[1] = timer{micros: timer2Micros}
}

// write handles registers $02-$04.
func (p *timerPair) write(reg, val uint8) {
	switch reg {
	case 0x02:
		p.t[0].reload = val
	case 0x03:
		p.t[1].reload = val
	case 0x04:
		// IRQ reset ignores the other bits
		if val&0x80 != 0 {
			p.t[0].overflow = false
			p.t[1].overflow = false
			return
		}
		p.t[0].control(val&0x40 != 0, val&0x01 != 0)
		p.t[1].control(val&0x20 != 0, val&0x02 != 0)
	}
}

func (p *timerPair) advance(samples int, rate uint64) {
	p.t[0].advance(samples, rate)
	p.t[1].advance(samples, rate)
}

// status returns the status register value.
func (p *timerPair) status() uint8 {
	var s uint8
	if p.t[0].overflow {
		s |= StatusTimer1
	}
	if p.t[1].overflow {
		s |= StatusTimer2
	}
	if s != 0 {
		s |= StatusIRQ
	}
	return s
}
