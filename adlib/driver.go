package adlib

import (
	"errors"
	"math"

	"github.com/user-none/go-adlib/opl"
)

// Driver layout and timing.
const (
	NumChannels    = 10 // 0-8 drive OPL channels, 9 is the control channel
	ControlChannel = 9
	TickRate       = 72 // Driver ticks per second

	stackDepth    = 4
	maxOpsPerTick = 256
	offsetBias    = 191 // Jump and call targets are stored biased
)

// Bytecode faults. A faulting channel is stopped; Fault reports why.
// Opcodes past the end of the table are not faults, they stop the channel.
var (
	ErrTruncated      = errors.New("truncated program")
	ErrBadProgram     = errors.New("program id out of range")
	ErrBadInstrument  = errors.New("instrument id out of range")
	ErrBadOperand     = errors.New("operand out of range")
	ErrStackOverflow  = errors.New("subroutine stack overflow")
	ErrStackUnderflow = errors.New("return without call")
	ErrRunaway        = errors.New("too many opcodes in one tick")
)

// Owner tells music and sound effect programs apart.
type Owner uint8

const (
	OwnerNone Owner = iota
	OwnerMusic
	OwnerEffect
)

func (o Owner) String() string {
	switch o {
	case OwnerMusic:
		return "music"
	case OwnerEffect:
		return "sfx"
	}
	return "-"
}

// regOffset maps a channel to its first operator register offset.
var regOffset = [9]uint8{0x00, 0x01, 0x02, 0x08, 0x09, 0x0A, 0x10, 0x11, 0x12}

// freqTable holds the F-numbers of the twelve semitones.
var freqTable = [12]uint16{
	0x134, 0x147, 0x15A, 0x16F, 0x184, 0x19C, 0x1B4, 0x1CE, 0x1E9, 0x207, 0x225, 0x246,
}

// bendSteps is the number of entries in each pitch bend row. One step is
// a sixteenth of a semitone.
const bendSteps = 32

// bendUp and bendDown hold, per semitone, the F-number offset of a pitch
// bend of n steps.
var bendUp, bendDown = func() (up, down [12][bendSteps]uint8) {
	for n, f := range freqTable {
		for k := 0; k < bendSteps; k++ {
			r := math.Pow(2, float64(k)/(16*12))
			up[n][k] = uint8(math.Round(float64(f) * (r - 1)))
			down[n][k] = uint8(math.Round(float64(f) * (1 - 1/r)))
		}
	}
	return up, down
}()

// effect is the kind of primary effect a channel runs after its opcodes.
type effect uint8

const (
	effectNone effect = iota
	effectSlide
	effectVibrato
)

// step is the result of one opcode.
type step uint8

const (
	stepNext  step = iota // Keep interpreting this tick
	stepYield             // Done for this tick, run effects
	stepHold              // Done for this tick, skip effects
)

type channel struct {
	pc       int // Offset into sound data, -1 when idle
	stack    [stackDepth]int
	sp       int
	owner    Owner
	halted   bool
	haltPrio uint8
	fault    error

	priority   uint8
	tempo      uint8
	tempoReset uint8
	position   uint8
	duration   uint8

	spacing1           uint8
	spacing2           uint8
	fractionalSpacing  uint8
	durationRandomness uint8
	repeatCounter      uint8

	baseNote   int8
	baseOctave int8
	baseFreq   uint8
	rawNote    uint8

	regAx uint8
	regBx uint8

	twoChan     bool
	opLevel1    uint8
	opLevel2    uint8
	extraLevel1 uint8
	extraLevel2 uint8
	extraLevel3 uint8
	fade        uint8 // Attenuation added by a fade out

	primary    effect
	slideTempo uint8
	slideTimer uint8
	slideStep  int16

	vibTempo      uint8
	vibTimer      uint8
	vibRange      uint8 // F-number shift that sizes the step
	vibSteps      uint8 // Steps per swing after the first
	vibCountdown  uint8
	vibDelay      uint8 // Ticks after key-on before the vibrato starts
	vibDelayCount uint8
	vibStep       int16

	// Secondary effect: cycles a register through a table in the sound data
	fx2      bool
	fx2Tempo uint8
	fx2Timer uint8
	fx2Reg   uint8
	fx2Size  int
	fx2Pos   int
	fx2Data  int

	pitchBend int8
}

// ChannelState is a snapshot of one driver channel.
type ChannelState struct {
	Active   bool
	Halted   bool
	Owner    Owner
	Priority uint8
	PC       int
	Fault    error
}

// Driver runs the bytecode programs of a song against one chip. It holds
// an exclusive claim on the chip until Close.
type Driver struct {
	chip *opl.Chip
	song *Song
	ch   [NumChannels]channel

	tempo      uint8 // Global tempo, copied by channels with tempo reset
	rhythmBits uint8 // $BD rhythm enable and drum keys
	depthBits  uint8 // $BD AM and vibrato depth
	rnd        uint16

	// Beat counter for waitForNextBeat, advanced by the global tempo
	beatDivider  uint8
	beatDivCount uint8
	beatTimer    uint8
	beatCounter  uint8
	beatArmed    bool

	drums        [5]drumLevel // Indexed by $BD drum bit
	soundTrigger uint8

	fading    bool
	fadeLevel uint8
	fadeTimer int
}

// drumLevel is the total level of one rhythm voice: the instrument level
// plus two adjustments set by the bytecode.
type drumLevel struct {
	base   uint8
	extra1 uint8
	extra2 uint8
}

func (l *drumLevel) level() uint8 {
	return clampLevel(int(l.base&0x3F)+int(l.extra1)+int(l.extra2)) | l.base&0xC0
}

// drumLevelReg is the total level register of each drum, in $BD bit
// order: hi-hat, cymbal, tom, snare, bass drum.
var drumLevelReg = [5]uint8{0x51, 0x55, 0x52, 0x54, 0x53}

// fadeTicksPerStep is the number of ticks per attenuation step of a fade.
const fadeTicksPerStep = 2

// NewDriver claims the chip and resets it for playback.
func NewDriver(chip *opl.Chip, song *Song) (*Driver, error) {
	if err := chip.Claim(); err != nil {
		return nil, err
	}
	d := &Driver{chip: chip, song: song}
	d.Reset()
	return d, nil
}

// Close stops every channel and releases the chip.
func (d *Driver) Close() {
	for i := range d.ch {
		if d.ch[i].pc >= 0 {
			d.stopChannel(i)
		}
	}
	d.chip.Release()
}

// Reset silences the chip and clears every channel.
func (d *Driver) Reset() {
	d.rnd = 0x1234
	d.tempo = 0xFF
	d.rhythmBits = 0
	d.depthBits = 0
	d.beatDivider, d.beatDivCount, d.beatTimer, d.beatCounter = 0, 0, 0, 0
	d.beatArmed = false
	d.drums = [5]drumLevel{}
	d.soundTrigger = 0
	d.fading = false
	d.fadeLevel = 0

	d.write(0x01, 0x20) // waveform select enable
	d.write(0x08, 0x00)
	d.write(0xBD, 0x00)
	for i := NumChannels - 1; i >= 0; i-- {
		if i != ControlChannel {
			d.write(0x40+regOffset[i], 0x3F)
			d.write(0x43+regOffset[i], 0x3F)
		}
		d.initChannel(&d.ch[i])
	}
}

func (d *Driver) write(reg, val uint8) {
	d.chip.WriteReg(uint32(reg), val)
}

func (d *Driver) initChannel(ch *channel) {
	*ch = channel{pc: -1, tempo: 0xFF, spacing1: 1}
}

// State returns a snapshot of channel i.
func (d *Driver) State(i int) ChannelState {
	ch := &d.ch[i]
	return ChannelState{
		Active:   ch.pc >= 0,
		Halted:   ch.halted,
		Owner:    ch.owner,
		Priority: ch.priority,
		PC:       ch.pc,
		Fault:    ch.fault,
	}
}

// SoundTrigger returns the last value set by the setSoundTrigger opcode.
// Games poll it to synchronize with the music.
func (d *Driver) SoundTrigger() uint8 {
	return d.soundTrigger
}

// Fault returns the error that stopped channel i, if any.
func (d *Driver) Fault(i int) error {
	if i < 0 || i >= NumChannels {
		return ErrBadOperand
	}
	return d.ch[i].fault
}

// PlayTrack stops the current music and starts a program as music.
func (d *Driver) PlayTrack(program uint8) error {
	d.StopMusic()
	_, err := d.startProgram(program, OwnerMusic)
	return err
}

// PlaySoundEffect starts a program as a sound effect. It reports whether
// the program took its channel.
func (d *Driver) PlaySoundEffect(program uint8) (bool, error) {
	return d.startProgram(program, OwnerEffect)
}

// StopMusic stops every music channel.
func (d *Driver) StopMusic() {
	for i := range d.ch {
		if d.ch[i].owner == OwnerMusic {
			d.stopChannel(i)
		}
	}
	d.fading = false
	d.fadeLevel = 0
}

// HaltTrack keys off the music channels and suspends them in place. The
// channels drop to priority 0 so sound effects can use them meanwhile.
func (d *Driver) HaltTrack() {
	for i := range d.ch {
		ch := &d.ch[i]
		if ch.owner != OwnerMusic || ch.pc < 0 || ch.halted {
			continue
		}
		ch.halted = true
		ch.haltPrio = ch.priority
		ch.priority = 0
		if i >= 6 && i < ControlChannel && d.rhythmBits != 0 {
			d.rhythmBits &= 0x20
			d.write(0xBD, d.depthBits|d.rhythmBits)
		}
		d.noteOff(i)
	}
}

// ResumeTrack continues halted music channels that were not taken over.
func (d *Driver) ResumeTrack() {
	for i := range d.ch {
		ch := &d.ch[i]
		if !ch.halted {
			continue
		}
		ch.halted = false
		ch.priority = ch.haltPrio
	}
}

// IsPlaying reports whether any music channel is running.
func (d *Driver) IsPlaying() bool {
	for i := range d.ch {
		ch := &d.ch[i]
		if ch.owner == OwnerMusic && ch.pc >= 0 && !ch.halted {
			return true
		}
	}
	return false
}

// BeginFadeOut ramps the music channels down to silence and then stops
// them. It has no effect while a fade is already running.
func (d *Driver) BeginFadeOut() {
	if d.fading || !d.IsPlaying() {
		return
	}
	d.fading = true
	d.fadeTimer = 0
}

// startProgram starts a program on the channel named in its header if the
// program's priority is at least the channel's current one.
func (d *Driver) startProgram(id uint8, own Owner) (bool, error) {
	off, err := d.song.program(id)
	if err != nil {
		return false, err
	}
	sound := d.song.sound
	n := int(sound[off])
	prio := sound[off+1]
	if n >= NumChannels {
		return false, ErrBadOperand
	}
	ch := &d.ch[n]
	if prio < ch.priority {
		return false, nil
	}
	d.initChannel(ch)
	ch.priority = prio
	ch.pc = off + 2
	ch.position = 0xFF
	ch.duration = 1
	ch.owner = own
	if own == OwnerMusic && d.fading {
		ch.fade = d.fadeLevel
	}
	d.resetVoice(n)
	return true, nil
}

// resetVoice cuts the envelope of a channel and retriggers it with the
// fastest rates so the new program starts from silence.
func (d *Driver) resetVoice(n int) {
	if n >= 9 || (d.rhythmBits != 0 && n >= 6) {
		return
	}
	off := regOffset[n]
	d.write(0x60+off, 0xFF)
	d.write(0x63+off, 0xFF)
	d.write(0x80+off, 0xFF)
	d.write(0x83+off, 0xFF)
	d.write(0xB0+uint8(n), 0x00)
	d.write(0xB0+uint8(n), 0x20)
}

func (d *Driver) stopChannel(i int) {
	ch := &d.ch[i]
	ch.priority = 0
	if i != ControlChannel {
		d.noteOff(i)
	}
	ch.pc = -1
	ch.owner = OwnerNone
	ch.halted = false
}

func (d *Driver) faultChannel(i int, err error) step {
	d.stopChannel(i)
	d.ch[i].fault = err
	return stepHold
}

// Tick runs one 72 Hz driver step over all channels, control channel
// first.
func (d *Driver) Tick() {
	for i := ControlChannel; i >= 0; i-- {
		d.runChannel(i)
	}
	d.stepBeat()
	d.stepFade()
}

// stepBeat advances the beat counter once every beatDivider carries of
// the global tempo.
func (d *Driver) stepBeat() {
	old := d.beatTimer
	d.beatTimer += d.tempo
	if d.beatTimer >= old {
		return
	}
	d.beatDivCount--
	if d.beatDivCount == 0 {
		d.beatDivCount = d.beatDivider
		d.beatCounter++
	}
}

func (d *Driver) runChannel(i int) {
	ch := &d.ch[i]
	if ch.pc < 0 || ch.halted {
		return
	}
	if ch.tempoReset != 0 {
		ch.tempo = d.tempo
	}

	result := stepYield
	old := ch.position
	ch.position += ch.tempo
	if ch.position < old {
		ch.duration--
		if ch.duration != 0 {
			if ch.duration == ch.spacing2 {
				d.noteOff(i)
			}
			if ch.duration == ch.spacing1 && i != ControlChannel {
				d.noteOff(i)
			}
		} else {
			result = d.interpret(i)
		}
	}
	if result != stepYield || ch.pc < 0 {
		return
	}
	switch ch.primary {
	case effectSlide:
		d.pitchSlide(i)
	case effectVibrato:
		d.vibrato(i)
	}
	if ch.fx2 {
		d.secondaryEffect(i)
	}
}

// interpret executes opcodes on channel i until one yields.
func (d *Driver) interpret(i int) step {
	ch := &d.ch[i]
	sound := d.song.sound
	result := stepYield

	for n := 0; ; n++ {
		if n >= maxOpsPerTick {
			return d.faultChannel(i, ErrRunaway)
		}
		if ch.pc < 0 {
			return stepHold
		}
		if ch.pc >= len(sound) {
			return d.faultChannel(i, ErrTruncated)
		}
		op := sound[ch.pc]

		if op < 0x80 {
			if ch.pc+1 >= len(sound) {
				return d.faultChannel(i, ErrTruncated)
			}
			dur := sound[ch.pc+1]
			ch.pc += 2
			d.setupNote(i, op, false)
			d.noteOn(i)
			d.setupDuration(ch, dur)
			if dur != 0 {
				return result
			}
			continue
		}

		def := lookupOpcode(op)
		end := ch.pc + 1 + def.operands
		if end > len(sound) {
			return d.faultChannel(i, ErrTruncated)
		}
		args := sound[ch.pc+1 : end]
		ch.pc = end
		result = def.fn(d, i, args)
		if result != stepNext {
			return result
		}
	}
}

// jumpTarget validates a biased absolute offset.
func (d *Driver) jumpTarget(v uint16) (int, bool) {
	t := int(v) - offsetBias
	if t < 0 || t >= len(d.song.sound) {
		return 0, false
	}
	return t, true
}

// setupNote programs the frequency of a note. The pitch bend is applied
// when set, or always when bend is true.
func (d *Driver) setupNote(i int, raw uint8, bend bool) {
	if i >= 9 {
		return
	}
	ch := &d.ch[i]
	ch.rawNote = raw

	note := int(raw&0x0F) + int(ch.baseNote)
	octave := ((int(raw) + int(ch.baseOctave)) >> 4) & 0x0F
	if note >= 12 {
		octave += note / 12
		note %= 12
	} else if note < 0 {
		n := -(note+1)/12 + 1
		octave -= n
		note += 12 * n
	}
	freq := int(freqTable[note]) + int(ch.baseFreq)
	if ch.pitchBend != 0 || bend {
		k := int(ch.pitchBend)
		if k < 0 {
			k = -k
		}
		if k >= bendSteps {
			k = bendSteps - 1
		}
		if ch.pitchBend >= 0 {
			freq += int(bendUp[note][k])
		} else {
			freq -= int(bendDown[note][k])
		}
	}
	if octave > 7 {
		octave = 7
	}
	if octave < 0 {
		octave = 0
	}

	ch.regAx = uint8(freq)
	ch.regBx = ch.regBx&0x20 | uint8(octave<<2) | uint8(freq>>8)&0x03
	d.write(0xA0+uint8(i), ch.regAx)
	d.write(0xB0+uint8(i), ch.regBx)
}

func (d *Driver) noteOn(i int) {
	if i >= 9 {
		return
	}
	ch := &d.ch[i]
	ch.regBx |= 0x20
	d.write(0xB0+uint8(i), ch.regBx)

	// Vibrato restarts from its delay with a step sized to the note
	shift := 9 - int(ch.vibRange)
	if shift < 0 {
		shift = 0
	}
	ch.vibStep = int16((int(ch.regBx&0x03)<<8 | int(ch.regAx)) >> shift & 0xFF)
	ch.vibDelayCount = ch.vibDelay
}

func (d *Driver) noteOff(i int) {
	if i >= 9 {
		return
	}
	if d.rhythmBits != 0 && i >= 6 {
		return
	}
	ch := &d.ch[i]
	ch.regBx &^= 0x20
	d.write(0xB0+uint8(i), ch.regBx)
}

func (d *Driver) setupDuration(ch *channel, dur uint8) {
	if ch.durationRandomness != 0 {
		ch.duration = dur + uint8(d.random())&ch.durationRandomness
		return
	}
	if ch.fractionalSpacing != 0 {
		ch.spacing2 = (dur >> 3) * ch.fractionalSpacing
	}
	ch.duration = dur
}

func (d *Driver) random() uint16 {
	d.rnd += 0x9248
	low := d.rnd & 7
	d.rnd >>= 3
	d.rnd |= low << 13
	return d.rnd
}

func clampLevel(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 0x3F {
		return 0x3F
	}
	return uint8(v)
}

// level1 is the modulator total level including the extra attenuation
// when the channel is additive.
func (ch *channel) level1() uint8 {
	v := int(ch.opLevel1 & 0x3F)
	if ch.twoChan {
		v += int(ch.extraLevel1) + int(ch.extraLevel2) + int(ch.extraLevel3) + int(ch.fade)
	}
	return clampLevel(v) | ch.opLevel1&0xC0
}

func (ch *channel) level2() uint8 {
	v := int(ch.opLevel2&0x3F) + int(ch.extraLevel1) + int(ch.extraLevel2) + int(ch.extraLevel3) + int(ch.fade)
	return clampLevel(v) | ch.opLevel2&0xC0
}

// setupInstrument writes an 11 byte operator block to channel n.
func (d *Driver) setupInstrument(n int, data []byte) {
	off := uint8(0)
	if n < 9 {
		off = regOffset[n]
	}
	ch := &d.ch[n]

	d.write(0x20+off, data[0])
	d.write(0x23+off, data[1])
	ch.twoChan = data[2]&0x01 != 0
	d.write(0xC0+uint8(n), data[2])
	d.write(0xE0+off, data[3])
	d.write(0xE3+off, data[4])
	ch.opLevel1 = data[5]
	ch.opLevel2 = data[6]
	d.write(0x40+off, ch.level1())
	d.write(0x43+off, ch.level2())
	d.write(0x60+off, data[7])
	d.write(0x63+off, data[8])
	d.write(0x80+off, data[9])
	d.write(0x83+off, data[10])
}

func (d *Driver) adjustVolume(n int) {
	if n >= 9 {
		return
	}
	ch := &d.ch[n]
	d.write(0x43+regOffset[n], ch.level2())
	if ch.twoChan {
		d.write(0x40+regOffset[n], ch.level1())
	}
}

// pitchSlide moves the channel frequency by its slide step each time the
// slide timer carries, shifting octave at the F-number range edges.
func (d *Driver) pitchSlide(i int) {
	if i >= 9 {
		return
	}
	ch := &d.ch[i]
	old := ch.slideTimer
	ch.slideTimer += ch.slideTempo
	if ch.slideTimer >= old {
		return
	}

	freq := int(ch.regBx&0x03)<<8 | int(ch.regAx)
	key := int(ch.regBx & 0x20)
	block := int(ch.regBx & 0x1C)

	freq += int(ch.slideStep)
	if ch.slideStep >= 0 {
		if freq >= 734 {
			freq >>= 1
			if freq&0x3FF == 0 {
				freq++
			}
			block = (block + 4) & 0x1C
		}
	} else if freq < 388 {
		freq <<= 1
		if freq&0x3FF == 0 {
			freq--
		}
		block = (block - 4) & 0x1C
	}
	freq &= 0x3FF

	ch.regAx = uint8(freq)
	ch.regBx = uint8(key|block) | uint8(freq>>8)
	d.write(0xA0+uint8(i), ch.regAx)
	d.write(0xB0+uint8(i), ch.regBx)
}

// vibrato swings the F-number around the note by the vibrato step,
// reversing direction every vibSteps carries of the vibrato timer.
func (d *Driver) vibrato(i int) {
	if i >= 9 {
		return
	}
	ch := &d.ch[i]
	if ch.vibDelayCount != 0 {
		ch.vibDelayCount--
		return
	}
	old := ch.vibTimer
	ch.vibTimer += ch.vibTempo
	if ch.vibTimer >= old {
		return
	}
	ch.vibCountdown--
	if ch.vibCountdown == 0 {
		ch.vibStep = -ch.vibStep
		ch.vibCountdown = ch.vibSteps
	}

	freq := (int(ch.regBx&0x03)<<8 | int(ch.regAx)) + int(ch.vibStep)
	freq &= 0x3FF
	ch.regAx = uint8(freq)
	ch.regBx = ch.regBx&0xFC | uint8(freq>>8)
	d.write(0xA0+uint8(i), ch.regAx)
	d.write(0xB0+uint8(i), ch.regBx)
}

// secondaryEffect writes the next byte of the effect table to the
// effect register each time the effect timer carries. The table is read
// backwards from fx2Size to 0 and wraps.
func (d *Driver) secondaryEffect(i int) {
	if i >= 9 {
		return
	}
	ch := &d.ch[i]
	old := ch.fx2Timer
	ch.fx2Timer += ch.fx2Tempo
	if ch.fx2Timer >= old {
		return
	}
	ch.fx2Pos--
	if ch.fx2Pos < 0 {
		ch.fx2Pos = ch.fx2Size
	}
	d.write(ch.fx2Reg+regOffset[i], d.song.sound[ch.fx2Data+ch.fx2Pos])
}

func (d *Driver) stepFade() {
	if !d.fading {
		return
	}
	d.fadeTimer++
	if d.fadeTimer < fadeTicksPerStep {
		return
	}
	d.fadeTimer = 0
	d.fadeLevel++
	for i := 0; i < 9; i++ {
		ch := &d.ch[i]
		if ch.owner != OwnerMusic || ch.pc < 0 {
			continue
		}
		ch.fade = d.fadeLevel
		d.adjustVolume(i)
	}
	if d.fadeLevel >= 0x3F {
		d.StopMusic()
	}
}
