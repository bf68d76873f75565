package adlib

import "encoding/binary"

type opcodeDef struct {
	name     string
	operands int
	fn       func(d *Driver, i int, a []byte) step
}

var stopDef = opcodeDef{"stopChannel", 0, (*Driver).opStopChannel}

// opcodeTable is indexed by the opcode with its top bit cleared. Unused
// slots stop the channel.
var opcodeTable = [...]opcodeDef{
	// 0x80
	{"setRepeat", 1, (*Driver).opSetRepeat},
	{"checkRepeat", 2, (*Driver).opCheckRepeat},
	{"setupProgram", 1, (*Driver).opSetupProgram},
	{"setNoteSpacing", 1, (*Driver).opSetNoteSpacing},

	// 0x84
	{"jump", 2, (*Driver).opJump},
	{"jumpToSubroutine", 2, (*Driver).opCall},
	{"returnFromSubroutine", 0, (*Driver).opReturn},
	{"setBaseOctave", 1, (*Driver).opSetBaseOctave},

	// 0x88
	stopDef,
	{"playRest", 1, (*Driver).opPlayRest},
	{"writeAdLib", 2, (*Driver).opWriteAdLib},
	{"setupNoteAndDuration", 2, (*Driver).opSetupNoteAndDuration},

	// 0x8C
	{"setBaseNote", 1, (*Driver).opSetBaseNote},
	{"setupSecondaryEffect", 5, (*Driver).opSetupSecondaryEffect},
	{"stopOtherChannel", 1, (*Driver).opStopOtherChannel},
	{"waitForEndOfProgram", 1, (*Driver).opWaitForEndOfProgram},

	// 0x90
	{"setupInstrument", 1, (*Driver).opSetupInstrument},
	{"setupPitchSlide", 3, (*Driver).opSetupPitchSlide},
	{"removePitchSlide", 0, (*Driver).opRemovePitchSlide},
	{"setBaseFreq", 1, (*Driver).opSetBaseFreq},

	// 0x94
	stopDef,
	{"setupVibrato", 4, (*Driver).opSetupVibrato},
	stopDef,
	stopDef,

	// 0x98
	stopDef,
	stopDef,
	{"setPriority", 1, (*Driver).opSetPriority},
	stopDef,

	// 0x9C
	{"setBeat", 1, (*Driver).opSetBeat},
	{"waitForNextBeat", 1, (*Driver).opWaitForNextBeat},
	{"setExtraLevel1", 1, (*Driver).opSetExtraLevel1},
	stopDef,

	// 0xA0
	{"setupDuration", 1, (*Driver).opSetupDuration},
	{"playNote", 1, (*Driver).opPlayNote},
	stopDef,
	stopDef,

	// 0xA4
	{"setFractionalSpacing", 1, (*Driver).opSetFractionalSpacing},
	stopDef,
	{"setTempo", 1, (*Driver).opSetTempo},
	{"removeSecondaryEffect", 0, (*Driver).opRemoveSecondaryEffect},

	// 0xA8
	stopDef,
	{"setChannelTempo", 1, (*Driver).opSetChannelTempo},
	stopDef,
	{"setExtraLevel3", 1, (*Driver).opSetExtraLevel3},

	// 0xAC
	{"setExtraLevel2", 2, (*Driver).opSetExtraLevel2},
	{"changeExtraLevel2", 2, (*Driver).opChangeExtraLevel2},
	{"setAMDepth", 1, (*Driver).opSetAMDepth},
	{"setVibratoDepth", 1, (*Driver).opSetVibratoDepth},

	// 0xB0
	{"changeExtraLevel1", 1, (*Driver).opChangeExtraLevel1},
	stopDef,
	stopDef,
	{"clearChannel", 1, (*Driver).opClearChannel},

	// 0xB4
	stopDef,
	{"changeNoteRandomly", 2, (*Driver).opChangeNoteRandomly},
	{"removeVibrato", 0, (*Driver).opRemoveVibrato},
	stopDef,

	// 0xB8
	stopDef,
	{"pitchBend", 1, (*Driver).opPitchBend},
	{"resetToGlobalTempo", 0, (*Driver).opResetToGlobalTempo},
	stopDef,

	// 0xBC
	{"setDurationRandomness", 1, (*Driver).opSetDurationRandomness},
	{"changeChannelTempo", 1, (*Driver).opChangeChannelTempo},
	stopDef,
	{"selectNoteTables", 2, (*Driver).opIgnore},

	// 0xC0
	{"nop", 0, (*Driver).opIgnore},
	{"setupRhythm", 9, (*Driver).opSetupRhythm},
	{"playRhythm", 1, (*Driver).opPlayRhythm},
	{"removeRhythm", 0, (*Driver).opRemoveRhythm},

	// 0xC4
	{"setRhythmLevel2", 2, (*Driver).opSetRhythmLevel2},
	{"changeRhythmLevel1", 2, (*Driver).opChangeRhythmLevel1},
	{"setRhythmLevel1", 2, (*Driver).opSetRhythmLevel1},
	{"setSoundTrigger", 1, (*Driver).opSetSoundTrigger},

	// 0xC8
	{"setTempoReset", 1, (*Driver).opSetTempoReset},
	{"setChannelParams", 2, (*Driver).opIgnore},
	stopDef,
}

// lookupOpcode returns the definition of an opcode byte. Opcodes past the
// end of the table share the last entry, which stops the channel.
func lookupOpcode(op uint8) *opcodeDef {
	idx := int(op & 0x7F)
	if idx >= len(opcodeTable) {
		idx = len(opcodeTable) - 1
	}
	return &opcodeTable[idx]
}

// OpcodeName returns the mnemonic of a bytecode, "note" for note bytes.
func OpcodeName(op uint8) string {
	if op < 0x80 {
		return "note"
	}
	return lookupOpcode(op).name
}

func le16(a []byte) uint16 {
	return binary.LittleEndian.Uint16(a)
}

func yieldIf(dur uint8) step {
	if dur != 0 {
		return stepYield
	}
	return stepNext
}

func (d *Driver) opSetRepeat(i int, a []byte) step {
	d.ch[i].repeatCounter = a[0]
	return stepNext
}

// opCheckRepeat jumps back by a relative offset until the repeat counter
// runs out.
func (d *Driver) opCheckRepeat(i int, a []byte) step {
	ch := &d.ch[i]
	ch.repeatCounter--
	if ch.repeatCounter == 0 {
		return stepNext
	}
	t := ch.pc + int(int16(le16(a)))
	if t < 0 || t >= len(d.song.sound) {
		return d.faultChannel(i, ErrBadOffset)
	}
	ch.pc = t
	return stepNext
}

// opSetupProgram starts another program with the caller's owner. 0xFF is
// a no-op.
func (d *Driver) opSetupProgram(i int, a []byte) step {
	if a[0] == 0xFF {
		return stepNext
	}
	own := d.ch[i].owner
	if _, err := d.startProgram(a[0], own); err != nil {
		return d.faultChannel(i, err)
	}
	if d.ch[i].pc < 0 {
		// Replaced by a program that stopped at once
		return stepHold
	}
	return stepNext
}

func (d *Driver) opSetNoteSpacing(i int, a []byte) step {
	d.ch[i].spacing1 = a[0]
	return stepNext
}

func (d *Driver) opJump(i int, a []byte) step {
	t, ok := d.jumpTarget(le16(a))
	if !ok {
		return d.faultChannel(i, ErrBadOffset)
	}
	d.ch[i].pc = t
	return stepNext
}

func (d *Driver) opCall(i int, a []byte) step {
	ch := &d.ch[i]
	if ch.sp >= stackDepth {
		return d.faultChannel(i, ErrStackOverflow)
	}
	t, ok := d.jumpTarget(le16(a))
	if !ok {
		return d.faultChannel(i, ErrBadOffset)
	}
	ch.stack[ch.sp] = ch.pc
	ch.sp++
	ch.pc = t
	return stepNext
}

func (d *Driver) opReturn(i int, _ []byte) step {
	ch := &d.ch[i]
	if ch.sp == 0 {
		return d.faultChannel(i, ErrStackUnderflow)
	}
	ch.sp--
	ch.pc = ch.stack[ch.sp]
	return stepNext
}

func (d *Driver) opSetBaseOctave(i int, a []byte) step {
	d.ch[i].baseOctave = int8(a[0])
	return stepNext
}

func (d *Driver) opStopChannel(i int, _ []byte) step {
	d.stopChannel(i)
	return stepHold
}

func (d *Driver) opPlayRest(i int, a []byte) step {
	d.setupDuration(&d.ch[i], a[0])
	d.noteOff(i)
	return yieldIf(a[0])
}

func (d *Driver) opWriteAdLib(_ int, a []byte) step {
	d.write(a[0], a[1])
	return stepNext
}

func (d *Driver) opSetupNoteAndDuration(i int, a []byte) step {
	d.setupNote(i, a[0], false)
	d.setupDuration(&d.ch[i], a[1])
	return yieldIf(a[1])
}

func (d *Driver) opSetBaseNote(i int, a []byte) step {
	d.ch[i].baseNote = int8(a[0])
	return stepNext
}

func (d *Driver) opStopOtherChannel(i int, a []byte) step {
	n := int(a[0])
	if n >= NumChannels {
		return d.faultChannel(i, ErrBadOperand)
	}
	ch := &d.ch[n]
	ch.duration = 0
	ch.priority = 0
	ch.pc = -1
	ch.owner = OwnerNone
	ch.halted = false
	if n == i {
		return stepHold
	}
	return stepNext
}

// opWaitForEndOfProgram re-executes itself every beat until the channel
// of the named program goes idle.
func (d *Driver) opWaitForEndOfProgram(i int, a []byte) step {
	off, err := d.song.program(a[0])
	if err != nil {
		return d.faultChannel(i, err)
	}
	n := int(d.song.sound[off])
	if n >= NumChannels {
		return d.faultChannel(i, ErrBadOperand)
	}
	if d.ch[n].pc < 0 {
		return stepNext
	}
	// Poll again on the next beat
	d.ch[i].pc -= 2
	d.ch[i].duration = 1
	return stepHold
}

func (d *Driver) opSetupInstrument(i int, a []byte) step {
	data, err := d.song.instrument(a[0])
	if err != nil {
		return d.faultChannel(i, err)
	}
	d.setupInstrument(i, data)
	return stepNext
}

func (d *Driver) opSetupPitchSlide(i int, a []byte) step {
	ch := &d.ch[i]
	ch.slideTempo = a[0]
	ch.slideTimer = 0xFF
	ch.slideStep = int16(le16(a[1:]))
	ch.primary = effectSlide
	return stepNext
}

func (d *Driver) opRemovePitchSlide(i int, _ []byte) step {
	ch := &d.ch[i]
	ch.primary = effectNone
	ch.slideStep = 0
	return stepNext
}

// opSetupVibrato takes the vibrato tempo, the step range, the swing
// length in steps and the delay after key-on.
func (d *Driver) opSetupVibrato(i int, a []byte) step {
	ch := &d.ch[i]
	ch.vibTempo = a[0]
	ch.vibRange = a[1]
	ch.vibCountdown = a[2] + 1
	ch.vibSteps = a[2] >> 1
	ch.vibDelay = a[3]
	ch.primary = effectVibrato
	return stepNext
}

func (d *Driver) opRemoveVibrato(i int, _ []byte) step {
	d.ch[i].primary = effectNone
	return stepNext
}

// opSetupSecondaryEffect takes the effect tempo, the table size, the
// operator register base and the biased offset of the table.
func (d *Driver) opSetupSecondaryEffect(i int, a []byte) step {
	ch := &d.ch[i]
	data := int(le16(a[3:])) - offsetBias
	size := int(a[1])
	if data < 0 || data+size >= len(d.song.sound) {
		return d.faultChannel(i, ErrBadOffset)
	}
	ch.fx2Tempo = a[0]
	ch.fx2Timer = a[0]
	ch.fx2Size = size
	ch.fx2Pos = 0
	ch.fx2Reg = a[2]
	ch.fx2Data = data
	ch.fx2 = true
	return stepNext
}

func (d *Driver) opRemoveSecondaryEffect(i int, _ []byte) step {
	d.ch[i].fx2 = false
	return stepNext
}

func (d *Driver) opSetBaseFreq(i int, a []byte) step {
	d.ch[i].baseFreq = a[0]
	return stepNext
}

func (d *Driver) opSetFractionalSpacing(i int, a []byte) step {
	d.ch[i].fractionalSpacing = a[0] & 7
	return stepNext
}

func (d *Driver) opSetTempo(_ int, a []byte) step {
	d.tempo = a[0]
	return stepNext
}

func (d *Driver) opSetChannelTempo(i int, a []byte) step {
	d.ch[i].tempo = a[0]
	return stepNext
}

// opChangeChannelTempo adds a signed delta to the channel tempo, keeping
// it within 1-255.
func (d *Driver) opChangeChannelTempo(i int, a []byte) step {
	ch := &d.ch[i]
	t := int(ch.tempo) + int(int8(a[0]))
	if t < 1 {
		t = 1
	} else if t > 255 {
		t = 255
	}
	ch.tempo = uint8(t)
	return stepNext
}

func (d *Driver) opResetToGlobalTempo(i int, _ []byte) step {
	d.ch[i].tempo = d.tempo
	return stepNext
}

// opSetBeat sets how many tempo carries make one beat and restarts the
// beat counter.
func (d *Driver) opSetBeat(_ int, a []byte) step {
	d.beatDivider = a[0] >> 1
	d.beatDivCount = d.beatDivider
	d.beatTimer = 0xFF
	d.beatCounter = 0
	d.beatArmed = false
	return stepNext
}

// opWaitForNextBeat holds the channel until the beat counter next turns
// on one of the bits in its operand.
func (d *Driver) opWaitForNextBeat(i int, a []byte) step {
	mask := a[0]
	if d.beatArmed && d.beatCounter&mask != 0 {
		d.beatArmed = false
		return stepNext
	}
	if d.beatCounter&mask == 0 {
		d.beatArmed = true
	}
	d.ch[i].pc -= 2
	d.ch[i].duration = 1
	return stepHold
}

func (d *Driver) opSetTempoReset(i int, a []byte) step {
	d.ch[i].tempoReset = a[0]
	return stepNext
}

func (d *Driver) opSetPriority(i int, a []byte) step {
	d.ch[i].priority = a[0]
	return stepNext
}

func (d *Driver) opSetAMDepth(_ int, a []byte) step {
	if a[0]&1 != 0 {
		d.depthBits |= 0x80
	} else {
		d.depthBits &^= 0x80
	}
	d.write(0xBD, d.depthBits|d.rhythmBits)
	return stepNext
}

func (d *Driver) opSetVibratoDepth(_ int, a []byte) step {
	if a[0]&1 != 0 {
		d.depthBits |= 0x40
	} else {
		d.depthBits &^= 0x40
	}
	d.write(0xBD, d.depthBits|d.rhythmBits)
	return stepNext
}

func (d *Driver) opSetExtraLevel1(i int, a []byte) step {
	d.ch[i].extraLevel1 = a[0]
	d.adjustVolume(i)
	return stepNext
}

func (d *Driver) opChangeExtraLevel1(i int, a []byte) step {
	d.ch[i].extraLevel1 += a[0]
	d.adjustVolume(i)
	return stepNext
}

func (d *Driver) opSetExtraLevel3(i int, a []byte) step {
	d.ch[i].extraLevel3 = a[0]
	d.adjustVolume(i)
	return stepNext
}

func (d *Driver) opSetupDuration(i int, a []byte) step {
	d.setupDuration(&d.ch[i], a[0])
	return yieldIf(a[0])
}

// opPlayNote keys on the note already programmed and waits its duration.
func (d *Driver) opPlayNote(i int, a []byte) step {
	d.setupDuration(&d.ch[i], a[0])
	d.noteOn(i)
	return yieldIf(a[0])
}

// opPitchBend sets a signed bend in sixteenth semitones and re-programs
// the current note.
func (d *Driver) opPitchBend(i int, a []byte) step {
	ch := &d.ch[i]
	ch.pitchBend = int8(a[0])
	d.setupNote(i, ch.rawNote, true)
	return stepNext
}

// opChangeNoteRandomly adds a random part of a 16-bit mask to the
// frequency registers without changing the stored note.
func (d *Driver) opChangeNoteRandomly(i int, a []byte) step {
	if i >= 9 {
		return stepNext
	}
	ch := &d.ch[i]
	mask := uint16(a[0])<<8 | uint16(a[1])
	f := uint16(ch.regBx&0x1F)<<8 | uint16(ch.regAx)
	f += mask & d.random()
	f |= uint16(ch.regBx&0x20) << 8
	d.write(0xA0+uint8(i), uint8(f))
	d.write(0xB0+uint8(i), uint8(f>>8))
	return stepNext
}

// opClearChannel stops another channel and mutes its voice.
func (d *Driver) opClearChannel(i int, a []byte) step {
	n := int(a[0])
	if n >= NumChannels {
		return d.faultChannel(i, ErrBadOperand)
	}
	ch := &d.ch[n]
	ch.duration = 0
	ch.priority = 0
	ch.pc = -1
	ch.owner = OwnerNone
	ch.halted = false
	ch.extraLevel2 = 0
	if n != ControlChannel {
		off := regOffset[n]
		ch.regBx = 0
		d.write(0xC0+uint8(n), 0x00)
		d.write(0x43+off, 0x3F)
		d.write(0x83+off, 0xFF)
		d.write(0xB0+uint8(n), 0x00)
	}
	if n == i {
		return stepHold
	}
	return stepNext
}

func (d *Driver) opSetSoundTrigger(_ int, a []byte) step {
	d.soundTrigger = a[0]
	return stepNext
}

// opIgnore consumes its operands without effect.
func (d *Driver) opIgnore(int, []byte) step {
	return stepNext
}

// programChannel returns the channel a program header names.
func (d *Driver) programChannel(id uint8) (int, error) {
	off, err := d.song.program(id)
	if err != nil {
		return 0, err
	}
	n := int(d.song.sound[off])
	if n >= NumChannels {
		return 0, ErrBadOperand
	}
	return n, nil
}

func (d *Driver) opSetExtraLevel2(i int, a []byte) step {
	n, err := d.programChannel(a[0])
	if err != nil {
		return d.faultChannel(i, err)
	}
	d.ch[n].extraLevel2 = a[1]
	d.adjustVolume(n)
	return stepNext
}

func (d *Driver) opChangeExtraLevel2(i int, a []byte) step {
	n, err := d.programChannel(a[0])
	if err != nil {
		return d.faultChannel(i, err)
	}
	d.ch[n].extraLevel2 += a[1]
	d.adjustVolume(n)
	return stepNext
}

// opSetupRhythm loads the bass drum, snare/hi-hat and tom/cymbal voices
// on channels 6-8 and enables rhythm mode. Operands are three instrument
// ids followed by the block/F-number high and low bytes of each channel.
func (d *Driver) opSetupRhythm(i int, a []byte) step {
	for k := 0; k < 3; k++ {
		data, err := d.song.instrument(a[k])
		if err != nil {
			return d.faultChannel(i, err)
		}
		d.setupInstrument(6+k, data)
	}
	d.drums[4].base = d.ch[6].opLevel2
	d.drums[0].base = d.ch[7].opLevel1
	d.drums[3].base = d.ch[7].opLevel2
	d.drums[2].base = d.ch[8].opLevel1
	d.drums[1].base = d.ch[8].opLevel2
	for k := 0; k < 3; k++ {
		n := 6 + k
		ch := &d.ch[n]
		ch.regBx = a[3+2*k] & 0x1F
		ch.regAx = a[4+2*k]
		d.write(0xB0+uint8(n), ch.regBx)
		d.write(0xA0+uint8(n), ch.regAx)
	}
	d.rhythmBits = 0x20
	d.write(0xBD, d.depthBits|d.rhythmBits)
	return stepNext
}

// opPlayRhythm retriggers the drums in the low five bits of its operand.
func (d *Driver) opPlayRhythm(_ int, a []byte) step {
	bits := a[0] & 0x1F
	d.rhythmBits |= 0x20
	d.write(0xBD, d.depthBits|d.rhythmBits&^bits)
	d.rhythmBits |= bits
	d.write(0xBD, d.depthBits|d.rhythmBits)
	return stepNext
}

func (d *Driver) opRemoveRhythm(_ int, _ []byte) step {
	d.rhythmBits = 0
	d.write(0xBD, d.depthBits)
	return stepNext
}

func (d *Driver) opSetDurationRandomness(i int, a []byte) step {
	d.ch[i].durationRandomness = a[0]
	return stepNext
}

// rhythmLevels applies fn to every drum named in the low five bits of
// a[0] and rewrites its total level.
func (d *Driver) rhythmLevels(a []byte, fn func(l *drumLevel, v uint8)) step {
	for k := range d.drums {
		if a[0]&(1<<k) == 0 {
			continue
		}
		fn(&d.drums[k], a[1])
		d.write(drumLevelReg[k], d.drums[k].level())
	}
	return stepNext
}

func (d *Driver) opSetRhythmLevel2(_ int, a []byte) step {
	return d.rhythmLevels(a, func(l *drumLevel, v uint8) { l.extra2 = v })
}

func (d *Driver) opChangeRhythmLevel1(_ int, a []byte) step {
	return d.rhythmLevels(a, func(l *drumLevel, v uint8) { l.extra1 += v })
}

func (d *Driver) opSetRhythmLevel1(_ int, a []byte) step {
	return d.rhythmLevels(a, func(l *drumLevel, v uint8) { l.extra1 = v })
}
