package opl

// envStage is the envelope generator state of an operator.
type envStage uint8

const (
	stageOff envStage = iota
	stageAttack
	stageDecay
	stageSustain
	stageRelease
)

func (s envStage) String() string {
	switch s {
	case stageOff:
		return "off"
	case stageAttack:
		return "attack"
	case stageDecay:
		return "decay"
	case stageSustain:
		return "sustain"
	case stageRelease:
		return "release"
	}
	return "?"
}

// Key-on sources. An operator is keyed while any source holds it.
const (
	keyNormal = 0x01 // $B0-$B8 bit 5
	keyRhythm = 0x02 // $BD drum bits
)

// Register bit masks.
const (
	reg20AM   = 0x80
	reg20VIB  = 0x40
	reg20EGT  = 0x20
	reg20KSR  = 0x10
	reg20MULT = 0x0F

	regB0Key = 0x20

	regBDAMDepth  = 0x80
	regBDVibDepth = 0x40
	regBDRhythm   = 0x20
	regBDBass     = 0x10
	regBDSnare    = 0x08
	regBDTom      = 0x04
	regBDCymbal   = 0x02
	regBDHiHat    = 0x01

	reg01WSE = 0x20
	reg08NTS = 0x40

	regC0Cnt   = 0x01
	regC0PanL  = 0x10
	regC0PanR  = 0x20
	reg105New  = 0x01
	rhythmBase = 6 // First rhythm channel
)

// rhythmPhases computes the hi-hat, snare and cymbal wave indices from
// the hi-hat (channel 7 op 1) and cymbal (channel 8 op 2) phase indices
// and the noise bit.
func rhythmPhases(hh, tc, noise uint32) (hiHat, snare, cymbal uint32) {
	hh2 := (hh >> 2) & 1
	hh3 := (hh >> 3) & 1
	hh7 := (hh >> 7) & 1
	hh8 := (hh >> 8) & 1
	tc3 := (tc >> 3) & 1
	tc5 := (tc >> 5) & 1
	xor := (hh2 ^ hh7) | (hh3 ^ tc5) | (tc3 ^ tc5)

	hiHat = xor << 9
	if xor^noise != 0 {
		hiHat |= 0xD0
	} else {
		hiHat |= 0x34
	}
	snare = hh8<<9 | (hh8^noise)<<8
	cymbal = xor<<9 | 0x80
	return hiHat, snare, cymbal
}
