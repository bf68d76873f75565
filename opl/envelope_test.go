package opl

import "testing"

// --- Envelope generator ---

func TestEG_AttackToDecay(t *testing.T) {
	op := &dbOperator{env: envMax, stage: stageAttack, reg60: 0xA0, ksr: 1}

	prev := op.env
	for cnt := uint32(1); cnt < 1000000 && op.stage == stageAttack; cnt++ {
		dbEnvStep[op.stage](op, cnt)
		if op.env > prev {
			t.Fatalf("attack level rose at tick %d: %d -> %d", cnt, prev, op.env)
		}
		prev = op.env
	}
	if op.stage != stageDecay {
		t.Errorf("expected decay after attack, got %s", op.stage)
	}
	if op.env != 0 {
		t.Errorf("expected level 0 at decay transition, got %d", op.env)
	}
}

func TestEG_FrozenAttack(t *testing.T) {
	op := &dbOperator{env: envMax, stage: stageAttack, reg60: 0x0F, ksr: 3}
	for cnt := uint32(1); cnt < 100000; cnt++ {
		dbEnvStep[op.stage](op, cnt)
	}
	if op.stage != stageAttack || op.env != envMax {
		t.Errorf("expected attack rate 0 to hold, got %s at %d", op.stage, op.env)
	}
}

func TestEG_InstantAttack(t *testing.T) {
	op := &dbOperator{env: envMax, stage: stageAttack, reg60: 0xF0, ksr: 2}
	dbEnvStep[op.stage](op, 1)
	if op.env != 0 || op.stage != stageDecay {
		t.Errorf("expected one-step attack, got %s at %d", op.stage, op.env)
	}
}

func TestEG_DecayToSustainLevels(t *testing.T) {
	tests := []struct {
		sl   uint8
		want uint16
	}{
		{1, 16},
		{4, 64},
		{10, 160},
		{14, 224},
		{15, 496},
	}
	for _, tt := range tests {
		op := &dbOperator{env: 0, stage: stageDecay, reg60: 0x0C, reg20: reg20EGT, ksr: 0}
		op.sl = sustainLevel(tt.sl)
		for cnt := uint32(1); cnt < 2000000 && op.stage == stageDecay; cnt++ {
			dbEnvStep[op.stage](op, cnt)
		}
		if op.stage != stageSustain {
			t.Errorf("SL %d: expected sustain, got %s", tt.sl, op.stage)
		}
		if op.env < tt.want || op.env > tt.want+8 {
			t.Errorf("SL %d: expected level near %d, got %d", tt.sl, tt.want, op.env)
		}
	}
}

func TestEG_SustainWithoutHoldReleases(t *testing.T) {
	op := &dbOperator{env: 100, stage: stageSustain, reg80: 0x0F}
	dbEnvStep[op.stage](op, 1)
	if op.stage != stageRelease {
		t.Errorf("expected release when EG-TYP is clear, got %s", op.stage)
	}

	held := &dbOperator{env: 100, stage: stageSustain, reg20: reg20EGT, reg80: 0x0F}
	for cnt := uint32(1); cnt < 10000; cnt++ {
		dbEnvStep[held.stage](held, cnt)
	}
	if held.stage != stageSustain || held.env != 100 {
		t.Errorf("expected sustain hold, got %s at %d", held.stage, held.env)
	}
}

func TestEG_ReleaseToOff(t *testing.T) {
	op := &dbOperator{env: 0, stage: stageRelease, reg80: 0x08}
	prev := op.env
	for cnt := uint32(1); cnt < 10000000 && op.stage == stageRelease; cnt++ {
		dbEnvStep[op.stage](op, cnt)
		if op.env < prev {
			t.Fatalf("release level fell at tick %d", cnt)
		}
		prev = op.env
	}
	if op.stage != stageOff || op.env != envMax {
		t.Errorf("expected off at %d, got %s at %d", envMax, op.stage, op.env)
	}
}

func TestEG_KeyOffFromEachStage(t *testing.T) {
	for _, st := range []envStage{stageAttack, stageDecay, stageSustain} {
		op := &dbOperator{stage: st, keys: keyNormal}
		op.keyOff(keyNormal)
		if op.stage != stageRelease {
			t.Errorf("%s: expected release on key-off, got %s", st, op.stage)
		}
	}
	op := &dbOperator{stage: stageOff, env: envMax, keys: keyNormal}
	op.keyOff(keyNormal)
	if op.stage != stageOff {
		t.Errorf("expected off to stay off, got %s", op.stage)
	}
}

func TestEG_KeySourcesCombine(t *testing.T) {
	op := &dbOperator{env: envMax, phase: 0x12345678}
	op.keyOn(keyRhythm, false)
	if op.stage != stageAttack || op.phase != 0 {
		t.Fatalf("expected attack with phase reset, got %s phase 0x%X", op.stage, op.phase)
	}
	op.phase = 0x1000
	op.keyOn(keyNormal, false)
	if op.phase != 0x1000 {
		t.Error("expected second key source not to retrigger")
	}
	op.keyOff(keyRhythm)
	if op.stage != stageAttack {
		t.Errorf("expected to stay keyed by the normal source, got %s", op.stage)
	}
	op.keyOff(keyNormal)
	if op.stage != stageRelease {
		t.Errorf("expected release once all sources clear, got %s", op.stage)
	}
}

// The table-driven envelope must track the arithmetic one tick for tick
// for every rate and key scale combination.
func TestEG_TablesMatchArithmetic(t *testing.T) {
	for rate := uint8(0); rate < 16; rate++ {
		for ksr := uint8(0); ksr < 16; ksr++ {
			db := &dbOperator{
				env: envMax, stage: stageAttack, ksr: ksr,
				reg60: rate<<4 | rate, reg80: 0x70 | rate,
			}
			db.sl = sustainLevel(7)

			m := &mameSlot{volume: envMax, state: stageAttack, ksr: ksr, sl: sustainLevel(7)}
			m.setArDr(rate<<4 | rate)
			m.setSlRr(0x70 | rate)

			for cnt := uint32(1); cnt < 300000; cnt++ {
				if cnt == 150000 {
					db.keys, m.key = keyNormal, keyNormal
					db.keyOff(keyNormal)
					m.keyOff(keyNormal)
				}
				dbEnvStep[db.stage](db, cnt)
				m.advanceEG(cnt)
				if int32(db.env) != m.volume || db.stage != m.state {
					t.Fatalf("rate %d ksr %d tick %d: arithmetic %s/%d, table %s/%d",
						rate, ksr, cnt, db.stage, db.env, m.state, m.volume)
				}
			}
		}
	}
}

func TestKeyCode(t *testing.T) {
	tests := []struct {
		fnum  uint16
		block uint8
		nts   bool
		want  uint8
	}{
		{0x200, 4, false, 9},
		{0x1FF, 4, false, 8},
		{0x100, 4, true, 9},
		{0x2FF, 7, true, 14},
		{0x3FF, 7, false, 15},
	}
	for _, tt := range tests {
		if got := keyCode(tt.fnum, tt.block, tt.nts); got != tt.want {
			t.Errorf("keyCode(0x%03X, %d, %v): expected %d, got %d", tt.fnum, tt.block, tt.nts, tt.want, got)
		}
	}
}

func TestKSL_ScalesWithOctave(t *testing.T) {
	if kslLevel(0x3FF, 0) != 0 {
		t.Errorf("expected no key scaling in block 0, got %d", kslLevel(0x3FF, 0))
	}
	prev := uint16(0)
	for block := uint8(0); block < 8; block++ {
		v := kslLevel(0x200, block)
		if v < prev {
			t.Errorf("block %d: KSL fell from %d to %d", block, prev, v)
		}
		prev = v
	}
	if prev == 0 {
		t.Error("expected key scaling at the top octave")
	}
}
