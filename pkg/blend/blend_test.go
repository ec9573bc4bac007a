package blend

import (
	"testing"

	"github.com/codeready-toolchain/sentinel/pkg/criteria"
)

func TestEffectiveValueBlendsWeighted(t *testing.T) {
	got := EffectiveValue(0.7, 0.8, 0.5)
	want := 0.7*0.8 + 0.3*0.5
	if got != want {
		t.Errorf("EffectiveValue() = %v, want %v", got, want)
	}
}

func TestEffectiveValueClampsZeroMaxEventScore(t *testing.T) {
	// P2: a window with no scored events at all can't be rated more
	// severe by the meta-analyser than the events actually scored.
	got := EffectiveValue(0.7, 0.9, 0)
	if got != 0 {
		t.Errorf("EffectiveValue() = %v, want 0 when max event score is 0", got)
	}
}

func TestEffectiveValueClampsToRange(t *testing.T) {
	if got := EffectiveValue(0.5, 1.0, 1.0); got > criteria.MaxScore {
		t.Errorf("EffectiveValue() = %v, exceeds max score %v", got, criteria.MaxScore)
	}
	if got := EffectiveValue(0.5, -1.0, -1.0); got < 0 {
		t.Errorf("EffectiveValue() = %v, want clamped to 0", got)
	}
}

func TestVectorBlendsPerCriterion(t *testing.T) {
	var meta, maxEvent criteria.Vector
	meta[0] = 0.9
	maxEvent[0] = 0
	meta[1] = 0.4
	maxEvent[1] = 0.6

	out := Vector(0.5, meta, maxEvent)
	if out[0] != 0 {
		t.Errorf("Vector()[0] = %v, want 0 (zero max event score clamps meta)", out[0])
	}
	if out[1] != 0.5 {
		t.Errorf("Vector()[1] = %v, want 0.5", out[1])
	}
}
