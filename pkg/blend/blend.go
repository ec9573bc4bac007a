// Package blend implements the effective-score formula that combines a
// window's meta-analysis score with the window's raw max per-event
// score into one dashboard value (§4.6 step 5, invariant I4).
package blend

import "github.com/codeready-toolchain/sentinel/pkg/criteria"

// EffectiveValue computes effective_value = wMeta*metaScore +
// (1-wMeta)*maxEventScore, clamped to [0, 1]. wMeta is expected in
// [0, 1]; the caller (pkg/config) validates that at load time.
// P2: when the window had no scored events at all (maxEventScore is
// exactly 0), metaScore is clamped to 0 too, since a meta-analysis
// cannot rate a criterion more severe than any event actually scored.
func EffectiveValue(wMeta, metaScore, maxEventScore float64) float64 {
	if maxEventScore == 0 {
		metaScore = 0
	}
	v := wMeta*metaScore + (1-wMeta)*maxEventScore
	if v < 0 {
		return 0
	}
	if v > criteria.MaxScore {
		return criteria.MaxScore
	}
	return v
}

// Vector blends an entire per-criterion meta-score vector against the
// corresponding max-event-score vector.
func Vector(wMeta float64, meta, maxEvent criteria.Vector) criteria.Vector {
	var out criteria.Vector
	for i := range out {
		out[i] = EffectiveValue(wMeta, meta[i], maxEvent[i])
	}
	return out
}
