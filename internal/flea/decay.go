package flea

import (
	"math"

	"dynamic-flea-price/internal/config"
)

// DecayFunc relaxes one stored magnitude toward zero for a single pass.
type DecayFunc func(v, decayPct, regenPct float64) float64

// DecayFor picks the decay policy named in the mod config. Unknown names
// fall back to the relaxing policy.
func DecayFor(mode string) DecayFunc {
	if mode == config.DecayStepped {
		return SteppedDecay
	}
	return RelaxDecay
}

// RelaxDecay shrinks positive values by decayPct percent and negative values
// by regenPct percent of themselves. A zero percentage leaves its side
// untouched. The result never changes sign.
func RelaxDecay(v, decayPct, regenPct float64) float64 {
	switch {
	case v > 0:
		if decayPct == 0 {
			return v
		}
		return math.Max(0, v-v*decayPct/100)
	case v < 0:
		if regenPct == 0 {
			return v
		}
		return math.Min(0, v-v*regenPct/100)
	default:
		return v
	}
}

// SteppedDecay removes the whole-unit part of the percentage and at least
// one unit per pass, clamping at zero. This matches state written by the
// earlier purchase-counter builds of the mod.
func SteppedDecay(v, decayPct, regenPct float64) float64 {
	switch {
	case v > 0:
		if decayPct == 0 {
			return v
		}
		step := math.Max(1, math.Trunc(v*decayPct/100))
		return math.Max(0, v-step)
	case v < 0:
		if regenPct == 0 {
			return v
		}
		step := math.Max(1, math.Trunc(-v*regenPct/100))
		return math.Min(0, v+step)
	default:
		return v
	}
}
