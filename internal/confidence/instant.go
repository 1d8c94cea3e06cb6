// Package confidence turns per-phase evidence into a bounded fall score.
package confidence

import (
	"math"
	"time"
)

// Ceiling is the highest score ever reported. Certainty is never claimed.
const Ceiling = 0.95

// #region evidence
// Evidence is what the phase machine has accumulated for the current attempt.
type Evidence struct {
	MaxImpact        float64 // g
	ImpactThreshold  float64 // g
	Rotation         bool
	AttitudeExceeded bool
}

// impactFactor scales how far the peak exceeded the threshold into [0, 1].
func (e Evidence) impactFactor() float64 {
	if e.ImpactThreshold <= 0 {
		return 0
	}
	return clamp((e.MaxImpact-e.ImpactThreshold)/e.ImpactThreshold, 0, 1)
}

// #endregion evidence

// #region instant
// Freefall scores an ongoing drop: 0.2 rising to 0.4 over 400 ms.
func Freefall(elapsed time.Duration) float64 {
	return math.Min(0.4, 0.2+elapsed.Seconds()*0.5)
}

// Impact scores the acceleration spike phase.
func Impact(e Evidence) float64 {
	c := 0.4 + 0.3*e.impactFactor()
	if e.Rotation {
		c += 0.1
	}
	if e.AttitudeExceeded {
		c += 0.05
	}
	return math.Min(Ceiling, c)
}

// PostImpact scores the stillness phase; still is measured from impact.
func PostImpact(still time.Duration, e Evidence) float64 {
	c := 0.7 + 0.15*still.Seconds() + 0.1*e.impactFactor()
	if e.Rotation {
		c += 0.05
	}
	if e.AttitudeExceeded {
		c += 0.1
	}
	return clamp(c, 0, Ceiling)
}

// #endregion instant

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
