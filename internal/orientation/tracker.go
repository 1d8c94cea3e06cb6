// Package orientation tracks how far the device has rotated away from the
// attitude it had when a detection phase began.
package orientation

import (
	"math"

	"gonum.org/v1/gonum/num/quat"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
)

// #region tracker
// Tracker holds the baseline attitude and the largest angular deviation seen
// from it. It is a value type; every method returns the updated tracker.
type Tracker struct {
	baseline    quat.Number
	hasBaseline bool
	maxDelta    float64
}

// Begin discards prior evidence and captures a as the new baseline when present.
func (t Tracker) Begin(a *motion.Attitude) Tracker {
	next := Tracker{}
	if a != nil {
		next.baseline = fromEuler(*a)
		next.hasBaseline = true
	}
	return next
}

// Observe folds one attitude reading into the tracker. Without a baseline the
// reading becomes the baseline. A nil reading leaves the tracker unchanged.
func (t Tracker) Observe(a *motion.Attitude) Tracker {
	if a == nil {
		return t
	}
	cur := fromEuler(*a)
	if !t.hasBaseline {
		t.baseline = cur
		t.hasBaseline = true
		return t
	}
	if d := relativeDelta(t.baseline, cur); d > t.maxDelta {
		t.maxDelta = d
	}
	return t
}

// MaxDelta returns the largest deviation from baseline in radians.
func (t Tracker) MaxDelta() float64 { return t.maxDelta }

// HasBaseline reports whether a baseline attitude has been captured.
func (t Tracker) HasBaseline() bool { return t.hasBaseline }

// #endregion tracker

// #region delta
// Delta returns sqrt(dPitch² + dRoll² + dYaw²) of the rotation taking base to cur.
func Delta(base, cur motion.Attitude) float64 {
	return relativeDelta(fromEuler(base), fromEuler(cur))
}

func relativeDelta(base, cur quat.Number) float64 {
	rel := quat.Mul(quat.Conj(base), cur)
	pitch, roll, yaw := toEuler(rel)
	return math.Sqrt(pitch*pitch + roll*roll + yaw*yaw)
}

// #endregion delta

// #region conversions
// fromEuler builds a unit quaternion using the Z-Y-X (yaw, pitch, roll) convention.
func fromEuler(a motion.Attitude) quat.Number {
	cr, sr := math.Cos(a.Roll*0.5), math.Sin(a.Roll*0.5)
	cp, sp := math.Cos(a.Pitch*0.5), math.Sin(a.Pitch*0.5)
	cy, sy := math.Cos(a.Yaw*0.5), math.Sin(a.Yaw*0.5)
	return quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}

func toEuler(q quat.Number) (pitch, roll, yaw float64) {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))

	sinP := 2 * (w*y - z*x)
	sinP = math.Max(-1, math.Min(1, sinP))
	pitch = math.Asin(sinP)

	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return pitch, roll, yaw
}

// #endregion conversions
