package update

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/confidence"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/gate"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/state"
)

// #region update-function
// Update is a pure function that computes the next session from the current
// session and one sample. It never blocks, allocates only the returned event,
// and reads time exclusively from the sample timestamp.
func Update(old state.Session, in Input, prof profile.Profile, cfg Config) Result {
	s := in.Sample
	if err := s.Validate(); err != nil {
		return reject(old, err)
	}
	if !old.LastSampleAt.IsZero() && s.Timestamp.Before(old.LastSampleAt) {
		return reject(old, fmt.Errorf("%w: %s < %s", ErrOutOfOrder,
			s.Timestamp.Format(time.RFC3339Nano), old.LastSampleAt.Format(time.RFC3339Nano)))
	}

	now := s.Timestamp
	accel := s.Accel.Magnitude()
	gyro := s.Gyro.Magnitude()

	next := old // copy (value type)
	next.LastSampleAt = now

	var dec Decision
	next, dec = transition(next, accel, now, prof, cfg)
	if dec.Action == ActionRecover {
		next = next.Rearm()
	}

	// Evidence accumulates for every sample spent outside normal, including
	// the one that caused entry.
	if next.Phase != state.PhaseNormal {
		if gyro > prof.RotationThreshold {
			next.RotationObserved = true
		}
		next.Orientation = next.Orientation.Observe(s.Attitude)
	}

	instant := Instant(next, now, prof)
	next.Confidence.Add(now, instant)
	blended := next.Confidence.Value()

	var event *state.FallEvent
	if dec.Action == ActionConfirm {
		ev := packageEvent(next, now, blended, prof.Mode, in.Location, state.OriginDetected)
		event = &ev
		next = next.Rearm()
		next.LastConfirmedAt = now
	}

	return Result{
		Session:  next,
		Event:    event,
		Decision: dec,
		Metrics: Metrics{
			AccelMagnitude: accel,
			GyroMagnitude:  gyro,
			Instant:        instant,
			Confidence:     blended,
		},
	}
}

func reject(old state.Session, err error) Result {
	return Result{
		Session:  old,
		Decision: Decision{Action: ActionReject, From: old.Phase, To: old.Phase, Reason: err.Error()},
		Err:      err,
	}
}

// #endregion update-function

// #region transition
// transition applies one edge of the phase machine. Confirm and recover leave
// the session in its pre-reset phase; the caller rearms it.
func transition(s state.Session, accel float64, now time.Time, prof profile.Profile, cfg Config) (state.Session, Decision) {
	from := s.Phase
	dec := Decision{Action: ActionNone, From: from, To: from}

	switch s.Phase {
	case state.PhaseNormal:
		leaving := accel < prof.FreefallThreshold || accel > prof.ImpactThreshold
		if !leaving {
			return s, dec
		}
		if g := gate.NewGate(cfg.Gate).Evaluate(s.LastConfirmedAt, now); !g.Open() {
			dec.Action = ActionHold
			dec.Reason = g.Reason
			return s, dec
		}
		if accel < prof.FreefallThreshold {
			s = begin(s, state.PhaseFreefall)
			s.FreefallStartedAt = now
			dec.Reason = fmt.Sprintf("freefall onset %.3fg", accel)
		} else {
			s = begin(s, state.PhaseImpact)
			s.ImpactStartedAt = now
			s.MaxImpactMagnitude = accel
			dec.Reason = fmt.Sprintf("direct impact %.3fg", accel)
		}
		dec.Action = ActionTransition

	case state.PhaseFreefall:
		switch {
		case accel > prof.ImpactThreshold:
			s.Phase = state.PhaseImpact
			s.ImpactStartedAt = now
			s.MaxImpactMagnitude = accel
			dec.Action = ActionTransition
			dec.Reason = fmt.Sprintf("impact after %s freefall: %.3fg", now.Sub(s.FreefallStartedAt), accel)
		case accel >= prof.FreefallThreshold:
			dec.Action = ActionRecover
			dec.Reason = fmt.Sprintf("freefall interrupted at %.3fg", accel)
		}

	case state.PhaseImpact:
		if accel > s.MaxImpactMagnitude {
			s.MaxImpactMagnitude = accel
		}
		if accel < prof.PostImpactStillThreshold {
			s.Phase = state.PhasePostImpact
			dec.Action = ActionTransition
			dec.Reason = fmt.Sprintf("still at %.3fg", accel)
		}

	case state.PhasePostImpact:
		sinceImpact := now.Sub(s.ImpactStartedAt)
		switch {
		case accel < prof.PostImpactStillThreshold:
			if sinceImpact >= prof.PostImpactMinDuration {
				dec.Action = ActionConfirm
				dec.Reason = fmt.Sprintf("still for %s after impact", sinceImpact)
			}
		case accel > cfg.RecoveryMotion:
			minStill := time.Duration(float64(prof.PostImpactMinDuration) * cfg.EscapeStillFraction)
			if sinceImpact >= minStill && s.MaxImpactMagnitude > prof.ImpactThreshold*cfg.EscapeImpactFactor {
				dec.Action = ActionConfirm
				dec.Reason = fmt.Sprintf("motion %.3fg after %s with peak %.3fg", accel, sinceImpact, s.MaxImpactMagnitude)
			} else {
				dec.Action = ActionRecover
				dec.Reason = fmt.Sprintf("recovery motion %.3fg after %s", accel, sinceImpact)
			}
		}
	}

	switch dec.Action {
	case ActionConfirm, ActionRecover:
		dec.To = state.PhaseNormal
	default:
		dec.To = s.Phase
	}
	return s, dec
}

// begin leaves normal with fresh evidence. The baseline attitude is captured
// lazily by the first Observe in the new phase.
func begin(s state.Session, to state.Phase) state.Session {
	s.Phase = to
	s.FreefallStartedAt = time.Time{}
	s.ImpactStartedAt = time.Time{}
	s.MaxImpactMagnitude = 0
	s.RotationObserved = false
	s.Orientation = s.Orientation.Begin(nil)
	return s
}

// #endregion transition

// #region instant
// Instant returns the per-phase confidence of s at now.
func Instant(s state.Session, now time.Time, prof profile.Profile) float64 {
	ev := confidence.Evidence{
		MaxImpact:        s.MaxImpactMagnitude,
		ImpactThreshold:  prof.ImpactThreshold,
		Rotation:         s.RotationObserved,
		AttitudeExceeded: s.Orientation.MaxDelta() > prof.AttitudeChangeThreshold,
	}
	switch s.Phase {
	case state.PhaseFreefall:
		return confidence.Freefall(now.Sub(s.FreefallStartedAt))
	case state.PhaseImpact:
		return confidence.Impact(ev)
	case state.PhasePostImpact:
		return confidence.PostImpact(now.Sub(s.ImpactStartedAt), ev)
	default:
		return 0
	}
}

// #endregion instant

// #region event
func packageEvent(s state.Session, at time.Time, conf float64, mode profile.Mode, loc *motion.Location, origin state.Origin) state.FallEvent {
	if conf > confidence.Ceiling {
		conf = confidence.Ceiling
	}
	ev := state.FallEvent{
		Timestamp:         at,
		Confidence:        conf,
		MaxImpact:         s.MaxImpactMagnitude,
		HadRotation:       s.RotationObserved,
		MaxAttitudeChange: s.Orientation.MaxDelta(),
		Mode:              mode,
		Origin:            origin,
	}
	if loc != nil {
		l := *loc
		ev.Location = &l
	}
	return ev
}

// Test-event evidence. These values are fixed so downstream consumers can
// assert on them.
const (
	TestConfidence     = 0.92
	TestMaxImpact      = 3.0
	TestAttitudeChange = 1.2
)

// TestEvent synthesizes a deterministic event at at, bypassing the phase
// machine, and runs the confirmation path so the session rests in normal
// with its cooldown started.
func TestEvent(old state.Session, at time.Time, mode profile.Mode, loc *motion.Location) Result {
	ev := state.FallEvent{
		Timestamp:         at,
		Confidence:        TestConfidence,
		MaxImpact:         TestMaxImpact,
		HadRotation:       true,
		MaxAttitudeChange: TestAttitudeChange,
		Mode:              mode,
		Origin:            state.OriginTest,
	}
	if loc != nil {
		l := *loc
		ev.Location = &l
	}

	next := old.Rearm()
	next.LastConfirmedAt = at
	return Result{
		Session: next,
		Event:   &ev,
		Decision: Decision{
			Action: ActionConfirm,
			From:   old.Phase,
			To:     state.PhaseNormal,
			Reason: "test trigger",
		},
		Metrics: Metrics{Confidence: TestConfidence},
	}
}

// #endregion event
