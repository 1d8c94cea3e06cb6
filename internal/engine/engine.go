// Package engine wraps the pure phase machine with the one piece of state it
// needs: the active session and profile. An Engine is not synchronized; all
// calls must come from a single goroutine.
package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/state"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/timeutil"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/update"
)

// #region engine
// Engine owns one detection session.
type Engine struct {
	prof    profile.Profile
	cfg     update.Config
	session state.Session
	clock   timeutil.Clock
	newID   func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used when no sample time is available.
func WithClock(c timeutil.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithConfig overrides the mode-independent phase machine constants.
func WithConfig(cfg update.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithIDGenerator overrides event ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// New returns an engine resting in normal under mode. Unknown modes fall
// back to the default profile.
func New(mode profile.Mode, opts ...Option) *Engine {
	e := &Engine{
		prof:    profile.For(mode),
		cfg:     update.DefaultConfig(),
		session: state.NewSession(),
		clock:   timeutil.RealClock{},
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// #endregion engine

// #region analyze
// Step feeds one sample through the phase machine and returns the full
// result. A rejected sample leaves the session untouched.
func (e *Engine) Step(s motion.Sample, loc *motion.Location) update.Result {
	r := update.Update(e.session, update.Input{Sample: s, Location: loc}, e.prof, e.cfg)
	if r.Err != nil {
		return r
	}
	e.session = r.Session
	if r.Event != nil {
		r.Event.ID = e.newID()
	}
	return r
}

// Analyze feeds one sample and returns the event it confirmed, if any.
func (e *Engine) Analyze(s motion.Sample, loc *motion.Location) (*state.FallEvent, error) {
	r := e.Step(s, loc)
	return r.Event, r.Err
}

// #endregion analyze

// #region control
// Reset discards all evidence, including the cooldown reference.
func (e *Engine) Reset() {
	e.session = state.NewSession()
}

// SetMode replaces the active profile and resets. Evidence gathered under
// one profile is never carried into another.
func (e *Engine) SetMode(mode profile.Mode) {
	e.prof = profile.For(mode)
	e.Reset()
}

// TriggerTestEvent returns a fixed high-confidence event without consulting
// the phase machine and rearms the session as a confirmation would. Before
// the first sample the event is stamped with the clock, and no cooldown is
// started: sample timestamps need not share the clock's time base.
func (e *Engine) TriggerTestEvent(loc *motion.Location) state.FallEvent {
	at := e.session.LastSampleAt
	sampled := !at.IsZero()
	if !sampled {
		at = e.clock.Now()
	}
	r := update.TestEvent(e.session, at, e.prof.Mode, loc)
	e.session = r.Session
	if !sampled {
		e.session.LastConfirmedAt = time.Time{}
	}
	ev := *r.Event
	ev.ID = e.newID()
	return ev
}

// #endregion control

// #region accessors
// Mode returns the active mode.
func (e *Engine) Mode() profile.Mode { return e.prof.Mode }

// Profile returns the active thresholds.
func (e *Engine) Profile() profile.Profile { return e.prof }

// Phase returns the current phase.
func (e *Engine) Phase() state.Phase { return e.session.Phase }

// Confidence returns the blended confidence of the current window.
func (e *Engine) Confidence() float64 { return e.session.Confidence.Value() }

// Session returns a copy of the current session.
func (e *Engine) Session() state.Session { return e.session }

// #endregion accessors
