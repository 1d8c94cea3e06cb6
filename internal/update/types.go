package update

import (
	"errors"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/gate"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/state"
)

// ErrOutOfOrder rejects a sample whose timestamp precedes the last accepted one.
var ErrOutOfOrder = errors.New("sample timestamp precedes previous sample")

// #region input
// Input is one step of the sensor stream.
type Input struct {
	Sample   motion.Sample
	Location *motion.Location // attached to any event emitted by this step
}

// #endregion input

// #region decision
// Action names what a single step did to the session.
type Action string

const (
	ActionNone       Action = "none"       // phase unchanged
	ActionTransition Action = "transition" // moved along a detection edge
	ActionConfirm    Action = "confirm"    // fall confirmed, event emitted
	ActionRecover    Action = "recover"    // false trigger, rearmed to normal
	ActionHold       Action = "hold"       // cooldown kept the session in normal
	ActionReject     Action = "reject"     // sample refused, session untouched
)

// Decision records what the update function decided.
type Decision struct {
	Action Action
	From   state.Phase
	To     state.Phase
	Reason string
}

// #endregion decision

// #region metrics
// Metrics captures telemetry from one step.
type Metrics struct {
	AccelMagnitude float64 // g
	GyroMagnitude  float64 // rad/s
	Instant        float64 // per-phase confidence of this sample
	Confidence     float64 // blended window value after this sample
}

// #endregion metrics

// #region update-config
// Config holds the mode-independent constants of the phase machine.
type Config struct {
	Gate                gate.GateConfig
	RecoveryMotion      float64 // g; PostImpact motion above this ends stillness
	EscapeStillFraction float64 // share of PostImpactMinDuration that must have elapsed
	EscapeImpactFactor  float64 // peak must exceed ImpactThreshold by this factor
}

// DefaultConfig returns the reference constants.
func DefaultConfig() Config {
	return Config{
		Gate:                gate.DefaultGateConfig(),
		RecoveryMotion:      0.7,
		EscapeStillFraction: 0.5,
		EscapeImpactFactor:  1.2,
	}
}

// #endregion update-config

// #region update-result
// Result bundles everything returned by Update().
type Result struct {
	Session  state.Session
	Event    *state.FallEvent // non-nil only on ActionConfirm
	Decision Decision
	Metrics  Metrics
	Err      error // set only on ActionReject
}

// #endregion update-result
