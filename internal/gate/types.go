package gate

import "time"

// #region action
// Action is the gate verdict for one sample.
type Action string

const (
	ActionOpen Action = "open"
	ActionHold Action = "hold"
)

// #endregion action

// #region gate-config
// GateConfig holds the cooldown parameters.
type GateConfig struct {
	Interval time.Duration // how long the phase machine stays pinned to normal after a confirmation
}

// DefaultGateConfig returns the 5 s cooldown used by every mode.
func DefaultGateConfig() GateConfig {
	return GateConfig{Interval: 5 * time.Second}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action    Action
	Reason    string
	Remaining time.Duration // zero when open
}

// Open reports whether the phase machine may leave normal.
func (d GateDecision) Open() bool { return d.Action == ActionOpen }

// #endregion gate-decision
