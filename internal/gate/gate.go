package gate

import (
	"fmt"
	"time"
)

// #region gate
// Gate suppresses new detections for a fixed interval after a confirmed fall.
// It keeps no state of its own; the confirmation time lives in the session.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) Gate {
	return Gate{config: config}
}

// Interval returns the configured cooldown.
func (g Gate) Interval() time.Duration {
	return g.config.Interval
}

// Evaluate decides whether a sample at now may start a new detection.
// A zero lastConfirmed means nothing has been confirmed yet. A confirmation
// later than now belongs to another time base and does not hold.
func (g Gate) Evaluate(lastConfirmed, now time.Time) GateDecision {
	if lastConfirmed.IsZero() || g.config.Interval <= 0 {
		return GateDecision{Action: ActionOpen, Reason: "no recent confirmation"}
	}

	elapsed := now.Sub(lastConfirmed)
	if elapsed < 0 {
		return GateDecision{
			Action: ActionOpen,
			Reason: fmt.Sprintf("confirmation %s after sample, ignored", (-elapsed).Round(time.Millisecond)),
		}
	}
	if elapsed >= g.config.Interval {
		return GateDecision{
			Action: ActionOpen,
			Reason: fmt.Sprintf("cooldown elapsed (%s)", elapsed.Round(time.Millisecond)),
		}
	}

	remaining := g.config.Interval - elapsed
	return GateDecision{
		Action:    ActionHold,
		Reason:    fmt.Sprintf("cooldown: %s remaining", remaining.Round(time.Millisecond)),
		Remaining: remaining,
	}
}

// #endregion gate
