package logging

import "time"

// #region decision-entry
// DecisionEntry is a single row in the decision_log table. Steps that leave
// the phase unchanged are not recorded.
type DecisionEntry struct {
	RunID      string
	Action     string // update.Action, or "reset" | "set_mode" | "test_trigger"
	FromPhase  string
	ToPhase    string
	Mode       string
	Confidence float64
	EventID    string
	Reason     string
	CreatedAt  time.Time
}

// #endregion decision-entry
