package eval

import "github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"

// #region label
// Label is the ground truth of a recorded or synthetic trace.
type Label string

const (
	LabelFall Label = "fall" // the trace contains a real fall
	LabelADL  Label = "adl"  // activity of daily living, must not alert
)

// #endregion label

// #region outcome
// Outcome is what one replayed trace produced.
type Outcome struct {
	Name   string
	Mode   profile.Mode
	Label  Label
	Events int
}

// Verdict classifies an outcome against its label.
type Verdict string

const (
	VerdictTP Verdict = "TP"
	VerdictFP Verdict = "FP"
	VerdictFN Verdict = "FN"
	VerdictTN Verdict = "TN"
)

// #endregion outcome

// #region counts
// Counts is a confusion matrix.
type Counts struct {
	TP, FP, FN, TN int
}

// Report aggregates verdicts overall and per detection mode.
type Report struct {
	Overall Counts
	ByMode  map[profile.Mode]Counts
}

// #endregion counts
