// Package replay drives recorded or synthetic sample traces through a fresh
// engine and checks the events they produce.
package replay

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/engine"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/eval"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/state"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/timeutil"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/update"
)

// #region types
// Step is one decision the phase machine took during a replay.
type Step struct {
	Index    int           // sample index
	Offset   time.Duration // since Epoch
	Decision update.Decision
	Metrics  update.Metrics
}

// Result captures the outcome of replaying one trace.
type Result struct {
	Mode     profile.Mode
	Samples  int
	Rejected int
	Steps    []Step // transitions, confirmations, recoveries and rejections
	Events   []state.FallEvent
}

// Comparison is the verdict of a result against a fixture's expectations.
type Comparison struct {
	Passed   bool
	Expected int
	Got      int
	Failures []string
}

// #endregion types

// #region replay
// Run replays f under its own mode.
func Run(f *Fixture) Result {
	return RunMode(f, f.ProfileMode())
}

// RunMode replays f under mode on a fresh engine. Event IDs are sequential so
// runs are reproducible.
func RunMode(f *Fixture, mode profile.Mode) Result {
	seq := 0
	eng := engine.New(mode,
		engine.WithClock(timeutil.NewMockClock(Epoch)),
		engine.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("replay-%d", seq)
		}),
	)

	res := Result{Mode: eng.Mode(), Samples: len(f.Samples)}
	for i, fs := range f.Samples {
		s := fs.ToSample()
		r := eng.Step(s, nil)
		switch r.Decision.Action {
		case update.ActionNone, update.ActionHold:
		default:
			res.Steps = append(res.Steps, Step{
				Index:    i,
				Offset:   s.Timestamp.Sub(Epoch),
				Decision: r.Decision,
				Metrics:  r.Metrics,
			})
		}
		if r.Err != nil {
			res.Rejected++
			continue
		}
		if r.Event != nil {
			res.Events = append(res.Events, *r.Event)
		}
	}
	return res
}

// #endregion replay

// #region compare
// Compare checks the event count and each event's confidence floor.
func Compare(f *Fixture, r Result) Comparison {
	c := Comparison{Expected: len(f.ExpectedEvents), Got: len(r.Events)}
	if c.Expected != c.Got {
		c.Failures = append(c.Failures, fmt.Sprintf("expected %d events, got %d", c.Expected, c.Got))
	}
	for i, exp := range f.ExpectedEvents {
		if i >= len(r.Events) {
			break
		}
		if got := r.Events[i].Confidence; got < exp.MinConfidence {
			c.Failures = append(c.Failures, fmt.Sprintf("event %d: confidence %.3f below %.3f", i, got, exp.MinConfidence))
		}
	}
	c.Passed = len(c.Failures) == 0
	return c
}

// Outcome converts a result into an evaluation outcome for f.
func (r Result) Outcome(name string, f *Fixture) eval.Outcome {
	return eval.Outcome{Name: name, Mode: r.Mode, Label: f.Label, Events: len(r.Events)}
}

// #endregion compare
