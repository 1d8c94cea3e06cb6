package replay

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/eval"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/update"
)

// 1. Every synthetic trace behaves as labelled under the balanced profile at
// several sample rates.
func TestSynthesizedTracesBalanced(t *testing.T) {
	for _, rate := range []int{10, 50, 100} {
		for _, kind := range Kinds() {
			f, err := Synthesize(kind, rate)
			if err != nil {
				t.Fatalf("Synthesize(%s, %d): %v", kind, rate, err)
			}
			r := Run(f)
			if c := Compare(f, r); !c.Passed {
				t.Errorf("%s @ %d Hz: %s", kind, rate, strings.Join(c.Failures, "; "))
			}
		}
	}
}

// 2. A stumble enters the detection phases but recovers without an event.
func TestStumbleRecovers(t *testing.T) {
	f, err := Synthesize(KindStumble, 50)
	if err != nil {
		t.Fatal(err)
	}
	r := Run(f)
	var actions []update.Action
	for _, s := range r.Steps {
		actions = append(actions, s.Decision.Action)
	}
	want := []update.Action{update.ActionTransition, update.ActionTransition, update.ActionTransition, update.ActionRecover}
	if diff := cmp.Diff(want, actions); diff != "" {
		t.Fatalf("stumble steps mismatch (-want +got):\n%s", diff)
	}
}

// 3. Replays are reproducible, including event IDs.
func TestRunDeterministic(t *testing.T) {
	f, err := Synthesize(KindFall, 50)
	if err != nil {
		t.Fatal(err)
	}
	a, b := Run(f), Run(f)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("replay not deterministic:\n%s", diff)
	}
	if len(a.Events) != 1 || a.Events[0].ID != "replay-1" {
		t.Fatalf("unexpected events: %+v", a.Events)
	}
	last := a.Steps[len(a.Steps)-1]
	if last.Decision.Action != update.ActionConfirm {
		t.Fatalf("expected confirm as last step, got %s", last.Decision.Action)
	}
	if !a.Events[0].Timestamp.Equal(Epoch.Add(last.Offset)) {
		t.Fatalf("event time %s does not match confirming sample", a.Events[0].Timestamp)
	}
}

// 4. Synthesis is deterministic.
func TestSynthesizeDeterministic(t *testing.T) {
	a, _ := Synthesize(KindRunning, 50)
	b, _ := Synthesize(KindRunning, 50)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("synthesis not deterministic:\n%s", diff)
	}
}

// 5. Bad synthesis requests fail.
func TestSynthesizeErrors(t *testing.T) {
	if _, err := Synthesize("cartwheel", 50); err == nil {
		t.Fatal("expected unknown kind error")
	}
	if _, err := Synthesize(KindFall, 5000); err == nil {
		t.Fatal("expected rate error")
	}
	f, err := Synthesize(KindFall, 0)
	if err != nil {
		t.Fatalf("default rate: %v", err)
	}
	if got := f.Samples[1].TMs - f.Samples[0].TMs; got != 1000/DefaultRateHz {
		t.Fatalf("default period %d ms", got)
	}
}

// 6. Compare reports count and confidence failures.
func TestCompareFailures(t *testing.T) {
	f, _ := Synthesize(KindFall, 50)
	r := Run(f)

	strict := *f
	strict.ExpectedEvents = []FixtureExpectedEvent{{MinConfidence: 0.99}}
	if c := Compare(&strict, r); c.Passed || len(c.Failures) != 1 {
		t.Fatalf("expected confidence failure, got %+v", c)
	}

	none := *f
	none.ExpectedEvents = nil
	c := Compare(&none, r)
	if c.Passed || c.Expected != 0 || c.Got != 1 {
		t.Fatalf("expected count failure, got %+v", c)
	}
}

// 7. Replay outcomes feed the evaluation report.
func TestOutcomesScore(t *testing.T) {
	var outcomes []eval.Outcome
	for _, kind := range Kinds() {
		f, _ := Synthesize(kind, 50)
		outcomes = append(outcomes, Run(f).Outcome(string(kind), f))
	}
	report := eval.Score(outcomes)
	balanced := report.ByMode[profile.ModeBalanced]
	if balanced.TP != 2 || balanced.FN != 0 || balanced.FP != 0 || balanced.TN != 4 {
		t.Fatalf("unexpected balanced counts: %s", balanced)
	}
	if balanced.Recall() != 1 || balanced.Precision() != 1 {
		t.Fatalf("expected perfect balanced scores, got %s", balanced)
	}
}

// 8. RunMode overrides the fixture mode.
func TestRunModeOverride(t *testing.T) {
	f, _ := Synthesize(KindFall, 50)
	r := RunMode(f, profile.ModeConservative)
	if r.Mode != profile.ModeConservative {
		t.Fatalf("mode %s", r.Mode)
	}
	for _, ev := range r.Events {
		if ev.Mode != profile.ModeConservative {
			t.Fatalf("event mode %s", ev.Mode)
		}
	}
}
