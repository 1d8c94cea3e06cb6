package update

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/confidence"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/state"
)

var t0 = time.Date(2025, 12, 16, 8, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func sample(ms int, g float64) motion.Sample {
	return motion.Sample{Timestamp: at(ms), Accel: motion.Vec3{Z: g}}
}

// run feeds samples in order and returns the final session and every event.
func run(t *testing.T, s state.Session, prof profile.Profile, samples []motion.Sample) (state.Session, []state.FallEvent) {
	t.Helper()
	var events []state.FallEvent
	for _, smp := range samples {
		r := Update(s, Input{Sample: smp}, prof, DefaultConfig())
		if r.Err != nil {
			t.Fatalf("unexpected reject at %s: %v", smp.Timestamp, r.Err)
		}
		if r.Metrics.Confidence < 0 || r.Metrics.Confidence > confidence.Ceiling {
			t.Fatalf("confidence %f out of bounds", r.Metrics.Confidence)
		}
		s = r.Session
		if r.Event != nil {
			events = append(events, *r.Event)
		}
	}
	return s, events
}

// fallSequence is a sensitive-mode fall starting at startMs: 70 ms of
// freefall, a 1.0 g impact, then 400 ms of stillness at 10 ms cadence.
func fallSequence(startMs int) []motion.Sample {
	var out []motion.Sample
	ms := startMs
	for ; ms < startMs+70; ms += 10 {
		out = append(out, sample(ms, 0.01))
	}
	out = append(out, sample(ms, 1.0))
	for end := ms + 400; ms < end; {
		ms += 10
		out = append(out, sample(ms, 0.01))
	}
	return out
}

func TestSingleShotConfirmation(t *testing.T) {
	prof := profile.For(profile.ModeSensitive)
	s, events := run(t, state.NewSession(), prof, fallSequence(0))

	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	ev := events[0]
	if math.Abs(ev.MaxImpact-1.0) > 1e-9 {
		t.Fatalf("expected maxImpact 1.0, got %f", ev.MaxImpact)
	}
	if ev.Mode != profile.ModeSensitive || ev.Origin != state.OriginDetected {
		t.Fatalf("unexpected event metadata: %+v", ev)
	}
	if ev.Confidence <= 0.7 || ev.Confidence > confidence.Ceiling {
		t.Fatalf("confidence %f outside expected range", ev.Confidence)
	}
	if s.Phase != state.PhaseNormal {
		t.Fatalf("expected normal after confirmation, got %s", s.Phase)
	}
	if s.LastConfirmedAt.IsZero() {
		t.Fatal("expected cooldown reference to be set")
	}
}

func TestCooldownSuppressesRepeat(t *testing.T) {
	prof := profile.For(profile.ModeSensitive)
	s, first := run(t, state.NewSession(), prof, fallSequence(0))
	if len(first) != 1 {
		t.Fatalf("expected first event, got %d", len(first))
	}

	s, second := run(t, s, prof, fallSequence(1000))
	if len(second) != 0 {
		t.Fatalf("expected cooldown to suppress, got %d events", len(second))
	}
	if s.Phase != state.PhaseNormal {
		t.Fatalf("phase should stay normal during cooldown, got %s", s.Phase)
	}

	_, third := run(t, s, prof, fallSequence(6000))
	if len(third) != 1 {
		t.Fatalf("expected one event after cooldown, got %d", len(third))
	}
}

func TestHoldStillUpdatesConfidence(t *testing.T) {
	prof := profile.For(profile.ModeSensitive)
	s := state.NewSession()
	s.LastConfirmedAt = at(0)
	r := Update(s, Input{Sample: sample(100, 0.01)}, prof, DefaultConfig())
	if r.Decision.Action != ActionHold {
		t.Fatalf("expected hold, got %s", r.Decision.Action)
	}
	if r.Session.Confidence.Len() != 1 {
		t.Fatalf("window should still advance, len=%d", r.Session.Confidence.Len())
	}
	if !r.Session.LastSampleAt.Equal(at(100)) {
		t.Fatal("sample should be consumed")
	}
}

func TestDirectImpactSkipsFreefall(t *testing.T) {
	prof := profile.For(profile.ModeBalanced)
	r := Update(state.NewSession(), Input{Sample: sample(0, 2.4)}, prof, DefaultConfig())
	if r.Session.Phase != state.PhaseImpact {
		t.Fatalf("expected impact, got %s", r.Session.Phase)
	}
	if r.Session.MaxImpactMagnitude != 2.4 {
		t.Fatalf("expected max impact 2.4, got %f", r.Session.MaxImpactMagnitude)
	}
}

func TestFreefallInterruptedRearms(t *testing.T) {
	prof := profile.For(profile.ModeBalanced)
	s, _ := run(t, state.NewSession(), prof, []motion.Sample{sample(0, 0.1), sample(10, 0.1)})
	if s.Phase != state.PhaseFreefall {
		t.Fatalf("expected freefall, got %s", s.Phase)
	}
	r := Update(s, Input{Sample: sample(20, 1.0)}, prof, DefaultConfig())
	if r.Decision.Action != ActionRecover || r.Session.Phase != state.PhaseNormal {
		t.Fatalf("expected recover to normal, got %s/%s", r.Decision.Action, r.Session.Phase)
	}
	if r.Session.Confidence.Value() != 0 {
		t.Fatalf("expected confidence cleared, got %f", r.Session.Confidence.Value())
	}
}

func TestMaxImpactNonDecreasing(t *testing.T) {
	prof := profile.For(profile.ModeBalanced)
	s := state.NewSession()
	seq := []float64{0.1, 2.0, 3.1, 2.2, 2.5, 0.1, 0.3, 0.5}
	prev := 0.0
	for i, g := range seq {
		r := Update(s, Input{Sample: sample(i*10, g)}, prof, DefaultConfig())
		s = r.Session
		if s.Phase == state.PhaseImpact || s.Phase == state.PhasePostImpact {
			if s.MaxImpactMagnitude < prev {
				t.Fatalf("max impact decreased at %d: %f < %f", i, s.MaxImpactMagnitude, prev)
			}
			prev = s.MaxImpactMagnitude
		}
	}
	if prev != 3.1 {
		t.Fatalf("expected peak 3.1, got %f", prev)
	}
	if s.Phase != state.PhasePostImpact {
		t.Fatalf("mid-range samples should keep post impact, got %s", s.Phase)
	}
}

func escapeSession(t *testing.T, peak float64) state.Session {
	t.Helper()
	prof := profile.For(profile.ModeBalanced)
	s, events := run(t, state.NewSession(), prof, []motion.Sample{
		sample(0, 0.1),
		sample(100, peak),
		sample(150, 0.1),
	})
	if len(events) != 0 || s.Phase != state.PhasePostImpact {
		t.Fatalf("setup: expected post impact without events, got %s", s.Phase)
	}
	return s
}

func TestEscapeRuleConfirms(t *testing.T) {
	prof := profile.For(profile.ModeBalanced)
	s := escapeSession(t, 2.2) // > 1.2 × 1.8
	r := Update(s, Input{Sample: sample(450, 0.9)}, prof, DefaultConfig())
	if r.Decision.Action != ActionConfirm || r.Event == nil {
		t.Fatalf("expected escape confirmation, got %s", r.Decision.Action)
	}
	if r.Event.MaxImpact != 2.2 {
		t.Fatalf("expected max impact 2.2, got %f", r.Event.MaxImpact)
	}
}

func TestEscapeRuleRecoversWithoutEvidence(t *testing.T) {
	prof := profile.For(profile.ModeBalanced)

	weak := escapeSession(t, 1.9)
	r := Update(weak, Input{Sample: sample(450, 0.9)}, prof, DefaultConfig())
	if r.Decision.Action != ActionRecover || r.Event != nil {
		t.Fatalf("expected recovery with weak peak, got %s", r.Decision.Action)
	}
	if r.Session.Phase != state.PhaseNormal {
		t.Fatalf("expected normal, got %s", r.Session.Phase)
	}

	early := escapeSession(t, 2.2)
	r = Update(early, Input{Sample: sample(300, 0.9)}, prof, DefaultConfig())
	if r.Decision.Action != ActionRecover {
		t.Fatalf("expected recovery before half duration, got %s", r.Decision.Action)
	}
}

func TestRotationAndAttitudeEvidence(t *testing.T) {
	prof := profile.For(profile.ModeBalanced)
	level := &motion.Attitude{}
	tipped := &motion.Attitude{Pitch: 1.2}

	samples := []motion.Sample{
		{Timestamp: at(0), Accel: motion.Vec3{Z: 0.1}, Attitude: level},
		{Timestamp: at(100), Accel: motion.Vec3{Z: 3.0}, Gyro: motion.Vec3{X: 2.0}, Attitude: tipped},
		{Timestamp: at(200), Accel: motion.Vec3{Z: 0.05}, Attitude: tipped},
		{Timestamp: at(800), Accel: motion.Vec3{Z: 0.05}, Attitude: tipped},
	}
	_, events := run(t, state.NewSession(), prof, samples)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	ev := events[0]
	if !ev.HadRotation {
		t.Fatal("expected rotation evidence")
	}
	if math.Abs(ev.MaxAttitudeChange-1.2) > 1e-6 {
		t.Fatalf("expected attitude change 1.2, got %f", ev.MaxAttitudeChange)
	}
}

func TestRotationIgnoredInNormal(t *testing.T) {
	prof := profile.For(profile.ModeBalanced)
	r := Update(state.NewSession(), Input{Sample: motion.Sample{
		Timestamp: at(0), Accel: motion.Vec3{Z: 1.0}, Gyro: motion.Vec3{Y: 5},
	}}, prof, DefaultConfig())
	if r.Session.RotationObserved {
		t.Fatal("rotation should only accumulate during detection")
	}
}

func TestRejectNonFinite(t *testing.T) {
	prof := profile.For(profile.ModeBalanced)
	s, _ := run(t, state.NewSession(), prof, []motion.Sample{sample(0, 0.1)})

	bad := sample(10, math.NaN())
	r := Update(s, Input{Sample: bad}, prof, DefaultConfig())
	if !errors.Is(r.Err, motion.ErrNonFinite) {
		t.Fatalf("expected ErrNonFinite, got %v", r.Err)
	}
	if r.Decision.Action != ActionReject {
		t.Fatalf("expected reject, got %s", r.Decision.Action)
	}
	if r.Session.Phase != s.Phase || !r.Session.LastSampleAt.Equal(s.LastSampleAt) || r.Session.Confidence.Len() != s.Confidence.Len() {
		t.Fatal("rejected sample mutated the session")
	}
}

func TestRejectOutOfOrder(t *testing.T) {
	prof := profile.For(profile.ModeBalanced)
	s, _ := run(t, state.NewSession(), prof, []motion.Sample{sample(100, 1.0)})

	r := Update(s, Input{Sample: sample(50, 1.0)}, prof, DefaultConfig())
	if !errors.Is(r.Err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", r.Err)
	}

	r = Update(s, Input{Sample: sample(100, 1.0)}, prof, DefaultConfig())
	if r.Err != nil {
		t.Fatalf("equal timestamps should be accepted: %v", r.Err)
	}
}

func TestUpdateDeterministic(t *testing.T) {
	prof := profile.For(profile.ModeSensitive)
	s1, e1 := run(t, state.NewSession(), prof, fallSequence(0))
	s2, e2 := run(t, state.NewSession(), prof, fallSequence(0))
	if len(e1) != len(e2) || e1[0] != e2[0] {
		t.Fatal("non-deterministic events")
	}
	if s1.Phase != s2.Phase || !s1.LastConfirmedAt.Equal(s2.LastConfirmedAt) {
		t.Fatal("non-deterministic session")
	}
}

func TestUpdateDoesNotMutateInput(t *testing.T) {
	prof := profile.For(profile.ModeBalanced)
	old := state.NewSession()
	_ = Update(old, Input{Sample: sample(0, 0.1)}, prof, DefaultConfig())
	if old.Phase != state.PhaseNormal || old.Confidence.Len() != 0 {
		t.Fatal("Update mutated its input session")
	}
}

func TestLocationAttached(t *testing.T) {
	prof := profile.For(profile.ModeBalanced)
	s := escapeSession(t, 2.2)
	loc := &motion.Location{Latitude: 25.03, Longitude: 121.56}
	r := Update(s, Input{Sample: sample(450, 0.9), Location: loc}, prof, DefaultConfig())
	if r.Event == nil || r.Event.Location == nil || *r.Event.Location != *loc {
		t.Fatalf("expected location on event, got %+v", r.Event)
	}
	loc.Latitude = 0
	if r.Event.Location.Latitude == 0 {
		t.Fatal("event location should not alias the caller's value")
	}
}

func TestTestEventDeterministic(t *testing.T) {
	prof := profile.For(profile.ModeBalanced)
	mid := escapeSession(t, 2.2)

	for _, s := range []state.Session{state.NewSession(), mid} {
		r := TestEvent(s, at(1000), prof.Mode, nil)
		if r.Event.Confidence != 0.92 || r.Event.MaxImpact != 3.0 || !r.Event.HadRotation {
			t.Fatalf("unexpected test event: %+v", r.Event)
		}
		if r.Event.Origin != state.OriginTest {
			t.Fatalf("expected test origin, got %s", r.Event.Origin)
		}
		if r.Session.Phase != state.PhaseNormal || !r.Session.LastConfirmedAt.Equal(at(1000)) {
			t.Fatalf("expected normal with cooldown, got %s", r.Session.Phase)
		}
	}
}
