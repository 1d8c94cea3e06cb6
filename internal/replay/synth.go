package replay

import (
	"fmt"
	"math"
	"sort"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/eval"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
)

// Kind names a synthetic trace shape.
type Kind string

const (
	KindFall     Kind = "fall"
	KindHardFall Kind = "hard_fall"
	KindStumble  Kind = "stumble"
	KindRunning  Kind = "running"
	KindJumping  Kind = "jumping"
	KindSitting  Kind = "sitting"
)

// DefaultRateHz is the sample rate used when none is given.
const DefaultRateHz = 50

// stillMagnitude is the reading of a body at rest after a fall, below the
// stillness threshold of every profile.
const stillMagnitude = 0.03

type synthesizer struct {
	description string
	label       eval.Label
	minConf     float64
	build       func(b *traceBuilder)
}

var synthesizers = map[Kind]synthesizer{
	KindFall: {
		description: "forward fall: drop, impact with rotation, lying still",
		label:       eval.LabelFall,
		minConf:     0.6,
		build: func(b *traceBuilder) {
			b.hold(1000, 1.0, 0, 0)
			b.ramp(300, 0.1, 2.0, 0, 0.8)
			b.hold(b.dt, 3.2, 2.5, 1.4)
			b.hold(1500, stillMagnitude, 0, 1.5)
		},
	},
	KindHardFall: {
		description: "abrupt fall without a drop: direct impact, lying still",
		label:       eval.LabelFall,
		minConf:     0.6,
		build: func(b *traceBuilder) {
			b.hold(1000, 1.0, 0, 0)
			b.hold(b.dt, 4.5, 2.0, 0.6)
			b.hold(b.dt, 2.0, 2.0, 1.2)
			b.hold(1500, stillMagnitude, 0, 1.3)
		},
	},
	KindStumble: {
		description: "stumble and catch: short dip and jolt, walking resumes at once",
		label:       eval.LabelADL,
		build: func(b *traceBuilder) {
			b.hold(1000, 1.0, 0, 0)
			b.hold(100, 0.15, 0.5, 0.1)
			b.hold(b.dt, 2.0, 1.0, 0.2)
			b.hold(b.dt, 0.1, 0.5, 0.2)
			b.alternate(2000, 0.9, 1.2)
		},
	},
	KindRunning: {
		description: "steady running at 2.8 steps/s",
		label:       eval.LabelADL,
		build: func(b *traceBuilder) {
			b.wave(4000, 1.15, 0.55, 2.8)
		},
	},
	KindJumping: {
		description: "five vertical jumps with soft landings",
		label:       eval.LabelADL,
		build: func(b *traceBuilder) {
			b.hold(500, 1.0, 0, 0)
			for i := 0; i < 5; i++ {
				b.hold(200, 0.8, 0.2, 0)
				b.hold(100, 1.6, 0.4, 0)
				b.hold(300, 0.3, 0.2, 0)
				b.hold(60, 1.75, 0.6, 0)
				b.hold(400, 1.0, 0, 0)
			}
		},
	},
	KindSitting: {
		description: "sitting down onto a chair",
		label:       eval.LabelADL,
		build: func(b *traceBuilder) {
			b.hold(1000, 1.0, 0, 0)
			b.ramp(400, 0.7, 0.6, 0, 0.3)
			b.hold(60, 1.5, 0.3, 0.3)
			b.hold(2000, 1.0, 0, 0.3)
		},
	},
}

// Kinds lists the available synthetic traces.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(synthesizers))
	for k := range synthesizers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Synthesize builds a deterministic balanced-mode fixture of the given kind
// sampled at rateHz.
func Synthesize(kind Kind, rateHz int) (*Fixture, error) {
	syn, ok := synthesizers[kind]
	if !ok {
		return nil, fmt.Errorf("unknown trace kind %q", kind)
	}
	if rateHz <= 0 {
		rateHz = DefaultRateHz
	}
	if rateHz > 1000 {
		return nil, fmt.Errorf("rate %d Hz exceeds 1000 Hz", rateHz)
	}

	b := &traceBuilder{dt: int64(1000 / rateHz)}
	syn.build(b)

	f := &Fixture{
		Description: fmt.Sprintf("%s (%d Hz, synthetic)", syn.description, rateHz),
		Mode:        string(profile.ModeBalanced),
		Label:       syn.label,
		Samples:     b.samples,
	}
	if syn.label == eval.LabelFall {
		f.ExpectedEvents = []FixtureExpectedEvent{{MinConfidence: syn.minConf}}
	}
	return f, nil
}

// #region builder
// traceBuilder appends samples at a fixed period. Acceleration is placed on
// the z axis unless a segment spreads it, so magnitudes are exact.
type traceBuilder struct {
	dt      int64 // ms
	t       int64 // ms of the next sample
	samples []FixtureSample
}

func (b *traceBuilder) add(accel [3]float64, gyro float64, pitch float64) {
	b.samples = append(b.samples, FixtureSample{
		TMs:      b.t,
		Accel:    accel,
		Gyro:     [3]float64{gyro, 0, 0},
		Attitude: &[3]float64{pitch, 0, 0},
	})
	b.t += b.dt
}

// steps returns how many samples cover durMs, at least one.
func (b *traceBuilder) steps(durMs int64) int {
	n := int(durMs / b.dt)
	if n < 1 {
		n = 1
	}
	return n
}

// hold emits a constant magnitude for durMs.
func (b *traceBuilder) hold(durMs int64, mag, gyro, pitch float64) {
	for i := 0; i < b.steps(durMs); i++ {
		b.add([3]float64{0, 0, mag}, gyro, pitch)
	}
}

// ramp holds mag while the pitch moves linearly from fromPitch to toPitch.
func (b *traceBuilder) ramp(durMs int64, mag, gyro, fromPitch, toPitch float64) {
	n := b.steps(durMs)
	for i := 0; i < n; i++ {
		p := fromPitch + (toPitch-fromPitch)*float64(i)/float64(n)
		b.add([3]float64{0, 0, mag}, gyro, p)
	}
}

// alternate switches between two magnitudes every sample, like a gait.
func (b *traceBuilder) alternate(durMs int64, lo, hi float64) {
	for i := 0; i < b.steps(durMs); i++ {
		mag := lo
		if i%2 == 1 {
			mag = hi
		}
		b.add([3]float64{0, 0, mag}, 0.3, 0)
	}
}

// wave oscillates the magnitude around mean at freqHz, split across x and z.
func (b *traceBuilder) wave(durMs int64, mean, amp, freqHz float64) {
	for i := 0; i < b.steps(durMs); i++ {
		sec := float64(b.t) / 1000
		mag := mean + amp*math.Sin(2*math.Pi*freqHz*sec)
		b.add([3]float64{0.6 * mag, 0, 0.8 * mag}, 1.0, 0.1)
	}
}

// #endregion builder
