package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/eval"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
)

// Epoch anchors fixture offsets (t_ms) to absolute sample timestamps.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description    string                 `json:"description"`
	Mode           string                 `json:"mode"`
	Label          eval.Label             `json:"label"`
	Samples        []FixtureSample        `json:"samples"`
	ExpectedEvents []FixtureExpectedEvent `json:"expected_events"`
}

// FixtureSample is one sensor reading at t_ms after Epoch. Vectors are
// [x, y, z]; attitude is [pitch, roll, yaw] in radians.
type FixtureSample struct {
	TMs      int64       `json:"t_ms"`
	Accel    [3]float64  `json:"accel"`
	Gyro     [3]float64  `json:"gyro"`
	Attitude *[3]float64 `json:"attitude,omitempty"`
}

// FixtureExpectedEvent is the floor an emitted event must clear.
type FixtureExpectedEvent struct {
	MinConfidence float64 `json:"min_confidence"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return &f, nil
}

// LoadFixtureDir loads every *.json fixture in dir, sorted by file name.
func LoadFixtureDir(dir string) (map[string]*Fixture, []string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	sort.Strings(paths)
	fixtures := make(map[string]*Fixture, len(paths))
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		f, err := LoadFixture(p)
		if err != nil {
			return nil, nil, err
		}
		name := filepath.Base(p)
		fixtures[name] = f
		names = append(names, name)
	}
	return fixtures, names, nil
}

// WriteFixture encodes f as indented JSON.
func WriteFixture(w io.Writer, f *Fixture) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

// Validate checks the label, mode and sample ordering.
func (f *Fixture) Validate() error {
	var errs []error
	switch f.Label {
	case eval.LabelFall, eval.LabelADL:
	default:
		errs = append(errs, fmt.Errorf("label %q must be %q or %q", f.Label, eval.LabelFall, eval.LabelADL))
	}
	if f.Mode != "" {
		if _, err := profile.ParseMode(f.Mode); err != nil {
			errs = append(errs, err)
		}
	}
	if len(f.Samples) == 0 {
		errs = append(errs, errors.New("no samples"))
	}
	for i := 1; i < len(f.Samples); i++ {
		if f.Samples[i].TMs < f.Samples[i-1].TMs {
			errs = append(errs, fmt.Errorf("sample %d: t_ms %d precedes %d", i, f.Samples[i].TMs, f.Samples[i-1].TMs))
			break
		}
	}
	return errors.Join(errs...)
}

// ProfileMode resolves the fixture mode, defaulting when unset.
func (f *Fixture) ProfileMode() profile.Mode {
	m, err := profile.ParseMode(f.Mode)
	if err != nil {
		return profile.DefaultMode
	}
	return m
}

// ToSample converts a FixtureSample to a domain sample.
func (fs FixtureSample) ToSample() motion.Sample {
	s := motion.Sample{
		Timestamp: Epoch.Add(time.Duration(fs.TMs) * time.Millisecond),
		Accel:     motion.Vec3{X: fs.Accel[0], Y: fs.Accel[1], Z: fs.Accel[2]},
		Gyro:      motion.Vec3{X: fs.Gyro[0], Y: fs.Gyro[1], Z: fs.Gyro[2]},
	}
	if fs.Attitude != nil {
		s.Attitude = &motion.Attitude{Pitch: fs.Attitude[0], Roll: fs.Attitude[1], Yaw: fs.Attitude[2]}
	}
	return s
}

// FromSample converts a domain sample back to fixture form, measuring t_ms
// from origin.
func FromSample(s motion.Sample, origin time.Time) FixtureSample {
	fs := FixtureSample{
		TMs:   s.Timestamp.Sub(origin).Milliseconds(),
		Accel: [3]float64{s.Accel.X, s.Accel.Y, s.Accel.Z},
		Gyro:  [3]float64{s.Gyro.X, s.Gyro.Y, s.Gyro.Z},
	}
	if s.Attitude != nil {
		fs.Attitude = &[3]float64{s.Attitude.Pitch, s.Attitude.Roll, s.Attitude.Yaw}
	}
	return fs
}

// #endregion fixture-loader
