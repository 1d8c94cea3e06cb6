package profile

import (
	"fmt"
	"strings"
	"time"
)

// #region mode
// Mode names one of the three fixed sensitivity profiles.
type Mode string

const (
	ModeConservative Mode = "conservative"
	ModeBalanced     Mode = "balanced"
	ModeSensitive    Mode = "sensitive"
)

// DefaultMode is used when no mode is configured.
const DefaultMode = ModeBalanced

// Modes lists every supported mode, least to most aggressive.
func Modes() []Mode {
	return []Mode{ModeConservative, ModeBalanced, ModeSensitive}
}

// ParseMode resolves a case-insensitive mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeConservative, ModeBalanced, ModeSensitive:
		return m, nil
	default:
		return "", fmt.Errorf("unknown detection mode %q", s)
	}
}

// Valid reports whether m is one of the three supported modes.
func (m Mode) Valid() bool {
	_, err := ParseMode(string(m))
	return err == nil
}

// #endregion mode

// #region profile
// Profile holds the seven thresholds that drive the phase machine.
// Values are selected by mode and never mutated.
type Profile struct {
	Mode                     Mode
	ImpactThreshold          float64       // g
	FreefallThreshold        float64       // g
	FreefallMinDuration      time.Duration // tuning data, not read by the phase machine
	PostImpactStillThreshold float64       // g
	PostImpactMinDuration    time.Duration
	RotationThreshold        float64 // rad/s
	AttitudeChangeThreshold  float64 // rad
}

var profiles = map[Mode]Profile{
	ModeConservative: {
		Mode:                     ModeConservative,
		ImpactThreshold:          2.5,
		FreefallThreshold:        0.30,
		FreefallMinDuration:      150 * time.Millisecond,
		PostImpactStillThreshold: 0.20,
		PostImpactMinDuration:    1000 * time.Millisecond,
		RotationThreshold:        2.0,
		AttitudeChangeThreshold:  1.0,
	},
	ModeBalanced: {
		Mode:                     ModeBalanced,
		ImpactThreshold:          1.8,
		FreefallThreshold:        0.20,
		FreefallMinDuration:      100 * time.Millisecond,
		PostImpactStillThreshold: 0.15,
		PostImpactMinDuration:    600 * time.Millisecond,
		RotationThreshold:        1.5,
		AttitudeChangeThreshold:  0.8,
	},
	// Aggressive enough to fire on high-cadence running. Kept as tuning data.
	ModeSensitive: {
		Mode:                     ModeSensitive,
		ImpactThreshold:          0.5,
		FreefallThreshold:        0.05,
		FreefallMinDuration:      50 * time.Millisecond,
		PostImpactStillThreshold: 0.05,
		PostImpactMinDuration:    300 * time.Millisecond,
		RotationThreshold:        0.3,
		AttitudeChangeThreshold:  0.5,
	},
}

// For returns the profile for mode. Unknown modes fall back to DefaultMode.
func For(mode Mode) Profile {
	if p, ok := profiles[mode]; ok {
		return p
	}
	return profiles[DefaultMode]
}

// #endregion profile
