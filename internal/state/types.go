package state

import (
	"strconv"
	"time"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/confidence"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/orientation"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
)

// #region phase
// Phase is a state of the four-phase detection automaton.
type Phase string

const (
	PhaseNormal     Phase = "normal"
	PhaseFreefall   Phase = "freefall"
	PhaseImpact     Phase = "impact"
	PhasePostImpact Phase = "post_impact"
)

// Phases lists every phase in detection order.
func Phases() []Phase {
	return []Phase{PhaseNormal, PhaseFreefall, PhaseImpact, PhasePostImpact}
}

// #endregion phase

// #region session
// Session is the mutable evidence of one detection attempt. It is a plain
// value: copying a Session copies all of its evidence.
type Session struct {
	Phase              Phase
	FreefallStartedAt  time.Time // zero when not in freefall
	ImpactStartedAt    time.Time // zero before impact
	MaxImpactMagnitude float64   // g
	RotationObserved   bool
	Orientation        orientation.Tracker
	Confidence         confidence.Window
	LastConfirmedAt    time.Time // survives Rearm, cleared by NewSession
	LastSampleAt       time.Time
}

// NewSession returns a fresh session resting in normal.
func NewSession() Session {
	return Session{
		Phase:      PhaseNormal,
		Confidence: confidence.NewWindow(confidence.DefaultSpan),
	}
}

// Rearm discards in-flight evidence after a confirmation or a false trigger
// while keeping the cooldown reference and sample ordering.
func (s Session) Rearm() Session {
	next := NewSession()
	next.LastConfirmedAt = s.LastConfirmedAt
	next.LastSampleAt = s.LastSampleAt
	return next
}

// #endregion session

// #region fall-event
// Origin tells real detections apart from synthetic test events.
type Origin string

const (
	OriginDetected Origin = "detected"
	OriginTest     Origin = "test"
)

// FallEvent is emitted once per confirmed fall. The engine keeps no
// reference to it after returning it.
type FallEvent struct {
	ID                string           `json:"id"`
	Timestamp         time.Time        `json:"timestamp"`
	Confidence        float64          `json:"confidence"`
	MaxImpact         float64          `json:"max_impact"`
	HadRotation       bool             `json:"had_rotation"`
	MaxAttitudeChange float64          `json:"max_attitude_change"`
	Mode              profile.Mode     `json:"mode"`
	Location          *motion.Location `json:"location,omitempty"`
	Origin            Origin           `json:"origin"`
}

// ConfidenceLevel buckets the confidence for display.
func (e FallEvent) ConfidenceLevel() string {
	switch {
	case e.Confidence >= 0.8:
		return "very_high"
	case e.Confidence >= 0.6:
		return "high"
	case e.Confidence >= 0.4:
		return "medium"
	case e.Confidence >= 0.2:
		return "low"
	default:
		return "very_low"
	}
}

// MapsURL links the event location, or returns "" when unlocated.
func (e FallEvent) MapsURL() string {
	if e.Location == nil {
		return ""
	}
	return "https://www.google.com/maps?q=" +
		strconv.FormatFloat(e.Location.Latitude, 'f', -1, 64) + "," +
		strconv.FormatFloat(e.Location.Longitude, 'f', -1, 64)
}

// #endregion fall-event

// #region stored-event
// StoredEvent is a persisted FallEvent plus its downstream delivery status.
type StoredEvent struct {
	FallEvent
	Delivered     bool
	DeliveredAt   time.Time
	DeliveryError string
	CreatedAt     time.Time
}

// #endregion stored-event
