package motion

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrNonFinite is returned for samples carrying NaN or infinite components.
var ErrNonFinite = errors.New("non-finite sample value")

// #region vec3
// Vec3 is a three-axis reading.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude returns the Euclidean norm.
func (v Vec3) Magnitude() float64 {
	return r3.Norm(r3.Vec{X: v.X, Y: v.Y, Z: v.Z})
}

func (v Vec3) finite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// #endregion vec3

// #region attitude
// Attitude is a device orientation in radians.
type Attitude struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
}

func (a Attitude) finite() bool {
	return isFinite(a.Pitch) && isFinite(a.Roll) && isFinite(a.Yaw)
}

// #endregion attitude

// #region location
// Location is an optional position attached to emitted events.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// #endregion location

// #region sample
// Sample is one timestamped IMU reading: acceleration in g, angular velocity
// in rad/s and, when the source provides it, device attitude.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Accel     Vec3      `json:"accel"`
	Gyro      Vec3      `json:"gyro"`
	Attitude  *Attitude `json:"attitude,omitempty"`
}

// Validate rejects samples that would poison threshold or confidence math.
func (s Sample) Validate() error {
	if !s.Accel.finite() {
		return fmt.Errorf("accel %+v: %w", s.Accel, ErrNonFinite)
	}
	if !s.Gyro.finite() {
		return fmt.Errorf("gyro %+v: %w", s.Gyro, ErrNonFinite)
	}
	if s.Attitude != nil && !s.Attitude.finite() {
		return fmt.Errorf("attitude %+v: %w", *s.Attitude, ErrNonFinite)
	}
	return nil
}

// #endregion sample

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
