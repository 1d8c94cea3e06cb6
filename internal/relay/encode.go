package relay

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/motion"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/state"
)

// ErrInvalidEvent is returned when a wire message cannot be decoded into an event.
var ErrInvalidEvent = errors.New("invalid fall event")

// #region encode
// EncodeEvent converts ev into its wire form. Display fields
// (confidence_level, maps_url) are included for consumers but ignored on decode.
func EncodeEvent(ev state.FallEvent) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"id":                  ev.ID,
		"timestamp":           ev.Timestamp.UTC().Format(time.RFC3339Nano),
		"confidence":          ev.Confidence,
		"confidence_level":    ev.ConfidenceLevel(),
		"max_impact":          ev.MaxImpact,
		"had_rotation":        ev.HadRotation,
		"max_attitude_change": ev.MaxAttitudeChange,
		"mode":                string(ev.Mode),
		"origin":              string(ev.Origin),
	}
	if ev.Location != nil {
		fields["location"] = map[string]interface{}{
			"latitude":  ev.Location.Latitude,
			"longitude": ev.Location.Longitude,
		}
		fields["maps_url"] = ev.MapsURL()
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	return s, nil
}

// #endregion encode

// #region decode
// DecodeEvent parses a wire message back into an event.
func DecodeEvent(s *structpb.Struct) (state.FallEvent, error) {
	if s == nil {
		return state.FallEvent{}, fmt.Errorf("%w: empty message", ErrInvalidEvent)
	}
	f := s.GetFields()

	ts, err := time.Parse(time.RFC3339Nano, f["timestamp"].GetStringValue())
	if err != nil {
		return state.FallEvent{}, fmt.Errorf("%w: timestamp: %v", ErrInvalidEvent, err)
	}
	mode, err := profile.ParseMode(f["mode"].GetStringValue())
	if err != nil {
		return state.FallEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	conf := f["confidence"].GetNumberValue()
	if conf < 0 || conf > 1 {
		return state.FallEvent{}, fmt.Errorf("%w: confidence %v out of range", ErrInvalidEvent, conf)
	}
	origin := state.Origin(f["origin"].GetStringValue())
	switch origin {
	case state.OriginDetected, state.OriginTest:
	case "":
		origin = state.OriginDetected
	default:
		return state.FallEvent{}, fmt.Errorf("%w: origin %q", ErrInvalidEvent, origin)
	}

	ev := state.FallEvent{
		ID:                f["id"].GetStringValue(),
		Timestamp:         ts,
		Confidence:        conf,
		MaxImpact:         f["max_impact"].GetNumberValue(),
		HadRotation:       f["had_rotation"].GetBoolValue(),
		MaxAttitudeChange: f["max_attitude_change"].GetNumberValue(),
		Mode:              mode,
		Origin:            origin,
	}
	if loc := f["location"].GetStructValue(); loc != nil {
		lf := loc.GetFields()
		ev.Location = &motion.Location{
			Latitude:  lf["latitude"].GetNumberValue(),
			Longitude: lf["longitude"].GetNumberValue(),
		}
	}
	return ev, nil
}

// #endregion decode
