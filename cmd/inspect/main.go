package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/logging"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to falldetect.db")
	last := flag.Int("last", 20, "show N most recent events or decisions")
	eventID := flag.String("event", "", "show single event detail")
	decisions := flag.Bool("decisions", false, "list the decision log instead of events")
	runID := flag.String("run", "", "filter the decision log to one run")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/falldetect.db [--last N] [--event id] [--decisions [--run id]] [--json]")
		os.Exit(2)
	}

	store, err := state.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *eventID != "":
		err = runDetailMode(store, *eventID, *jsonOut)
	case *decisions:
		err = runDecisionMode(store, *runID, *last, *jsonOut)
	default:
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type eventRow struct {
	EventID    string  `json:"event_id"`
	OccurredAt string  `json:"occurred_at"`
	Confidence float64 `json:"confidence"`
	Level      string  `json:"confidence_level"`
	MaxImpact  float64 `json:"max_impact"`
	Rotation   bool    `json:"had_rotation"`
	Mode       string  `json:"mode"`
	Origin     string  `json:"origin"`
	Delivered  bool    `json:"delivered"`
	Error      string  `json:"delivery_error,omitempty"`
}

func toRow(ev state.StoredEvent) eventRow {
	return eventRow{
		EventID:    ev.ID,
		OccurredAt: ev.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		Confidence: ev.Confidence,
		Level:      ev.ConfidenceLevel(),
		MaxImpact:  ev.MaxImpact,
		Rotation:   ev.HadRotation,
		Mode:       string(ev.Mode),
		Origin:     string(ev.Origin),
		Delivered:  ev.Delivered,
		Error:      ev.DeliveryError,
	}
}

func runListMode(store *state.Store, last int, jsonOut bool) error {
	events, err := store.ListEvents(last)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stderr, "no events found")
		return nil
	}

	// Store returns newest first, reverse for chronological
	rows := make([]eventRow, len(events))
	for i, ev := range events {
		rows[len(events)-1-i] = toRow(ev)
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-10s  %-24s  %6s  %-9s  %7s  %-8s  %-12s  %-8s  %s\n",
		"Event", "Occurred", "Conf", "Level", "Impact", "Rotation", "Mode", "Origin", "Delivered")
	fmt.Printf("%-10s+-%-24s+-%6s+-%-9s+-%7s+-%-8s+-%-12s+-%-8s+-%s\n",
		"----------", "------------------------", "------", "---------", "-------", "--------",
		"------------", "--------", "---------")
	for _, r := range rows {
		delivered := "yes"
		if !r.Delivered {
			delivered = "no"
			if r.Error != "" {
				delivered = "failed"
			}
		}
		fmt.Printf("%-10s  %-24s  %6.3f  %-9s  %6.2fg  %-8v  %-12s  %-8s  %s\n",
			shortID(r.EventID), r.OccurredAt, r.Confidence, r.Level, r.MaxImpact, r.Rotation,
			r.Mode, r.Origin, delivered)
	}

	total, err := store.CountEvents()
	if err != nil {
		return err
	}
	fmt.Printf("\n%d of %d events shown\n", len(rows), total)
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	eventRow
	AttitudeChange float64  `json:"max_attitude_change"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	MapsURL        string   `json:"maps_url,omitempty"`
	DeliveredAt    string   `json:"delivered_at,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

func runDetailMode(store *state.Store, id string, jsonOut bool) error {
	ev, err := store.GetEvent(id)
	if err != nil {
		return err
	}

	out := detailOutput{
		eventRow:       toRow(ev),
		AttitudeChange: ev.MaxAttitudeChange,
		MapsURL:        ev.MapsURL(),
		CreatedAt:      ev.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if ev.Location != nil {
		out.Latitude = &ev.Location.Latitude
		out.Longitude = &ev.Location.Longitude
	}
	if !ev.DeliveredAt.IsZero() {
		out.DeliveredAt = ev.DeliveredAt.UTC().Format("2006-01-02T15:04:05Z")
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Event:      %s\n", out.EventID)
	fmt.Printf("Occurred:   %s\n", out.OccurredAt)
	fmt.Printf("Confidence: %.3f (%s)\n", out.Confidence, out.Level)
	fmt.Printf("Max Impact: %.2fg\n", out.MaxImpact)
	fmt.Printf("Rotation:   %v\n", out.Rotation)
	fmt.Printf("Attitude:   %.3f rad\n", out.AttitudeChange)
	fmt.Printf("Mode:       %s\n", out.Mode)
	fmt.Printf("Origin:     %s\n", out.Origin)
	if out.MapsURL != "" {
		fmt.Printf("Location:   %.6f, %.6f\n", *out.Latitude, *out.Longitude)
		fmt.Printf("Map:        %s\n", out.MapsURL)
	}

	fmt.Printf("\nDelivery:\n")
	fmt.Printf("  Delivered:  %v\n", out.Delivered)
	if out.DeliveredAt != "" {
		fmt.Printf("  At:         %s\n", out.DeliveredAt)
	}
	if out.Error != "" {
		fmt.Printf("  Error:      %s\n", out.Error)
	}
	fmt.Printf("  Stored:     %s\n", out.CreatedAt)
	return nil
}

// #endregion detail-mode

// #region decision-mode

type decisionRow struct {
	RunID      string  `json:"run_id"`
	Action     string  `json:"action"`
	From       string  `json:"from_phase,omitempty"`
	To         string  `json:"to_phase,omitempty"`
	Mode       string  `json:"mode"`
	Confidence float64 `json:"confidence"`
	EventID    string  `json:"event_id,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

func runDecisionMode(store *state.Store, runID string, last int, jsonOut bool) error {
	entries, err := logging.ListDecisions(store.DB(), runID, last)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no decisions found")
		return nil
	}

	rows := make([]decisionRow, len(entries))
	for i, e := range entries {
		rows[i] = decisionRow{
			RunID:      e.RunID,
			Action:     e.Action,
			From:       e.FromPhase,
			To:         e.ToPhase,
			Mode:       e.Mode,
			Confidence: e.Confidence,
			EventID:    e.EventID,
			Reason:     e.Reason,
			CreatedAt:  e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		}
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-10s  %-12s  %-11s  %-11s  %-12s  %6s  %-10s  %s\n",
		"Run", "Action", "From", "To", "Mode", "Conf", "Event", "Reason")
	fmt.Printf("%-10s+-%-12s+-%-11s+-%-11s+-%-12s+-%6s+-%-10s+-%s\n",
		"----------", "------------", "-----------", "-----------", "------------", "------",
		"----------", "--------------------")
	for _, r := range rows {
		event := "-"
		if r.EventID != "" {
			event = shortID(r.EventID)
		}
		fmt.Printf("%-10s  %-12s  %-11s  %-11s  %-12s  %6.3f  %-10s  %s\n",
			shortID(r.RunID), r.Action, r.From, r.To, r.Mode, r.Confidence, event, r.Reason)
	}
	return nil
}

// #endregion decision-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
