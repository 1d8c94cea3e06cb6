package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-decision
// LogDecision writes a decision entry to the decision_log table.
func LogDecision(db *sql.DB, entry DecisionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO decision_log (run_id, action, from_phase, to_phase, mode, confidence, event_id, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Action,
		nullIfEmpty(entry.FromPhase),
		nullIfEmpty(entry.ToPhase),
		entry.Mode,
		entry.Confidence,
		nullIfEmpty(entry.EventID),
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region list-decisions
// ListDecisions returns the entries of one run in insertion order. An empty
// runID lists the most recent entries across all runs.
func ListDecisions(db *sql.DB, runID string, limit int) ([]DecisionEntry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	const cols = `run_id, action, from_phase, to_phase, mode, confidence, event_id, reason, created_at`
	if runID != "" {
		rows, err = db.Query(`SELECT `+cols+` FROM decision_log WHERE run_id = ? ORDER BY id LIMIT ?`, runID, limit)
	} else {
		rows, err = db.Query(`SELECT `+cols+` FROM (SELECT * FROM decision_log ORDER BY id DESC LIMIT ?) ORDER BY id`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionEntry
	for rows.Next() {
		var (
			e                         DecisionEntry
			from, to, eventID, reason sql.NullString
			created                   string
		)
		if err := rows.Scan(&e.RunID, &e.Action, &from, &to, &e.Mode, &e.Confidence, &eventID, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		e.FromPhase = from.String
		e.ToPhase = to.String
		e.EventID = eventID.String
		e.Reason = reason.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-decisions

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
