package web

import (
	"database/sql"
	"fmt"

	"github.com/lucasnoah/ordpilot/internal/db"
)

// recentActivity returns the most recent run events across all runs.
func (s *Server) recentActivity(limit int) ([]db.RunEvent, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.Conn().Query(
		`SELECT id, run_id, event, attempt, detail, timestamp
		 FROM run_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	defer rows.Close()

	var events []db.RunEvent
	for rows.Next() {
		var e db.RunEvent
		var attempt sql.NullInt64
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &attempt, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if attempt.Valid {
			e.Attempt = int(attempt.Int64)
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
