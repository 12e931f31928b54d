// Package analytics computes aggregate metrics over the run event log:
// outcome totals, failure counts, attempt distribution, stage timings, and
// per-run timelines.
package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"

	"github.com/lucasnoah/ordpilot/internal/stage"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
}

// RunOverview summarizes run outcomes.
type RunOverview struct {
	Total     int     `json:"total"`
	Pass      int     `json:"pass"`
	Exhausted int     `json:"exhausted"`
	Failed    int     `json:"failed"`
	Active    int     `json:"active"`
	PassRate  float64 `json:"pass_rate_pct"`
}

// QueryRunOverview returns run counts by outcome. PassRate is the share of
// finished runs that passed; in-flight runs count as Active.
func QueryRunOverview(database DB, since string) (*RunOverview, error) {
	query := `SELECT status, COUNT(*) FROM runs`
	args := []interface{}{}
	if since != "" {
		query += ` WHERE created_at >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY status`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run overview: %w", err)
	}
	defer rows.Close()

	ov := &RunOverview{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan run overview: %w", err)
		}
		ov.Total += count
		switch status {
		case "pass":
			ov.Pass += count
		case "exhausted":
			ov.Exhausted += count
		case "failed":
			ov.Failed += count
		default:
			ov.Active += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	finished := ov.Pass + ov.Exhausted + ov.Failed
	ov.PassRate = pct(ov.Pass, finished)
	return ov, nil
}

// FailureCount pairs a failure key (stage name or failure code) with how
// often it appeared in failed stage results.
type FailureCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// QueryFailuresByStage counts failed stage results grouped by stage, most
// frequent first.
func QueryFailuresByStage(database DB, since string) ([]FailureCount, error) {
	query := `
		SELECT stage, COUNT(*) as cnt
		FROM stage_results
		WHERE ok = 0`

	args := []interface{}{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY stage ORDER BY cnt DESC, stage ASC`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failures by stage: %w", err)
	}
	defer rows.Close()

	return scanFailureCounts(rows)
}

// QueryFailuresByCode counts failed stage results grouped by failure code,
// most frequent first.
func QueryFailuresByCode(database DB, since string) ([]FailureCount, error) {
	query := `
		SELECT code, COUNT(*) as cnt
		FROM stage_results
		WHERE ok = 0 AND code IS NOT NULL AND code != ''`

	args := []interface{}{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY code ORDER BY cnt DESC, code ASC`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failures by code: %w", err)
	}
	defer rows.Close()

	return scanFailureCounts(rows)
}

func scanFailureCounts(rows *sql.Rows) ([]FailureCount, error) {
	var results []FailureCount
	for rows.Next() {
		var fc FailureCount
		if err := rows.Scan(&fc.Key, &fc.Count); err != nil {
			return nil, fmt.Errorf("scan failure count: %w", err)
		}
		results = append(results, fc)
	}
	return results, rows.Err()
}

// AttemptDist is one bucket of the attempts-per-finished-run distribution.
type AttemptDist struct {
	Attempts int     `json:"attempts"`
	Runs     int     `json:"runs"`
	Share    float64 `json:"share_pct"`
}

// QueryAttemptDistribution returns how many generation attempts finished
// runs needed, as counts and shares per attempt bucket.
func QueryAttemptDistribution(database DB, since string) ([]AttemptDist, error) {
	query := `
		SELECT attempts, COUNT(*) as cnt
		FROM runs
		WHERE status IN ('pass', 'exhausted', 'failed')`

	args := []interface{}{}
	if since != "" {
		query += ` AND created_at >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY attempts ORDER BY attempts`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempt distribution: %w", err)
	}
	defer rows.Close()

	var results []AttemptDist
	total := 0
	for rows.Next() {
		var ad AttemptDist
		if err := rows.Scan(&ad.Attempts, &ad.Runs); err != nil {
			return nil, fmt.Errorf("scan attempt distribution: %w", err)
		}
		total += ad.Runs
		results = append(results, ad)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		results[i].Share = pct(results[i].Runs, total)
	}
	return results, nil
}

// StageDuration holds duration stats for one validation stage.
type StageDuration struct {
	Stage string  `json:"stage"`
	Count int     `json:"count"`
	Avg   float64 `json:"avg_ms"`
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
}

// QueryStageDurations returns average and percentile durations per stage
// from recorded stage results, in pipeline order.
func QueryStageDurations(database DB, since string) ([]StageDuration, error) {
	query := `
		SELECT stage, duration_ms
		FROM stage_results
		WHERE duration_ms IS NOT NULL`

	args := []interface{}{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stage durations: %w", err)
	}
	defer rows.Close()

	durations := make(map[string][]float64)
	for rows.Next() {
		var name string
		var ms float64
		if err := rows.Scan(&name, &ms); err != nil {
			return nil, fmt.Errorf("scan stage duration: %w", err)
		}
		durations[name] = append(durations[name], ms)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []StageDuration
	for name, values := range durations {
		sort.Float64s(values)
		results = append(results, StageDuration{
			Stage: name,
			Count: len(values),
			Avg:   avg(values),
			P50:   percentile(values, 50),
			P95:   percentile(values, 95),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		ri, rj := stageRank(results[i].Stage), stageRank(results[j].Stage)
		if ri != rj {
			return ri < rj
		}
		return results[i].Stage < results[j].Stage
	})
	return results, nil
}

// stageRank orders stage names by pipeline position, unknown names last.
func stageRank(name string) int {
	if i := stage.Index(stage.Stage(name)); i >= 0 {
		return i
	}
	return len(stage.Order())
}

// TimelineEvent is one row in a run's merged history.
type TimelineEvent struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Event     string `json:"event"`
	Attempt   int    `json:"attempt,omitempty"`
	FixRound  int    `json:"fix_round,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// QueryRunTimeline merges a run's events and stage results into one
// timestamp-ordered timeline.
func QueryRunTimeline(database DB, runID string) ([]TimelineEvent, error) {
	var results []TimelineEvent

	evRows, err := database.Conn().Query(
		`SELECT timestamp, event, attempt, detail
		 FROM run_events WHERE run_id = ? ORDER BY timestamp, id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer evRows.Close()

	for evRows.Next() {
		var e TimelineEvent
		var attempt sql.NullInt64
		var detail sql.NullString
		if err := evRows.Scan(&e.Timestamp, &e.Event, &attempt, &detail); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		e.Type = "event"
		if attempt.Valid {
			e.Attempt = int(attempt.Int64)
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		results = append(results, e)
	}
	if err := evRows.Err(); err != nil {
		return nil, err
	}

	srRows, err := database.Conn().Query(
		`SELECT timestamp, stage, attempt, fix_round, ok, code, message, duration_ms
		 FROM stage_results WHERE run_id = ? ORDER BY timestamp, id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stage results: %w", err)
	}
	defer srRows.Close()

	for srRows.Next() {
		var ts, stageName string
		var attempt, fixRound int
		var ok bool
		var code, message sql.NullString
		var durationMS sql.NullInt64
		if err := srRows.Scan(&ts, &stageName, &attempt, &fixRound, &ok, &code, &message, &durationMS); err != nil {
			return nil, fmt.Errorf("scan stage result: %w", err)
		}

		detail := "ok"
		if !ok {
			detail = code.String
			if message.Valid && message.String != "" {
				detail += ": " + message.String
			}
		}
		if durationMS.Valid {
			detail += fmt.Sprintf(" (%dms)", durationMS.Int64)
		}

		results = append(results, TimelineEvent{
			Timestamp: ts,
			Type:      "stage",
			Event:     stageName,
			Attempt:   attempt,
			FixRound:  fixRound,
			Detail:    detail,
		})
	}
	if err := srRows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp < results[j].Timestamp
	})
	return results, nil
}

// --- helpers ---

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
