package analytics

import (
	"database/sql"
	"testing"

	"github.com/lucasnoah/ordpilot/internal/db"
)

func testDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func exec(t *testing.T, conn *sql.DB, query string, args ...interface{}) {
	t.Helper()
	if _, err := conn.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// --- QueryRunOverview ---

func TestQueryRunOverview(t *testing.T) {
	d := testDB(t)
	c := d.Conn()

	exec(t, c, `INSERT INTO runs (id, query, status, attempts) VALUES ('r1', 'nand', 'pass', 1)`)
	exec(t, c, `INSERT INTO runs (id, query, status, attempts) VALUES ('r2', 'nor', 'pass', 2)`)
	exec(t, c, `INSERT INTO runs (id, query, status, attempts) VALUES ('r3', 'xor', 'exhausted', 4)`)
	exec(t, c, `INSERT INTO runs (id, query, status, attempts) VALUES ('r4', 'mux', 'failed', 1)`)
	exec(t, c, `INSERT INTO runs (id, query, status, attempts) VALUES ('r5', 'latch', 'validating', 1)`)

	ov, err := QueryRunOverview(d, "")
	if err != nil {
		t.Fatalf("QueryRunOverview: %v", err)
	}

	if ov.Total != 5 {
		t.Errorf("Total = %d, want 5", ov.Total)
	}
	if ov.Pass != 2 {
		t.Errorf("Pass = %d, want 2", ov.Pass)
	}
	if ov.Exhausted != 1 {
		t.Errorf("Exhausted = %d, want 1", ov.Exhausted)
	}
	if ov.Failed != 1 {
		t.Errorf("Failed = %d, want 1", ov.Failed)
	}
	if ov.Active != 1 {
		t.Errorf("Active = %d, want 1", ov.Active)
	}
	// 2 of 4 finished runs passed.
	if ov.PassRate != 50.0 {
		t.Errorf("PassRate = %f, want 50.0", ov.PassRate)
	}
}

func TestQueryRunOverview_Since(t *testing.T) {
	d := testDB(t)
	c := d.Conn()

	exec(t, c, `INSERT INTO runs (id, query, status, created_at) VALUES ('old', 'a', 'pass', '2024-01-01 00:00:00')`)
	exec(t, c, `INSERT INTO runs (id, query, status, created_at) VALUES ('new', 'b', 'exhausted', '2026-08-01 00:00:00')`)

	ov, err := QueryRunOverview(d, "2026-01-01")
	if err != nil {
		t.Fatalf("QueryRunOverview: %v", err)
	}
	if ov.Total != 1 {
		t.Errorf("Total = %d, want 1 (since filter)", ov.Total)
	}
	if ov.Exhausted != 1 {
		t.Errorf("Exhausted = %d, want 1", ov.Exhausted)
	}
}

func TestQueryRunOverview_Empty(t *testing.T) {
	d := testDB(t)
	ov, err := QueryRunOverview(d, "")
	if err != nil {
		t.Fatalf("QueryRunOverview: %v", err)
	}
	if ov.Total != 0 || ov.PassRate != 0 {
		t.Errorf("empty overview = %+v, want zeros", ov)
	}
}

// --- failure counts ---

func seedStageResult(t *testing.T, c *sql.DB, runID, stageName string, ok bool, code string, durationMS int) {
	t.Helper()
	exec(t, c,
		`INSERT INTO stage_results (run_id, attempt, fix_round, stage, ok, code, duration_ms)
		 VALUES (?, 1, 0, ?, ?, ?, ?)`,
		runID, stageName, ok, code, durationMS)
}

func TestQueryFailuresByStage(t *testing.T) {
	d := testDB(t)
	c := d.Conn()

	seedStageResult(t, c, "r1", "parse", true, "", 5)
	seedStageResult(t, c, "r1", "compile", false, "ERR_COMPILE_FAILURE", 30)
	seedStageResult(t, c, "r2", "compile", false, "ERR_COMPILE_FAILURE", 25)
	seedStageResult(t, c, "r3", "spacing", false, "ERR_SPACING_VIOLATION", 12)

	results, err := QueryFailuresByStage(d, "")
	if err != nil {
		t.Fatalf("QueryFailuresByStage: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 failing stages, got %d", len(results))
	}
	if results[0].Key != "compile" || results[0].Count != 2 {
		t.Errorf("top failure = %+v, want compile x2", results[0])
	}
	if results[1].Key != "spacing" || results[1].Count != 1 {
		t.Errorf("second failure = %+v, want spacing x1", results[1])
	}
}

func TestQueryFailuresByCode(t *testing.T) {
	d := testDB(t)
	c := d.Conn()

	seedStageResult(t, c, "r1", "execute", false, "ERR_WORKER_TIMEOUT", 5000)
	seedStageResult(t, c, "r2", "execute", false, "ERR_WORKER_TIMEOUT", 5000)
	seedStageResult(t, c, "r3", "spacing", false, "ERR_SPACING_VIOLATION", 10)
	// ok rows and empty codes are excluded
	seedStageResult(t, c, "r4", "parse", true, "", 2)

	results, err := QueryFailuresByCode(d, "")
	if err != nil {
		t.Fatalf("QueryFailuresByCode: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 codes, got %d", len(results))
	}
	if results[0].Key != "ERR_WORKER_TIMEOUT" || results[0].Count != 2 {
		t.Errorf("top code = %+v, want ERR_WORKER_TIMEOUT x2", results[0])
	}
}

// --- QueryAttemptDistribution ---

func TestQueryAttemptDistribution(t *testing.T) {
	d := testDB(t)
	c := d.Conn()

	exec(t, c, `INSERT INTO runs (id, query, status, attempts) VALUES ('r1', 'a', 'pass', 1)`)
	exec(t, c, `INSERT INTO runs (id, query, status, attempts) VALUES ('r2', 'b', 'pass', 1)`)
	exec(t, c, `INSERT INTO runs (id, query, status, attempts) VALUES ('r3', 'c', 'pass', 3)`)
	exec(t, c, `INSERT INTO runs (id, query, status, attempts) VALUES ('r4', 'd', 'validating', 2)`) // in-flight, excluded

	results, err := QueryAttemptDistribution(d, "")
	if err != nil {
		t.Fatalf("QueryAttemptDistribution: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(results))
	}
	if results[0].Attempts != 1 || results[0].Runs != 2 {
		t.Errorf("bucket[0] = %+v, want attempts=1 runs=2", results[0])
	}
	if results[0].Share != 66.7 {
		t.Errorf("bucket[0] share = %f, want 66.7", results[0].Share)
	}
	if results[1].Attempts != 3 || results[1].Runs != 1 {
		t.Errorf("bucket[1] = %+v, want attempts=3 runs=1", results[1])
	}
}

// --- QueryStageDurations ---

func TestQueryStageDurations(t *testing.T) {
	d := testDB(t)
	c := d.Conn()

	seedStageResult(t, c, "r1", "render", true, "", 100)
	seedStageResult(t, c, "r2", "render", true, "", 200)
	seedStageResult(t, c, "r1", "parse", true, "", 10)

	results, err := QueryStageDurations(d, "")
	if err != nil {
		t.Fatalf("QueryStageDurations: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(results))
	}

	// Pipeline order: parse before render.
	if results[0].Stage != "parse" {
		t.Errorf("stage[0] = %q, want parse", results[0].Stage)
	}
	render := results[1]
	if render.Stage != "render" {
		t.Fatalf("stage[1] = %q, want render", render.Stage)
	}
	if render.Count != 2 {
		t.Errorf("render count = %d, want 2", render.Count)
	}
	if render.Avg != 150.0 {
		t.Errorf("render avg = %f, want 150.0", render.Avg)
	}
	if render.P50 != 150.0 {
		t.Errorf("render p50 = %f, want 150.0", render.P50)
	}
}

func TestPercentile(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}
	if got := percentile(sorted, 50); got != 25.0 {
		t.Errorf("p50 = %f, want 25.0", got)
	}
	if got := percentile(sorted, 95); got != 38.5 {
		t.Errorf("p95 = %f, want 38.5", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("empty percentile = %f, want 0", got)
	}
}

// --- QueryRunTimeline ---

func TestQueryRunTimeline_MergesEventsAndStages(t *testing.T) {
	d := testDB(t)
	c := d.Conn()

	exec(t, c, `INSERT INTO run_events (run_id, event, attempt, detail, timestamp)
	            VALUES ('r1', 'generating', 1, '', '2026-08-01 10:00:00')`)
	exec(t, c, `INSERT INTO stage_results (run_id, attempt, fix_round, stage, ok, code, message, duration_ms, timestamp)
	            VALUES ('r1', 1, 0, 'parse', 1, NULL, NULL, 8, '2026-08-01 10:00:05')`)
	exec(t, c, `INSERT INTO stage_results (run_id, attempt, fix_round, stage, ok, code, message, duration_ms, timestamp)
	            VALUES ('r1', 1, 0, 'compile', 0, 'ERR_COMPILE_FAILURE', 'NameError', 40, '2026-08-01 10:00:06')`)
	exec(t, c, `INSERT INTO run_events (run_id, event, attempt, detail, timestamp)
	            VALUES ('r1', 'circuit_retry', 2, 'ERR_COMPILE_FAILURE', '2026-08-01 10:00:07')`)
	// another run's history must not leak in
	exec(t, c, `INSERT INTO run_events (run_id, event, attempt, timestamp)
	            VALUES ('r2', 'generating', 1, '2026-08-01 10:00:01')`)

	timeline, err := QueryRunTimeline(d, "r1")
	if err != nil {
		t.Fatalf("QueryRunTimeline: %v", err)
	}
	if len(timeline) != 4 {
		t.Fatalf("expected 4 timeline entries, got %d", len(timeline))
	}

	if timeline[0].Type != "event" || timeline[0].Event != "generating" {
		t.Errorf("timeline[0] = %+v, want generating event", timeline[0])
	}
	if timeline[1].Type != "stage" || timeline[1].Event != "parse" {
		t.Errorf("timeline[1] = %+v, want parse stage", timeline[1])
	}
	if timeline[2].Event != "compile" {
		t.Errorf("timeline[2] = %+v, want compile stage", timeline[2])
	}
	if timeline[2].Detail != "ERR_COMPILE_FAILURE: NameError (40ms)" {
		t.Errorf("compile detail = %q", timeline[2].Detail)
	}
	if timeline[3].Event != "circuit_retry" {
		t.Errorf("timeline[3] = %+v, want circuit_retry event", timeline[3])
	}
}

func TestQueryRunTimeline_Empty(t *testing.T) {
	d := testDB(t)
	timeline, err := QueryRunTimeline(d, "missing")
	if err != nil {
		t.Fatalf("QueryRunTimeline: %v", err)
	}
	if len(timeline) != 0 {
		t.Errorf("expected empty timeline, got %d entries", len(timeline))
	}
}
