package pipeline

import (
	"github.com/lucasnoah/ordpilot/internal/geom"
	"github.com/lucasnoah/ordpilot/internal/ord"
	"github.com/lucasnoah/ordpilot/internal/stage"
)

// Statuses written by the store itself. The orchestrator writes its own
// machine states ("generating", "validating", "circuit_retry", "spacing_fix",
// "pass", "exhausted") into the same field as a run progresses.
const (
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// RunState is the top-level persisted state for a single generation run.
type RunState struct {
	ID        string       `json:"id"`
	Query     string       `json:"query"`
	Status    string       `json:"status"` // "pending", "generating", "validating", "circuit_retry", "spacing_fix", "pass", "exhausted", "failed"
	Attempts  []Attempt    `json:"attempts"`
	Final     *FinalResult `json:"final,omitempty"`
	Error     string       `json:"error,omitempty"` // infrastructure failure that aborted the run
	CreatedAt string       `json:"created_at"`
	UpdatedAt string       `json:"updated_at"`
}

// Attempt records one generation attempt: the candidate produced, the
// validation report it earned, and any layout-fix rounds spent on it.
type Attempt struct {
	N             int           `json:"n"`
	Temperature   float64       `json:"temperature"`
	Candidate     string        `json:"candidate,omitempty"`
	GenerateError string        `json:"generate_error,omitempty"`
	Report        *stage.Report `json:"report,omitempty"`
	FixRounds     []FixRound    `json:"fix_rounds,omitempty"`
}

// FixRound records one deterministic layout-fix round within an attempt.
type FixRound struct {
	N      int           `json:"n"`
	Edits  []ord.Edit    `json:"edits"`
	Source string        `json:"source,omitempty"`
	Report *stage.Report `json:"report,omitempty"`
}

// FinalResult is the artifact set of a passed run.
type FinalResult struct {
	Code     string          `json:"code"`
	Cells    []string        `json:"cells,omitempty"`
	Geometry *geom.Schematic `json:"geometry,omitempty"`
	SVG      string          `json:"svg,omitempty"`
}

// LastReport returns the most recent validation report of the run: the
// final fix-round report of the last attempt when fixes ran, otherwise the
// attempt's own report.
func (r *RunState) LastReport() *stage.Report {
	if len(r.Attempts) == 0 {
		return nil
	}
	a := r.Attempts[len(r.Attempts)-1]
	if n := len(a.FixRounds); n > 0 && a.FixRounds[n-1].Report != nil {
		return a.FixRounds[n-1].Report
	}
	return a.Report
}
