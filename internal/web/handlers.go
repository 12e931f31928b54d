package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/lucasnoah/ordpilot/internal/analytics"
	"github.com/lucasnoah/ordpilot/internal/db"
	"github.com/lucasnoah/ordpilot/internal/intent"
	"github.com/lucasnoah/ordpilot/internal/pipeline"
)

// ---- view models ----

type DashboardData struct {
	Runs           []RunRow
	RecentActivity []ActivityRow
	Overview       *analytics.RunOverview
}

type RunRow struct {
	ID         string
	ShortID    string
	Query      string
	Status     string
	Attempts   int
	FixRounds  int
	UpdatedAgo string
	IsActive   bool
}

type ActivityRow struct {
	RunID   string
	ShortID string
	Event   string
	Detail  string
	TimeAgo string
}

type RunDetailData struct {
	State             *pipeline.RunState
	Attempts          []AttemptView
	Events            []db.RunEvent
	Final             *pipeline.FinalResult
	HasSVG            bool
	IsActive          bool
	ShouldAutoRefresh bool
	UpdatedAgo        string
}

// AttemptView wraps an attempt with pre-rendered edit descriptions for its
// fix rounds.
type AttemptView struct {
	pipeline.Attempt
	FixViews []FixRoundView
}

type FixRoundView struct {
	pipeline.FixRound
	EditDescs []string
}

// ---- helpers ----

func relTime(ts string) string {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}
	var t time.Time
	for _, f := range formats {
		if parsed, err := time.Parse(f, ts); err == nil {
			t = parsed
			break
		}
	}
	if t.IsZero() {
		return ts
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// activeStatus reports whether a run is still being driven.
func activeStatus(status string) bool {
	switch status {
	case "generating", "validating", "circuit_retry", "spacing_fix":
		return true
	}
	return false
}

func totalFixRounds(rs *pipeline.RunState) int {
	n := 0
	for _, a := range rs.Attempts {
		n += len(a.FixRounds)
	}
	return n
}

// ---- Dashboard ----

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.List("")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].UpdatedAt > runs[j].UpdatedAt
	})

	rows := make([]RunRow, 0, len(runs))
	for _, rs := range runs {
		rows = append(rows, RunRow{
			ID:         rs.ID,
			ShortID:    shortID(rs.ID),
			Query:      rs.Query,
			Status:     rs.Status,
			Attempts:   len(rs.Attempts),
			FixRounds:  totalFixRounds(&rs),
			UpdatedAgo: relTime(rs.UpdatedAt),
			IsActive:   activeStatus(rs.Status),
		})
	}

	var activityRows []ActivityRow
	if activity, err := s.recentActivity(20); err == nil {
		for _, e := range activity {
			activityRows = append(activityRows, ActivityRow{
				RunID:   e.RunID,
				ShortID: shortID(e.RunID),
				Event:   e.Event,
				Detail:  e.Detail,
				TimeAgo: relTime(e.Timestamp),
			})
		}
	}

	var overview *analytics.RunOverview
	if s.db != nil {
		overview, _ = analytics.QueryRunOverview(s.db, "")
	}

	data := DashboardData{Runs: rows, RecentActivity: activityRows, Overview: overview}
	if err := s.dashboardTmpl.ExecuteTemplate(w, "base", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ---- Run detail ----

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request, id string) {
	rs, err := s.store.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	var events []db.RunEvent
	if s.db != nil {
		events, _ = s.db.GetRunEvents(id, 0)
	}

	attempts := make([]AttemptView, 0, len(rs.Attempts))
	for _, a := range rs.Attempts {
		av := AttemptView{Attempt: a}
		for _, fr := range a.FixRounds {
			fv := FixRoundView{FixRound: fr}
			for _, e := range fr.Edits {
				desc := fmt.Sprintf("%s %s", e.Kind, e.Element)
				switch e.Kind {
				case "position":
					desc = fmt.Sprintf("move %s to (%d, %d)", e.Element, e.X, e.Y)
				case "align":
					desc = fmt.Sprintf("align %s to %s", e.Element, e.Align)
				case "route":
					desc = fmt.Sprintf("disable auto-routing for %s", e.Element)
				}
				if e.Reason != "" {
					desc += " (" + e.Reason + ")"
				}
				fv.EditDescs = append(fv.EditDescs, desc)
			}
			av.FixViews = append(av.FixViews, fv)
		}
		attempts = append(attempts, av)
	}

	isActive := activeStatus(rs.Status)
	data := RunDetailData{
		State:             rs,
		Attempts:          attempts,
		Events:            events,
		Final:             rs.Final,
		HasSVG:            rs.Final != nil && rs.Final.SVG != "",
		IsActive:          isActive,
		ShouldAutoRefresh: isActive && s.db == nil,
		UpdatedAgo:        relTime(rs.UpdatedAt),
	}

	if err := s.runTmpl.ExecuteTemplate(w, "base", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ---- SVG ----

func (s *Server) handleRunSVG(w http.ResponseWriter, r *http.Request, id string) {
	rs, err := s.store.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	svg := latestSVG(rs)
	if svg == "" {
		http.Error(w, "no rendered schematic", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	fmt.Fprint(w, svg)
}

// latestSVG returns the final schematic, or the most recent rendered one
// when the run has not passed.
func latestSVG(rs *pipeline.RunState) string {
	if rs.Final != nil && rs.Final.SVG != "" {
		return rs.Final.SVG
	}
	for i := len(rs.Attempts) - 1; i >= 0; i-- {
		a := rs.Attempts[i]
		for j := len(a.FixRounds) - 1; j >= 0; j-- {
			if rep := a.FixRounds[j].Report; rep != nil && rep.SVG != "" {
				return rep.SVG
			}
		}
		if a.Report != nil && a.Report.SVG != "" {
			return a.Report.SVG
		}
	}
	return ""
}

// ---- API ----

type startRunRequest struct {
	Query string `json:"query"`
}

type startRunResponse struct {
	RunID  string `json:"run_id,omitempty"`
	Intent string `json:"intent,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleAPIRuns starts a generation run for a request body {"query": ...}.
// Question-class messages are rejected; the pipeline only accepts requests
// that ask for a circuit.
func (s *Server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.loop == nil {
		http.Error(w, "generation not configured", http.StatusServiceUnavailable)
		return
	}

	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, startRunResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, startRunResponse{Error: "empty query"})
		return
	}

	if res := intent.Classify(req.Query); res.Intent == intent.Question {
		writeJSON(w, http.StatusUnprocessableEntity, startRunResponse{
			Intent: string(res.Intent),
			Error:  "request looks like a question, not a generation request: " + strings.Join(res.Reasons, "; "),
		})
		return
	}

	rs, err := s.loop.Create(req.Query)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, startRunResponse{Error: err.Error()})
		return
	}

	// The run outlives this request; progress is visible on the run page
	// and its event stream.
	go func(id string) {
		_, _ = s.loop.Execute(context.Background(), id)
	}(rs.ID)

	writeJSON(w, http.StatusAccepted, startRunResponse{RunID: rs.ID})
}

func (s *Server) handleAPIReport(w http.ResponseWriter, r *http.Request, id string) {
	rs, err := s.store.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	rep := rs.LastReport()
	if rep == nil {
		http.Error(w, "no report yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
