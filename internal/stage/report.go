package stage

import "github.com/lucasnoah/ordpilot/internal/geom"

// Result records one executed stage.
type Result struct {
	Stage      Stage  `json:"stage"`
	OK         bool   `json:"ok"`
	Code       Code   `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Failure describes the first failure of a validation run. ExitCode and
// Signal are set only for worker crashes.
type Failure struct {
	Stage      Stage            `json:"stage"`
	Code       Code             `json:"code"`
	Message    string           `json:"message"`
	Violations []geom.Violation `json:"violations,omitempty"`
	ExitCode   int              `json:"exit_code,omitempty"`
	Signal     string           `json:"signal,omitempty"`
}

// Report is the full outcome of validating one candidate. Geometry and SVG
// are present whenever the render stage succeeded, including runs that then
// failed the spacing check; the layout fixer works from them.
type Report struct {
	Passed     bool            `json:"passed"`
	Stages     []Result        `json:"stages"`
	Failure    *Failure        `json:"failure,omitempty"`
	Cells      []string        `json:"cells,omitempty"`
	Geometry   *geom.Schematic `json:"geometry,omitempty"`
	SVG        string          `json:"svg,omitempty"`
	RenderOnly bool            `json:"render_only,omitempty"`
}

// Class returns the retry class of the report's failure, or ClassNone for a
// passing report.
func (r *Report) Class() Class {
	if r == nil || r.Failure == nil {
		return ClassNone
	}
	return r.Failure.Code.Class()
}

// ResultFor returns the recorded result for a stage, or nil when that stage
// did not run.
func (r *Report) ResultFor(s Stage) *Result {
	for i := range r.Stages {
		if r.Stages[i].Stage == s {
			return &r.Stages[i]
		}
	}
	return nil
}
