// Package worker isolates validation runs in subprocesses. The host side
// starts a fresh worker process per request, streams it one request frame
// on stdin, and reads stage and report frames back on stdout. Every way a
// process can die maps onto the closed set of failure codes: a deadline
// becomes ERR_WORKER_TIMEOUT, an abnormal exit becomes ERR_WORKER_CRASH,
// and a clean exit that produced no classifiable report is a protocol
// error surfaced to the caller rather than a retryable failure.
package worker

import (
	"fmt"

	"github.com/lucasnoah/ordpilot/internal/stage"
)

// OpValidate is the only operation the worker protocol carries.
const OpValidate = "validate"

// Mode selects how a validation request covers the pipeline.
type Mode string

const (
	// ModeSequence runs the full pipeline in one process.
	ModeSequence Mode = "sequence"
	// ModePerStage runs one fresh process per stage, assembling the
	// overall report on the host side.
	ModePerStage Mode = "per_stage"
	// ModeRenderOnly reports only the render and spacing stages, for
	// re-checking a layout fix.
	ModeRenderOnly Mode = "render_only"
	// ModeUntil stops the pipeline after Selector.Until.
	ModeUntil Mode = "until"
)

// Selector chooses the stages a validation request covers.
type Selector struct {
	Mode  Mode        `json:"mode"`
	Until stage.Stage `json:"until,omitempty"`
}

// options maps a selector onto engine options. ModePerStage never reaches
// a worker process; the host decomposes it into ModeUntil requests.
func (s Selector) options() (stage.Options, error) {
	switch s.Mode {
	case "", ModeSequence:
		return stage.Options{}, nil
	case ModeRenderOnly:
		return stage.Options{RenderOnly: true}, nil
	case ModeUntil:
		if !stage.Valid(s.Until) {
			return stage.Options{}, fmt.Errorf("unknown stage %q", s.Until)
		}
		return stage.Options{Until: s.Until}, nil
	}
	return stage.Options{}, fmt.Errorf("unknown selector mode %q", s.Mode)
}

// RunConfig carries the host settings a fresh worker process needs to
// rebuild its validation engine.
type RunConfig struct {
	ToolchainBin string  `json:"toolchain_bin"`
	MinGap       float64 `json:"min_gap"`
	AlignTol     float64 `json:"align_tol"`
}

// Request asks a worker process to validate one candidate.
type Request struct {
	ID         string                       `json:"id"`
	Op         string                       `json:"op"`
	Source     string                       `json:"source"`
	Selector   Selector                     `json:"selector"`
	TestParams map[string]map[string]string `json:"test_params,omitempty"`
	Config     RunConfig                    `json:"config"`
}

// Frame types sent from a worker process back to the host.
const (
	FrameStage  = "stage"
	FrameReport = "report"
	FrameError  = "error"
)

// Frame is one worker-to-host message. Stage frames stream in as stages
// complete; exactly one report or error frame ends a healthy stream.
type Frame struct {
	ID     string        `json:"id"`
	Type   string        `json:"type"`
	Stage  *stage.Result `json:"stage,omitempty"`
	Report *stage.Report `json:"report,omitempty"`
	Error  string        `json:"error,omitempty"`
}
