// Package ordtool bridges to the external ORD toolchain. The ordc
// executable parses, compiles, elaborates and renders circuit sources;
// this package invokes it in a scratch directory and decodes its JSON
// stage trace and rendered artifacts.
package ordtool

import (
	"context"
	"fmt"

	"github.com/lucasnoah/ordpilot/internal/geom"
)

// Stage names emitted by the toolchain trace, in pipeline order. The
// spacing check is not a toolchain stage; it runs on the decoded geometry.
const (
	StageParse       = "parse"
	StageCompile     = "compile"
	StageExecute     = "execute"
	StageDiscover    = "discover"
	StageInstantiate = "instantiate"
	StageRender      = "render"
)

// StageEvent is one line of the toolchain's JSON trace.
type StageEvent struct {
	Stage      string   `json:"stage"`
	OK         bool     `json:"ok"`
	Code       string   `json:"code,omitempty"`
	Message    string   `json:"message,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	Cells      []string `json:"cells,omitempty"`
}

// Result is the decoded outcome of one toolchain invocation.
type Result struct {
	Events []StageEvent
	// Cells lists the cell names discovered in the source, when the
	// pipeline got that far.
	Cells []string
	// Geometry is the rendered schematic, when the pipeline reached render.
	Geometry *geom.Schematic
	// SVG is the rendered drawing, when the pipeline reached render.
	SVG []byte
}

// FirstFailure returns the first failed stage event, or nil when every
// reported stage passed.
func (r *Result) FirstFailure() *StageEvent {
	for i := range r.Events {
		if !r.Events[i].OK {
			return &r.Events[i]
		}
	}
	return nil
}

// EvalRequest describes one toolchain invocation.
type EvalRequest struct {
	Source string
	// Until stops the pipeline after the named stage. Empty runs everything.
	Until string
	// TestParams supplies per-cell parameter values for instantiation.
	TestParams map[string]map[string]string
}

// Toolchain runs ORD sources through the external pipeline.
type Toolchain interface {
	Eval(ctx context.Context, req EvalRequest) (*Result, error)
}

// TimeoutError reports a toolchain run cut off by the context deadline.
// Events holds the stage trace collected before the cutoff.
type TimeoutError struct {
	Events []StageEvent
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("toolchain run timed out after %d stage(s)", len(e.Events))
}
