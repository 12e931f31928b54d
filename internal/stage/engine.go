package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lucasnoah/ordpilot/internal/geom"
	"github.com/lucasnoah/ordpilot/internal/ordtool"
)

// Engine drives one candidate through the validation pipeline: the
// external toolchain stages in order, then the spacing check on the
// rendered geometry. The first failure short-circuits the rest.
type Engine struct {
	tool     ordtool.Toolchain
	params   geom.Params
	progress io.Writer // live progress output; nil = silent
}

// NewEngine creates an engine over the given toolchain.
func NewEngine(tool ordtool.Toolchain, params geom.Params) *Engine {
	return &Engine{tool: tool, params: params}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (e *Engine) SetProgress(w io.Writer) {
	e.progress = w
}

// logf prints a progress line if a progress writer is configured.
func (e *Engine) logf(format string, args ...interface{}) {
	if e.progress != nil {
		fmt.Fprintf(e.progress, "  → "+format+"\n", args...)
	}
}

// Options configures a validation run.
type Options struct {
	// RenderOnly reports just the render and spacing stages, for
	// re-checking a layout fix. Earlier stages still execute; if one of
	// them fails the report surfaces it truthfully.
	RenderOnly bool
	// Until stops the pipeline after the named stage. Empty means the full
	// pipeline including the spacing check.
	Until Stage
	// TestParams supplies per-cell parameter values for instantiation.
	TestParams map[string]map[string]string
	// OnStage, when set, observes each stage result as it completes.
	OnStage func(Result)
}

// Validate runs one candidate through the pipeline. Stage failures come
// back inside the Report; an error means the pipeline itself could not run.
func (e *Engine) Validate(ctx context.Context, source string, opts Options) (*Report, error) {
	req := ordtool.EvalRequest{Source: source, TestParams: opts.TestParams}
	if !opts.RenderOnly && opts.Until != "" && opts.Until != Spacing {
		if !Valid(opts.Until) {
			return nil, fmt.Errorf("unknown stage %q", opts.Until)
		}
		req.Until = string(opts.Until)
	}

	res, err := e.tool.Eval(ctx, req)
	if err != nil {
		var timeout *ordtool.TimeoutError
		if errors.As(err, &timeout) {
			return e.timeoutReport(timeout, opts), nil
		}
		return nil, err
	}

	report := &Report{RenderOnly: opts.RenderOnly, Cells: res.Cells}
	for _, ev := range res.Events {
		r := convertEvent(ev)
		report.Stages = append(report.Stages, r)
		e.observe(opts, r)
		if !r.OK {
			report.Failure = &Failure{Stage: r.Stage, Code: r.Code, Message: r.Message}
			break
		}
	}
	if report.Failure != nil {
		e.shapeRenderOnly(report)
		return report, nil
	}

	report.Geometry = res.Geometry
	report.SVG = string(res.SVG)

	if req.Until != "" {
		report.Passed = true
		return report, nil
	}

	if res.Geometry == nil {
		return nil, fmt.Errorf("toolchain reported render ok but wrote no geometry")
	}

	start := time.Now()
	violations := geom.CheckSpacing(res.Geometry, e.params)
	spacing := Result{Stage: Spacing, OK: len(violations) == 0, DurationMS: time.Since(start).Milliseconds()}
	if !spacing.OK {
		spacing.Code = CodeSpacingViolation
		spacing.Message = joinViolations(violations)
	}
	report.Stages = append(report.Stages, spacing)
	e.observe(opts, spacing)

	if spacing.OK {
		report.Passed = true
	} else {
		report.Failure = &Failure{
			Stage:      Spacing,
			Code:       CodeSpacingViolation,
			Message:    spacing.Message,
			Violations: violations,
		}
	}

	e.shapeRenderOnly(report)
	return report, nil
}

// timeoutReport synthesizes the report for a run cut off by its deadline.
// The failure lands on the successor of the last completed stage; a run
// that produced no trace at all is attributed to parse.
func (e *Engine) timeoutReport(te *ordtool.TimeoutError, opts Options) *Report {
	report := &Report{RenderOnly: opts.RenderOnly}
	last := Stage("")
	for _, ev := range te.Events {
		r := convertEvent(ev)
		report.Stages = append(report.Stages, r)
		e.observe(opts, r)
		if !r.OK {
			report.Failure = &Failure{Stage: r.Stage, Code: r.Code, Message: r.Message}
			return report
		}
		last = r.Stage
	}

	stuck := Parse
	if last != "" {
		if next, ok := Next(last); ok {
			stuck = next
		} else {
			stuck = last
		}
	}
	r := Result{
		Stage:   stuck,
		OK:      false,
		Code:    CodeWorkerTimeout,
		Message: fmt.Sprintf("validation timed out during %s", stuck),
	}
	report.Stages = append(report.Stages, r)
	e.observe(opts, r)
	report.Failure = &Failure{Stage: stuck, Code: CodeWorkerTimeout, Message: r.Message}
	return report
}

// shapeRenderOnly trims a render-only report down to the two stages the
// caller asked about, unless an earlier stage failed.
func (e *Engine) shapeRenderOnly(r *Report) {
	if !r.RenderOnly {
		return
	}
	if r.Failure != nil && r.Failure.Stage != Render && r.Failure.Stage != Spacing {
		return
	}
	var kept []Result
	for _, s := range r.Stages {
		if s.Stage == Render || s.Stage == Spacing {
			kept = append(kept, s)
		}
	}
	r.Stages = kept
}

func (e *Engine) observe(opts Options, r Result) {
	status := "ok"
	if !r.OK {
		status = string(r.Code)
	}
	e.logf("stage %s: %s (%dms)", r.Stage, status, r.DurationMS)
	if opts.OnStage != nil {
		opts.OnStage(r)
	}
}

// convertEvent maps a toolchain trace event onto the closed stage and code
// vocabulary. Auxiliary toolchain codes collapse to the stage's canonical
// code; the message is kept verbatim.
func convertEvent(ev ordtool.StageEvent) Result {
	r := Result{Stage: Stage(ev.Stage), OK: ev.OK, Message: ev.Message, DurationMS: ev.DurationMS}
	if !ev.OK {
		r.Code = CodeForStage(r.Stage)
	}
	return r
}

func joinViolations(vs []geom.Violation) string {
	msgs := make([]string, len(vs))
	for i, v := range vs {
		msgs[i] = v.Message
	}
	return strings.Join(msgs, "; ")
}
