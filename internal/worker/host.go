package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lucasnoah/ordpilot/internal/stage"
)

// RunOpts configures one validation run.
type RunOpts struct {
	Selector   Selector
	TestParams map[string]map[string]string
	// Timeout bounds each worker process; zero means no deadline. In
	// per-stage mode every process gets the full timeout.
	Timeout time.Duration
}

// Host runs validation requests in isolated worker processes. Each request
// gets a fresh process; nothing leaks from one candidate into the next.
type Host struct {
	runner   Runner
	cfg      RunConfig
	progress io.Writer
}

// NewHost creates a host that starts processes with the given runner and
// hands each one the run configuration.
func NewHost(runner Runner, cfg RunConfig) *Host {
	return &Host{runner: runner, cfg: cfg}
}

// SetProgress sets a writer for live progress output (e.g. os.Stderr).
func (h *Host) SetProgress(w io.Writer) { h.progress = w }

func (h *Host) logf(format string, args ...any) {
	if h.progress != nil {
		fmt.Fprintf(h.progress, "  → "+format+"\n", args...)
	}
}

// Run validates one candidate in a fresh worker process, or one process
// per stage for ModePerStage. Worker deaths come back as reports carrying
// ERR_WORKER_TIMEOUT or ERR_WORKER_CRASH; an error means the run could not
// be classified and must not count against any retry budget.
func (h *Host) Run(ctx context.Context, source string, opts RunOpts) (*stage.Report, error) {
	if opts.Selector.Mode == ModePerStage {
		return h.runPerStage(ctx, source, opts)
	}
	req := h.newRequest(source, opts.Selector, opts.TestParams)
	return h.runOnce(ctx, req, opts.Timeout)
}

func (h *Host) newRequest(source string, sel Selector, params map[string]map[string]string) Request {
	return Request{
		ID:         uuid.NewString(),
		Op:         OpValidate,
		Source:     source,
		Selector:   sel,
		TestParams: params,
		Config:     h.cfg,
	}
}

func (h *Host) runOnce(ctx context.Context, req Request, timeout time.Duration) (*stage.Report, error) {
	runCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	proc, err := h.runner.Start(runCtx)
	if err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	h.logf("worker %s: %s (%d bytes)", shortID(req.ID), modeLabel(req.Selector), len(req.Source))

	if err := writeFrameJSON(proc.Stdin(), req); err != nil {
		proc.Kill()
		status, werr := proc.Wait()
		if werr == nil && (status.Code != 0 || status.Signal != "") {
			return h.crashReport(nil, status, proc.Stderr()), nil
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	_ = proc.CloseStdin()

	stages, report, errMsg := collect(bufio.NewReader(proc.Stdout()), req.ID)
	status, werr := proc.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		rep := h.timeoutReport(stages, timeout)
		h.logf("worker %s: %s", shortID(req.ID), rep.Failure.Message)
		return rep, nil
	}
	if werr != nil {
		return nil, werr
	}
	if status.Code != 0 || status.Signal != "" {
		rep := h.crashReport(stages, status, proc.Stderr())
		h.logf("worker %s: %s", shortID(req.ID), rep.Failure.Message)
		return rep, nil
	}
	if errMsg != "" {
		return nil, fmt.Errorf("worker rejected request: %s", errMsg)
	}
	if report == nil {
		return nil, fmt.Errorf("worker protocol violation: clean exit without a classifiable report")
	}
	return report, nil
}

// runPerStage validates with one fresh process per pipeline stage. Each
// process re-runs the pipeline up to its stage; the host keeps only that
// stage's result and assembles the overall report, stopping at the first
// failure.
func (h *Host) runPerStage(ctx context.Context, source string, opts RunOpts) (*stage.Report, error) {
	report := &stage.Report{}
	for _, s := range stage.Order() {
		req := h.newRequest(source, Selector{Mode: ModeUntil, Until: s}, opts.TestParams)
		rep, err := h.runOnce(ctx, req, opts.Timeout)
		if err != nil {
			return nil, err
		}
		if f := rep.Failure; f != nil && (f.Code == stage.CodeWorkerTimeout || f.Code == stage.CodeWorkerCrash) {
			report.Stages = append(report.Stages, stage.Result{Stage: f.Stage, OK: false, Code: f.Code, Message: f.Message})
			report.Failure = f
			return report, nil
		}
		r := rep.ResultFor(s)
		if r == nil {
			return nil, fmt.Errorf("worker report for %s is missing its own stage result", s)
		}
		report.Stages = append(report.Stages, *r)
		if rep.Geometry != nil {
			report.Geometry = rep.Geometry
		}
		if rep.SVG != "" {
			report.SVG = rep.SVG
		}
		if len(rep.Cells) > 0 {
			report.Cells = rep.Cells
		}
		if !r.OK {
			if rep.Failure != nil && rep.Failure.Stage == s {
				report.Failure = rep.Failure
			} else {
				report.Failure = &stage.Failure{Stage: s, Code: r.Code, Message: r.Message}
			}
			return report, nil
		}
	}
	report.Passed = true
	return report, nil
}

// collect reads worker frames until the stream ends. Frames for other
// request ids and frames that do not decode are discarded; a framing-level
// error stops reading, since a length-prefixed stream cannot be
// resynchronized.
func collect(br *bufio.Reader, id string) (stages []stage.Result, report *stage.Report, errMsg string) {
	for {
		payload, err := ReadFrame(br)
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(payload, &f); err != nil {
			continue
		}
		if f.ID != id {
			continue
		}
		switch f.Type {
		case FrameStage:
			if f.Stage != nil {
				stages = append(stages, *f.Stage)
			}
		case FrameReport:
			if f.Report != nil {
				report = f.Report
			}
		case FrameError:
			errMsg = f.Error
			if errMsg == "" {
				errMsg = "unspecified worker error"
			}
		}
	}
}

func (h *Host) timeoutReport(stages []stage.Result, timeout time.Duration) *stage.Report {
	stuck := inProgress(stages)
	msg := fmt.Sprintf("worker timed out after %s during %s", timeout, stuck)
	return failedReport(stages, stuck, stage.CodeWorkerTimeout, msg)
}

func (h *Host) crashReport(stages []stage.Result, status ExitStatus, stderr string) *stage.Report {
	stuck := inProgress(stages)
	msg := fmt.Sprintf("worker crashed during %s (%s)", stuck, exitLabel(status))
	if t := tail(stderr, 400); t != "" {
		msg += ": " + t
	}
	rep := failedReport(stages, stuck, stage.CodeWorkerCrash, msg)
	rep.Failure.ExitCode = status.Code
	rep.Failure.Signal = status.Signal
	return rep
}

func failedReport(stages []stage.Result, stuck stage.Stage, code stage.Code, msg string) *stage.Report {
	r := stage.Result{Stage: stuck, OK: false, Code: code, Message: msg}
	return &stage.Report{
		Stages:  append(stages, r),
		Failure: &stage.Failure{Stage: stuck, Code: code, Message: msg},
	}
}

// inProgress attributes a worker death to the stage that was running: the
// successor of the last completed stage, or parse when nothing completed.
// A failed final frame keeps its own stage.
func inProgress(stages []stage.Result) stage.Stage {
	if len(stages) == 0 {
		return stage.Parse
	}
	last := stages[len(stages)-1]
	if !last.OK {
		return last.Stage
	}
	if next, ok := stage.Next(last.Stage); ok {
		return next
	}
	return last.Stage
}

func exitLabel(status ExitStatus) string {
	if status.Signal != "" {
		return "signal " + status.Signal
	}
	return fmt.Sprintf("exit %d", status.Code)
}

func modeLabel(sel Selector) string {
	switch sel.Mode {
	case "", ModeSequence:
		return "validate"
	case ModeUntil:
		return "validate until " + string(sel.Until)
	default:
		return "validate " + string(sel.Mode)
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
