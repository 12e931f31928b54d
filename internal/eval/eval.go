package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/ordpilot/internal/db"
	"github.com/lucasnoah/ordpilot/internal/geom"
	"github.com/lucasnoah/ordpilot/internal/stage"
	"github.com/lucasnoah/ordpilot/internal/worker"
)

// ErrNoFiles is returned when the corpus has no .ord files to evaluate,
// either because the directory holds none or the excludes removed them all.
var ErrNoFiles = errors.New("no .ord files to evaluate")

// DefaultExcludes are always applied on top of Options.Excludes. The reg_*
// register examples and the constraints demo exercise toolchain features
// outside the validator's scope.
var DefaultExcludes = []string{"reg_*.ord", "inverter_constraints.ord"}

const defaultConcurrency = 4

// Options configures a corpus evaluation.
type Options struct {
	// Dir is the corpus directory of .ord files.
	Dir string
	// Excludes holds extra file-name globs to skip.
	Excludes []string
	// Concurrency bounds parallel validations. Zero means 4.
	Concurrency int
	// Strict is recorded for callers that map failures to a non-zero exit.
	Strict bool
	// JSONOut, when set, is a path the detailed report is written to.
	JSONOut string
	// Timeout bounds each file's validation.
	Timeout time.Duration
}

// FileResult is the outcome of validating one corpus file.
type FileResult struct {
	File         string           `json:"file"`
	Passed       bool             `json:"passed"`
	ErrorStage   stage.Stage      `json:"error_stage,omitempty"`
	ErrorCode    stage.Code       `json:"error_code,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Cells        []string         `json:"cells,omitempty"`
	Violations   []geom.Violation `json:"violations,omitempty"`
	SVGBytes     int              `json:"svg_bytes"`
	DurationMS   int              `json:"duration_ms"`
}

// Summary aggregates a corpus evaluation.
type Summary struct {
	Total          int            `json:"total"`
	Passed         int            `json:"passed"`
	Failed         int            `json:"failed"`
	PassRate       float64        `json:"pass_rate"`
	FailureByStage map[string]int `json:"failure_by_stage"`
	FailureByCode  map[string]int `json:"failure_by_code"`
	DurationMS     int            `json:"duration_ms"`
}

// Report is the full evaluation output.
type Report struct {
	Summary Summary      `json:"summary"`
	Results []FileResult `json:"results"`
}

// Validator runs one source through the full validation engine.
type Validator interface {
	Run(ctx context.Context, source string, opts worker.RunOpts) (*stage.Report, error)
}

// Harness evaluates every .ord file in a corpus directory.
type Harness struct {
	validator Validator
	db        *db.DB
	opts      Options
	progress  io.Writer
}

// New returns a Harness. database may be nil to skip event-log recording.
func New(validator Validator, database *db.DB, opts Options) *Harness {
	return &Harness{
		validator: validator,
		db:        database,
		opts:      opts,
		progress:  io.Discard,
	}
}

// SetProgress directs per-file progress lines to w.
func (h *Harness) SetProgress(w io.Writer) {
	h.progress = w
}

// Run validates the corpus and returns the aggregated report. Results keep
// the sorted file order regardless of completion order.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	names, err := h.files()
	if err != nil {
		return nil, err
	}

	conc := h.opts.Concurrency
	if conc <= 0 {
		conc = defaultConcurrency
	}

	start := time.Now()
	results := make([]FileResult, len(names))

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(conc)
	for i, name := range names {
		i, name := i, name
		eg.Go(func() error {
			res, err := h.evaluate(ectx, name)
			if err != nil {
				return err
			}
			results[i] = *res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Results: results, Summary: summarize(results)}
	report.Summary.DurationMS = int(time.Since(start).Milliseconds())

	h.record(report)

	if h.opts.JSONOut != "" {
		if err := writeJSON(h.opts.JSONOut, report); err != nil {
			return nil, err
		}
		h.logf("wrote JSON report to %s", h.opts.JSONOut)
	}
	return report, nil
}

// ExitCode returns 1 when strict mode is enabled and any file failed,
// otherwise 0.
func (h *Harness) ExitCode(r *Report) int {
	if h.opts.Strict && r.Summary.Failed > 0 {
		return 1
	}
	return 0
}

// files lists the corpus .ord files, sorted, with excludes applied.
func (h *Harness) files() ([]string, error) {
	entries, err := os.ReadDir(h.opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("read corpus dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".ord") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFiles, h.opts.Dir)
	}

	patterns := append(append([]string{}, DefaultExcludes...), h.opts.Excludes...)
	var kept []string
	for _, name := range names {
		if !matchAny(patterns, name) {
			kept = append(kept, name)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w after excludes", ErrNoFiles)
	}
	return kept, nil
}

func (h *Harness) evaluate(ctx context.Context, name string) (*FileResult, error) {
	data, err := os.ReadFile(filepath.Join(h.opts.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	start := time.Now()
	rep, err := h.validator.Run(ctx, string(data), worker.RunOpts{
		Selector: worker.Selector{Mode: worker.ModeSequence},
		Timeout:  h.opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", name, err)
	}

	res := &FileResult{
		File:       name,
		Passed:     rep.Passed,
		Cells:      rep.Cells,
		SVGBytes:   len(rep.SVG),
		DurationMS: int(time.Since(start).Milliseconds()),
	}
	if rep.Failure != nil {
		res.ErrorStage = rep.Failure.Stage
		res.ErrorCode = rep.Failure.Code
		res.ErrorMessage = rep.Failure.Message
		res.Violations = rep.Failure.Violations
	}

	if res.Passed {
		h.logf("pass %s (%dms)", name, res.DurationMS)
	} else {
		h.logf("FAIL %s: %s %s", name, res.ErrorStage, res.ErrorCode)
	}
	return res, nil
}

// record writes the eval outcome to the event log, best effort.
func (h *Harness) record(report *Report) {
	if h.db == nil {
		return
	}
	s := report.Summary
	evalID, err := h.db.LogEvalRun(h.opts.Dir, s.Total, s.Passed, s.Failed, s.DurationMS)
	if err != nil {
		h.logf("event log unavailable: %v", err)
		return
	}
	for _, r := range report.Results {
		err := h.db.LogEvalResult(evalID, r.File, r.Passed,
			string(r.ErrorStage), string(r.ErrorCode), r.ErrorMessage, r.DurationMS)
		if err != nil {
			h.logf("event log unavailable: %v", err)
			return
		}
	}
}

// PrintSummary writes the human-readable eval summary to w.
func (r *Report) PrintSummary(w io.Writer) {
	s := r.Summary
	fmt.Fprintln(w, "=== Validator Eval Summary ===")
	fmt.Fprintf(w, "Total files: %d\n", s.Total)
	fmt.Fprintf(w, "Passed:      %d\n", s.Passed)
	fmt.Fprintf(w, "Failed:      %d\n", s.Failed)
	fmt.Fprintf(w, "Pass rate:   %.2f%%\n", s.PassRate*100)

	fmt.Fprintf(w, "\nFailures by stage:\n")
	printCounts(w, s.FailureByStage)
	fmt.Fprintf(w, "\nFailures by code:\n")
	printCounts(w, s.FailureByCode)
}

func printCounts(w io.Writer, counts map[string]int) {
	if len(counts) == 0 {
		fmt.Fprintln(w, "- none")
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "- %s: %d\n", k, counts[k])
	}
}

func summarize(results []FileResult) Summary {
	s := Summary{
		Total:          len(results),
		FailureByStage: map[string]int{},
		FailureByCode:  map[string]int{},
	}
	for _, r := range results {
		if r.Passed {
			s.Passed++
			continue
		}
		s.Failed++
		s.FailureByStage[orUnknown(string(r.ErrorStage))]++
		s.FailureByCode[orUnknown(string(r.ErrorCode))]++
	}
	if s.Total > 0 {
		s.PassRate = float64(s.Passed) / float64(s.Total)
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

func writeJSON(path string, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal eval report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write eval report: %w", err)
	}
	return nil
}

func (h *Harness) logf(format string, args ...any) {
	fmt.Fprintf(h.progress, format+"\n", args...)
}
