package ordtool

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lucasnoah/ordpilot/internal/geom"
)

// CommandRunner abstracts toolchain process execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by invoking the executable.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// Client invokes the ordc executable and decodes its outputs.
type Client struct {
	bin  string
	cmd  CommandRunner
	logf func(format string, args ...any)
}

// NewClient creates a toolchain client for the given ordc binary. An empty
// bin falls back to "ordc" on PATH.
func NewClient(bin string) *Client {
	if bin == "" {
		bin = "ordc"
	}
	return &Client{bin: bin, cmd: &ExecRunner{}, logf: func(string, ...any) {}}
}

// SetRunner replaces process execution, for tests.
func (c *Client) SetRunner(cmd CommandRunner) { c.cmd = cmd }

// SetLogf directs progress logging.
func (c *Client) SetLogf(logf func(format string, args ...any)) { c.logf = logf }

// Eval writes the source into a scratch directory, runs
// ordc eval --trace json against it, and decodes the trace plus the
// geometry and SVG artifacts. A nonzero exit with a failing stage in the
// trace is a stage failure, reported through the Result; a nonzero exit
// without one is an infrastructure error.
func (c *Client) Eval(ctx context.Context, req EvalRequest) (*Result, error) {
	dir, err := os.MkdirTemp("", "ordpilot-eval-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, "source.ord")
	if err := os.WriteFile(srcPath, []byte(req.Source), 0o644); err != nil {
		return nil, fmt.Errorf("write source: %w", err)
	}
	geomPath := filepath.Join(dir, "geometry.json")
	svgPath := filepath.Join(dir, "out.svg")

	args := []string{"eval", "--trace", "json", "--geometry", geomPath, "--svg", svgPath}
	if req.Until != "" {
		args = append(args, "--until", req.Until)
	}
	args = append(args, paramArgs(req.TestParams)...)
	args = append(args, srcPath)

	c.logf("  → %s eval (%d bytes)", c.bin, len(req.Source))
	stdout, stderr, exitCode, err := c.cmd.Run(ctx, dir, c.bin, args...)
	if ctx.Err() == context.DeadlineExceeded {
		events, _ := ParseTrace(stdout)
		return nil, &TimeoutError{Events: events}
	}
	if err != nil {
		return nil, fmt.Errorf("run toolchain: %w", err)
	}

	events, err := ParseTrace(stdout)
	if err != nil {
		return nil, fmt.Errorf("toolchain trace: %w", err)
	}

	res := &Result{Events: events}
	for _, ev := range events {
		if len(ev.Cells) > 0 {
			res.Cells = ev.Cells
		}
	}

	if exitCode != 0 && res.FirstFailure() == nil {
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = strings.TrimSpace(stdout)
		}
		if detail == "" {
			detail = "toolchain exited without a failing stage"
		}
		return nil, fmt.Errorf("toolchain exit %d: %s", exitCode, truncate(detail, 400))
	}

	if f, err := os.Open(geomPath); err == nil {
		s, derr := geom.DecodeSchematic(f)
		f.Close()
		if derr != nil {
			return nil, fmt.Errorf("toolchain geometry: %w", derr)
		}
		res.Geometry = s
	}
	if svg, err := os.ReadFile(svgPath); err == nil && len(svg) > 0 {
		res.SVG = svg
	}
	return res, nil
}

// paramArgs renders TestParams as repeated --param cell.name=value flags
// in deterministic order.
func paramArgs(params map[string]map[string]string) []string {
	if len(params) == 0 {
		return nil
	}
	cells := make([]string, 0, len(params))
	for cell := range params {
		cells = append(cells, cell)
	}
	sort.Strings(cells)

	var args []string
	for _, cell := range cells {
		names := make([]string, 0, len(params[cell]))
		for name := range params[cell] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			args = append(args, "--param", fmt.Sprintf("%s.%s=%s", cell, name, params[cell][name]))
		}
	}
	return args
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
