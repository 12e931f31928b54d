package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ExitStatus describes how a worker process ended.
type ExitStatus struct {
	Code   int
	Signal string
}

// ProcHandle is one running worker process.
type ProcHandle interface {
	Stdin() io.Writer
	CloseStdin() error
	Stdout() io.Reader
	// Stderr returns everything the process wrote to stderr so far,
	// bounded to a tail.
	Stderr() string
	// Wait blocks until the process exits. Abnormal exits come back in
	// the ExitStatus, not the error; the error is reserved for failures
	// of waiting itself.
	Wait() (ExitStatus, error)
	Kill()
}

// Runner starts worker processes.
type Runner interface {
	Start(ctx context.Context) (ProcHandle, error)
}

// ExecRunner starts worker subprocesses by re-invoking this binary with
// the hidden worker command. The context passed to Start bounds the
// process lifetime: when it expires the process is killed.
type ExecRunner struct {
	// Bin overrides the worker executable; empty uses the running binary.
	Bin string
	// Args overrides the worker argv; nil means ["worker"].
	Args []string
}

func (e *ExecRunner) Start(ctx context.Context) (ProcHandle, error) {
	bin := e.Bin
	if bin == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate worker binary: %w", err)
		}
		bin = exe
	}
	args := e.Args
	if args == nil {
		args = []string{"worker"}
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	errBuf := &tailBuffer{limit: 64 << 10}
	cmd.Stderr = errBuf
	cmd.Cancel = func() error { return cmd.Process.Kill() }
	cmd.WaitDelay = 5 * time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker process: %w", err)
	}
	return &execProc{cmd: cmd, stdin: stdin, stdout: stdout, errBuf: errBuf}, nil
}

type execProc struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	errBuf *tailBuffer
}

func (p *execProc) Stdin() io.Writer  { return p.stdin }
func (p *execProc) CloseStdin() error { return p.stdin.Close() }
func (p *execProc) Stdout() io.Reader { return p.stdout }
func (p *execProc) Stderr() string    { return p.errBuf.String() }

func (p *execProc) Wait() (ExitStatus, error) {
	err := p.cmd.Wait()
	if err == nil {
		return ExitStatus{}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		status := ExitStatus{Code: exitErr.ExitCode()}
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			status.Signal = ws.Signal().String()
		}
		return status, nil
	}
	return ExitStatus{Code: -1}, fmt.Errorf("wait worker process: %w", err)
}

func (p *execProc) Kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if b.buf.Len() > b.limit {
		data := b.buf.Bytes()
		keep := append([]byte(nil), data[len(data)-b.limit:]...)
		b.buf.Reset()
		b.buf.Write(keep)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
