package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/lucasnoah/ordpilot/internal/geom"
	"github.com/lucasnoah/ordpilot/internal/ordtool"
	"github.com/lucasnoah/ordpilot/internal/stage"
)

// Engine abstracts stage validation for the guest loop.
type Engine interface {
	Validate(ctx context.Context, source string, opts stage.Options) (*stage.Report, error)
}

// Serve handles a single validation request on the given streams: it reads
// one request frame, runs the pipeline, streams a frame per completed
// stage, and ends with a report frame. Validation failures are ordinary
// results; the caller should still exit 0 after a nil return. Requests
// that cannot be served are answered with an error frame, also a nil
// return. Logging goes to the zap logger only, never to out, which
// carries nothing but frames.
func Serve(ctx context.Context, in io.Reader, out io.Writer, logger *zap.Logger) error {
	return serve(ctx, in, out, logger, func(cfg RunConfig) Engine {
		params := geom.Params{MinGap: cfg.MinGap, AlignTol: cfg.AlignTol}
		if params == (geom.Params{}) {
			params = geom.DefaultParams()
		}
		return stage.NewEngine(ordtool.NewClient(cfg.ToolchainBin), params)
	})
}

func serve(ctx context.Context, in io.Reader, out io.Writer, logger *zap.Logger, build func(RunConfig) Engine) error {
	payload, err := ReadFrame(bufio.NewReader(in))
	if err != nil {
		return writeError(out, "", fmt.Sprintf("read request: %v", err), logger)
	}
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return writeError(out, "", fmt.Sprintf("decode request: %v", err), logger)
	}
	if req.Op != OpValidate {
		return writeError(out, req.ID, fmt.Sprintf("unknown op %q", req.Op), logger)
	}
	opts, err := req.Selector.options()
	if err != nil {
		return writeError(out, req.ID, err.Error(), logger)
	}
	opts.TestParams = req.TestParams
	opts.OnStage = func(r stage.Result) {
		_ = writeFrameJSON(out, Frame{ID: req.ID, Type: FrameStage, Stage: &r})
		logger.Debug("Stage complete",
			zap.String("stage", string(r.Stage)),
			zap.Bool("ok", r.OK),
			zap.Int64("duration_ms", r.DurationMS))
	}

	logger.Info("Serving validation request",
		zap.String("id", req.ID),
		zap.String("mode", string(req.Selector.Mode)),
		zap.Int("source_bytes", len(req.Source)))

	report, err := build(req.Config).Validate(ctx, req.Source, opts)
	if err != nil {
		return writeError(out, req.ID, err.Error(), logger)
	}
	if err := writeFrameJSON(out, Frame{ID: req.ID, Type: FrameReport, Report: report}); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info("Request served",
		zap.String("id", req.ID),
		zap.Bool("passed", report.Passed))
	return nil
}

// writeError answers a request that cannot be served. The nil return on
// success is deliberate: a rejected request is a handled outcome and the
// process must still exit cleanly so the host classifies it from the
// frame, not the exit code.
func writeError(out io.Writer, id, msg string, logger *zap.Logger) error {
	logger.Warn("Rejecting request", zap.String("id", id), zap.String("error", msg))
	return writeFrameJSON(out, Frame{ID: id, Type: FrameError, Error: msg})
}
