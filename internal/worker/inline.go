package worker

import (
	"context"

	"github.com/lucasnoah/ordpilot/internal/stage"
)

// Inline runs validations in the current process, for setups where
// subprocess isolation is switched off. It honors the same RunOpts as
// Host, except that ModePerStage degrades to a plain sequence run: per
// stage isolation is meaningless without processes.
type Inline struct {
	engine Engine
}

// NewInline wraps an engine as an in-process validator.
func NewInline(engine Engine) *Inline {
	return &Inline{engine: engine}
}

// Run validates one candidate in-process.
func (i *Inline) Run(ctx context.Context, source string, opts RunOpts) (*stage.Report, error) {
	sel := opts.Selector
	if sel.Mode == ModePerStage {
		sel = Selector{Mode: ModeSequence}
	}
	stageOpts, err := sel.options()
	if err != nil {
		return nil, err
	}
	stageOpts.TestParams = opts.TestParams

	runCtx := ctx
	cancel := func() {}
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	defer cancel()
	return i.engine.Validate(runCtx, source, stageOpts)
}
