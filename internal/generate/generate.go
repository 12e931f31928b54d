// Package generate calls an external language model to produce candidate
// ORD source. Providers are deliberately thin: prompt construction lives
// in internal/prompt and reply vetting in the orchestrator, so a provider
// only turns (system, prompt, temperature) into raw model text.
package generate

import "context"

// Request is a single completion request. System carries the ORD grammar
// instructions, Prompt the rendered user prompt for this attempt.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
}

// Generator produces one raw model reply per request. Implementations
// must honor ctx cancellation; callers apply their own deadlines.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// TemperatureFor returns the sampling temperature for the given attempt
// (1-based) from an escalation schedule, clamping at the last entry so
// late retries keep the hottest configured temperature.
func TemperatureFor(schedule []float64, attempt int) float64 {
	if len(schedule) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}
