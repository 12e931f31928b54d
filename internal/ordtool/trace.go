package ordtool

import (
	"encoding/json"
	"fmt"
	"strings"
)

var knownStages = map[string]bool{
	StageParse:       true,
	StageCompile:     true,
	StageExecute:     true,
	StageDiscover:    true,
	StageInstantiate: true,
	StageRender:      true,
}

// ParseTrace decodes the toolchain's JSON-lines stage trace. Lines that do
// not open a JSON object are toolchain diagnostics and are skipped. Object
// lines must decode to an event naming a known stage; anything else means
// the trace contract is broken and the run cannot be classified.
func ParseTrace(stdout string) ([]StageEvent, error) {
	var events []StageEvent
	for i, line := range strings.Split(stdout, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed[0] != '{' {
			continue
		}
		var ev StageEvent
		if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
			return nil, fmt.Errorf("trace line %d: %w", i+1, err)
		}
		if !knownStages[ev.Stage] {
			return nil, fmt.Errorf("trace line %d: unknown stage %q", i+1, ev.Stage)
		}
		events = append(events, ev)
	}
	return events, nil
}
