// Package stage defines the validation pipeline for generated circuits:
// the ordered stages a candidate passes through, the closed set of failure
// codes, and the engine that drives the toolchain and the spacing check to
// a single Report.
package stage

// Stage is one step of the validation pipeline.
type Stage string

const (
	Parse       Stage = "parse"
	Compile     Stage = "compile"
	Execute     Stage = "execute"
	Discover    Stage = "discover"
	Instantiate Stage = "instantiate"
	Render      Stage = "render"
	Spacing     Stage = "spacing"
)

var order = []Stage{Parse, Compile, Execute, Discover, Instantiate, Render, Spacing}

// Order returns the pipeline stages in execution order.
func Order() []Stage {
	return append([]Stage(nil), order...)
}

// Index returns a stage's position in the pipeline, or -1 for an unknown
// stage.
func Index(s Stage) int {
	for i, o := range order {
		if o == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s names a pipeline stage.
func Valid(s Stage) bool {
	return Index(s) >= 0
}

// Next returns the stage that follows s. The second return is false when s
// is the final stage or unknown.
func Next(s Stage) (Stage, bool) {
	i := Index(s)
	if i < 0 || i+1 >= len(order) {
		return "", false
	}
	return order[i+1], true
}
