package stage

// Code identifies why a validation failed. The set is closed: every failure
// anywhere in the system maps onto exactly one of these codes.
type Code string

const (
	CodeParseFailure         Code = "ERR_PARSE_FAILURE"
	CodeCompileFailure       Code = "ERR_COMPILE_FAILURE"
	CodeExecFailure          Code = "ERR_EXEC_FAILURE"
	CodeNoCellDiscovered     Code = "ERR_NO_CELL_DISCOVERED"
	CodeInstantiationFailure Code = "ERR_INSTANTIATION_FAILURE"
	CodeRenderFailure        Code = "ERR_RENDER_FAILURE"
	CodeSpacingViolation     Code = "ERR_SPACING_VIOLATION"
	CodeWorkerTimeout        Code = "ERR_WORKER_TIMEOUT"
	CodeWorkerCrash          Code = "ERR_WORKER_CRASH"
)

// Class partitions failure codes by how the retry loop reacts to them.
type Class int

const (
	// ClassNone means no failure.
	ClassNone Class = iota
	// ClassCircuit failures discard the candidate and regenerate.
	ClassCircuit
	// ClassSpacing failures keep the candidate and fix its layout.
	ClassSpacing
)

func (c Class) String() string {
	switch c {
	case ClassCircuit:
		return "circuit"
	case ClassSpacing:
		return "spacing"
	}
	return "none"
}

// Class returns the retry class of a failure code. Spacing violations are
// the only fixable class; every other code, including ones this version
// does not know, regenerates.
func (c Code) Class() Class {
	switch c {
	case "":
		return ClassNone
	case CodeSpacingViolation:
		return ClassSpacing
	}
	return ClassCircuit
}

var canonicalCode = map[Stage]Code{
	Parse:       CodeParseFailure,
	Compile:     CodeCompileFailure,
	Execute:     CodeExecFailure,
	Discover:    CodeNoCellDiscovered,
	Instantiate: CodeInstantiationFailure,
	Render:      CodeRenderFailure,
	Spacing:     CodeSpacingViolation,
}

// CodeForStage returns the canonical failure code for a pipeline stage.
func CodeForStage(s Stage) Code {
	return canonicalCode[s]
}
