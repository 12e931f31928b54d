package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasnoah/ordpilot/internal/stage"
)

// Library resolves and renders the pipeline's prompts. Each template is
// looked up in three places, most specific first: a file with the same name
// in the project workdir, the installed copy under ~/.ordpilot/templates/,
// and finally the compiled-in default.
type Library struct {
	workdir string
}

// NewLibrary returns a Library that checks workdir for template overrides.
// An empty workdir skips the project-level lookup.
func NewLibrary(workdir string) *Library {
	return &Library{workdir: workdir}
}

func (l *Library) load(name string) (string, error) {
	if content, err := LoadTemplate(name, l.workdir); err == nil {
		return content, nil
	}
	if content, ok := builtinTemplates[name]; ok {
		return content, nil
	}
	return "", fmt.Errorf("no template named %q", name)
}

func (l *Library) render(name string, vars Vars) (string, error) {
	tmpl, err := l.load(name)
	if err != nil {
		return "", err
	}
	out, err := Render(tmpl, vars)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return out, nil
}

// System returns the generator system prompt: the ORD language reference
// the model needs to produce valid code.
func (l *Library) System() (string, error) {
	return l.render("system.md", Vars{})
}

// QuestionSystem returns the system prompt for answering questions about
// ORD without generating code.
func (l *Library) QuestionSystem() (string, error) {
	return l.render("question-system.md", Vars{})
}

// Generation builds the user prompt for a fresh candidate. examples is
// pre-formatted retrieval context; when empty, the examples section is
// omitted entirely.
func (l *Library) Generation(query, examples string) (string, error) {
	return l.render("generation.md", Vars{
		"user_request":       query,
		"retrieved_examples": examples,
	})
}

// Retry builds the reprompt sent after a circuit-class validation failure.
// The guidance block is stage-specific and omitted when a stage has no
// known fix hints.
func (l *Library) Retry(failed stage.Stage, message, previousCode string) (string, error) {
	return l.render("retry.md", Vars{
		"failed_stage":   string(failed),
		"error_message":  message,
		"stage_guidance": stageGuidance[failed],
		"previous_code":  previousCode,
	})
}

// Question builds the prompt for a conversational question about ORD.
func (l *Library) Question(query, context string) (string, error) {
	return l.render("question.md", Vars{
		"user_request":      query,
		"retrieved_context": context,
	})
}

// SpacingFeedback formats spacing violations and the planned layout edits
// for display alongside a fix round.
func (l *Library) SpacingFeedback(violations, edits []string, minGap int) (string, error) {
	return l.render("spacing.md", Vars{
		"violations": strings.Join(violations, "\n"),
		"min_gap":    strconv.Itoa(minGap),
		"edits":      strings.Join(edits, "\n"),
	})
}

// stageGuidance maps a failed validation stage to the fix hints appended to
// the retry prompt. Stages without an entry get no guidance block.
var stageGuidance = map[stage.Stage]string{
	stage.Parse: "**Parsing fix hints:**\n" +
		"- Ensure the first line is exactly: # -*- version: ord2 -*-\n" +
		"- Use \"cell Name:\" not \"class Name:\"\n" +
		"- Check indentation and colons after cell/viewgen",
	stage.Compile: "**Compilation fix hints:**\n" +
		"- Check for syntax errors in Python expressions\n" +
		"- Check for mismatched brackets or parentheses",
	stage.Execute: "**Execution fix hints:**\n" +
		"- Check all imports are present (ordec.core, ordec.schematic, ordec.ord2.context)\n" +
		"- Ensure nets are declared before use\n" +
		"- Use .$ for parameters, a plain dot for pins",
	stage.Discover: "**Discovery fix hints:**\n" +
		"- Use \"cell Name:\" not \"class Name:\"\n" +
		"- Cell definitions must be at module level",
	stage.Instantiate: "**Instantiation fix hints:**\n" +
		"- Verify pin names match the component tables (Nmos has g/s/d/b)\n" +
		"- Every instance needs .pos = (x, y) in viewgen schematic\n" +
		"- Check self. parameter access is correct\n" +
		"- All Parameter(...) declarations must provide defaults\n" +
		"- Ensure the cell has a \"viewgen schematic:\" definition",
	stage.Render: "**Rendering fix hints:**\n" +
		"- Check for overlapping or touching components; bounding boxes need a 2-unit clear gap\n" +
		"- Subcells are 5x5 minimum; account for the full bounding box, not just the origin\n" +
		"- Ensure all .pos coordinates are valid positive integers",
	stage.Spacing: "**Spacing fix hints:**\n" +
		"- The spacing checker found bounding-box violations between instances\n" +
		"- Every pair of instances must have at least 2 units of clear gap between their bounding boxes\n" +
		"- Subcells are 5x5 minimum and grow with extra pins; account for the FULL bounding box, not just the origin\n" +
		"- A 5x5 subcell at (3,2) spans (3,2) to (8,7); the next element must start at x>=10 or y>=9\n" +
		"- Increase spacing between the violating instances by adjusting their .pos coordinates",
}
