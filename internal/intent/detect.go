package intent

import (
	"context"
	"regexp"
	"strings"

	"github.com/lucasnoah/ordpilot/internal/generate"
)

// Intent is the classified purpose of a chat message.
type Intent string

const (
	Generate Intent = "generate"
	Question Intent = "question"
)

// Result holds the classification and the signals that produced it.
type Result struct {
	Intent  Intent   `json:"intent"`
	Reasons []string `json:"reasons"`
}

// generationSignals are verbs asking for circuit code to be produced or
// changed. Matched as substrings so inflected forms ("designed", "fixes")
// count.
var generationSignals = []string{
	"generate",
	"create",
	"build",
	"write",
	"design",
	"make",
	"modify",
	"update",
	"fix",
	"implement",
	"convert",
}

// questionSignals are interrogative terms. A question classification also
// requires a question mark in the message.
var questionSignals = []string{
	"what",
	"how",
	"why",
	"when",
	"where",
	"explain",
	"difference",
	"mean",
}

// verdictPattern extracts a one-word verdict from a model reply.
var verdictPattern = regexp.MustCompile(`\b(generate|question)\b`)

// classifierSystem is the one-word classification protocol sent to the model.
const classifierSystem = "You are an intent classifier. Respond with exactly one word: " +
	"'generate' if the user wants ORD circuit code to be created or modified, " +
	"or 'question' if they are asking a question about ORD or circuits. " +
	"Respond with only that one word."

// Classify applies the keyword heuristic to a chat message. Generation
// signals win over question signals, and a message matching neither set
// defaults to generation.
func Classify(message string) *Result {
	result := &Result{Intent: Generate, Reasons: []string{}}
	text := strings.ToLower(message)

	if hits := matchSignals(text, generationSignals); len(hits) > 0 {
		result.Reasons = append(result.Reasons, "message mentions generation terms: "+capped(hits, 3))
		return result
	}

	if strings.Contains(text, "?") {
		if hits := matchSignals(text, questionSignals); len(hits) > 0 {
			result.Intent = Question
			result.Reasons = append(result.Reasons, "message asks a question: "+capped(hits, 3))
			return result
		}
	}

	result.Reasons = append(result.Reasons, "no classification signals, defaulting to generation")
	return result
}

// Classifier resolves intent with a model verdict when a generator is
// available, falling back to the keyword heuristic.
type Classifier struct {
	gen generate.Generator
}

// NewClassifier returns a Classifier. gen may be nil, in which case only
// the keyword heuristic runs.
func NewClassifier(gen generate.Generator) *Classifier {
	return &Classifier{gen: gen}
}

// Classify asks the model for a one-word verdict. Errors and ambiguous
// replies fall back to the keyword heuristic.
func (c *Classifier) Classify(ctx context.Context, message string) *Result {
	if c.gen == nil {
		return Classify(message)
	}

	reply, err := c.gen.Generate(ctx, generate.Request{
		System: classifierSystem,
		Prompt: message,
	})
	if err != nil {
		result := Classify(message)
		result.Reasons = append(result.Reasons, "classifier model unavailable: "+err.Error())
		return result
	}

	if verdict := verdictPattern.FindString(strings.ToLower(reply)); verdict != "" {
		return &Result{
			Intent:  Intent(verdict),
			Reasons: []string{"classifier model verdict: " + verdict},
		}
	}

	result := Classify(message)
	result.Reasons = append(result.Reasons, "ambiguous classifier reply, used message heuristic")
	return result
}

func matchSignals(text string, signals []string) []string {
	var hits []string
	for _, s := range signals {
		if strings.Contains(text, s) {
			hits = append(hits, s)
		}
	}
	return hits
}

// capped joins at most n items for a readable reason string.
func capped(items []string, n int) string {
	if len(items) > n {
		items = items[:n]
	}
	return strings.Join(items, ", ")
}
