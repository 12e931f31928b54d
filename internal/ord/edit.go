package ord

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lucasnoah/ordpilot/internal/geom"
)

// EditKind names the textual transformations the layout fixer can request.
type EditKind string

const (
	// EditPosition rewrites an element's .pos coordinates.
	EditPosition EditKind = "position"
	// EditAlign rewrites a port's .align orientation.
	EditAlign EditKind = "align"
	// EditRoute disables auto-routing for a port or net.
	EditRoute EditKind = "route"
)

// Edit is one structured change to apply to ORD source text.
type Edit struct {
	Kind    EditKind     `json:"kind"`
	Element string       `json:"element"`
	Port    bool         `json:"port,omitempty"`
	X       int          `json:"x"`
	Y       int          `json:"y"`
	Align   string       `json:"align,omitempty"`
	Detour  []geom.Point `json:"detour,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

// ErrNotApplied reports that no edit changed the source text. The requested
// fix cannot be expressed against this source.
var ErrNotApplied = errors.New("no layout edit applied")

var (
	posAssignRe = regexp.MustCompile(`\.pos\s*=\s*\(\s*\d+\s*,\s*\d+\s*\)`)
	posLineRe   = regexp.MustCompile(`^\.pos\s*=\s*\(`)
)

// ApplyEdits applies structured layout edits to ORD source. Edits whose
// target cannot be located leave the source untouched; if none of the edits
// changed the text the result is ErrNotApplied.
func ApplyEdits(source string, edits []Edit) (string, error) {
	applied := 0
	for _, e := range edits {
		var next string
		switch e.Kind {
		case EditPosition:
			next = replacePos(source, e.Element, e.X, e.Y)
		case EditAlign:
			next = replaceAlign(source, e.Element, e.Align)
		case EditRoute:
			next = disableRoute(source, e.Element)
		default:
			return "", fmt.Errorf("unknown edit kind %q", e.Kind)
		}
		if next != source {
			applied++
		}
		source = next
	}
	if applied == 0 {
		return "", ErrNotApplied
	}
	return source, nil
}

// replacePos rewrites the .pos coordinates of a named port or instance. Both
// declaration forms are handled: inline (Nmos pd (.pos=(6, 2), ...)) and
// block (Nmos pd: followed by an indented .pos = (6, 2) line).
func replacePos(source, name string, x, y int) string {
	escaped := regexp.QuoteMeta(name)
	inlineDecl := regexp.MustCompile(`^(?:port\s+)?` + escaped + `\s*\(`)
	typedDecl := regexp.MustCompile(`^\w+\s+` + escaped + `\s*\(`)
	blockDecl := regexp.MustCompile(`^\w+\s+` + escaped + `\s*:`)

	lines := strings.Split(source, "\n")
	for i, line := range lines {
		stripped := strings.TrimLeft(line, " \t")

		if inlineDecl.MatchString(stripped) || typedDecl.MatchString(stripped) {
			newLine := posAssignRe.ReplaceAllString(line, fmt.Sprintf(".pos=(%d, %d)", x, y))
			if newLine != line {
				lines[i] = newLine
				return strings.Join(lines, "\n")
			}
		}

		if blockDecl.MatchString(stripped) {
			declIndent := len(line) - len(stripped)
			for j := i + 1; j < len(lines); j++ {
				innerStripped := strings.TrimLeft(lines[j], " \t")
				if innerStripped == "" || strings.HasPrefix(innerStripped, "#") {
					continue
				}
				innerIndent := len(lines[j]) - len(innerStripped)
				if innerIndent <= declIndent {
					break
				}
				if posLineRe.MatchString(innerStripped) {
					lines[j] = fmt.Sprintf("%s.pos = (%d, %d)", lines[j][:innerIndent], x, y)
					return strings.Join(lines, "\n")
				}
			}
		}
	}
	return source
}

// replaceAlign rewrites the .align orientation of a named port. The match
// only reaches an .align that precedes any closing paren in the declaration.
func replaceAlign(source, name, align string) string {
	re := regexp.MustCompile(`(port\s+` + regexp.QuoteMeta(name) + `\s*\([^)]*\.align\s*=\s*)Orientation\.\w+`)
	return re.ReplaceAllString(source, "${1}Orientation."+align)
}

// disableRoute inserts a route = False assignment after the declaration of a
// named port or net. Already-disabled elements are left untouched.
func disableRoute(source, name string) string {
	escaped := regexp.QuoteMeta(name)
	if regexp.MustCompile(`\b` + escaped + `(\.ref)?\.route\s*=\s*False`).MatchString(source) {
		return source
	}
	portDecl := regexp.MustCompile(`^port\s+` + escaped + `\s*\(`)
	netDecl := regexp.MustCompile(`^net\s+` + escaped + `\b`)

	lines := strings.Split(source, "\n")
	for i, line := range lines {
		stripped := strings.TrimLeft(line, " \t")
		indent := line[:len(line)-len(stripped)]

		if portDecl.MatchString(stripped) {
			lines = insertLine(lines, i+1, indent+name+".ref.route = False")
			return strings.Join(lines, "\n")
		}
		if netDecl.MatchString(stripped) {
			lines = insertLine(lines, i+1, indent+name+".route = False")
			return strings.Join(lines, "\n")
		}
	}
	return source
}

func insertLine(lines []string, at int, line string) []string {
	lines = append(lines, "")
	copy(lines[at+1:], lines[at:])
	lines[at] = line
	return lines
}
