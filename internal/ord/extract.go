// Package ord manipulates ORD source text. It extracts code from model
// replies, normalizes version headers and parameter defaults, strips
// helper boilerplate, and applies structured layout edits.
package ord

import (
	"errors"
	"regexp"
	"strings"
)

// VersionHeader is the directive every ORD file opens with.
const VersionHeader = "# -*- version: ord2 -*-"

// ErrNoCode reports a model reply that contains no usable code block.
var ErrNoCode = errors.New("no ord code block in reply")

var (
	ordFenceRe    = regexp.MustCompile("(?s)```ord\\s*\\n(.*?)```")
	pythonFenceRe = regexp.MustCompile("(?s)```python\\s*\\n(.*?)```")
	bareFenceRe   = regexp.MustCompile("(?s)```\\s*\\n(.*?)```")
	versionRe     = regexp.MustCompile(`(?i)^#.*version.*ord`)
)

// ExtractCode pulls ORD source out of a model reply. A fenced ```ord block
// wins, then a ```python block, then a bare fence whose body looks like ORD.
// The returned code always carries the version header.
func ExtractCode(reply string) (string, error) {
	for _, re := range []*regexp.Regexp{ordFenceRe, pythonFenceRe} {
		if m := re.FindStringSubmatch(reply); m != nil {
			return EnsureVersionHeader(strings.TrimSpace(m[1])), nil
		}
	}
	if m := bareFenceRe.FindStringSubmatch(reply); m != nil {
		code := strings.TrimSpace(m[1])
		if strings.Contains(code, "cell ") || strings.Contains(code, "from ordec") {
			return EnsureVersionHeader(code), nil
		}
	}
	return "", ErrNoCode
}

// EnsureVersionHeader prepends the ord2 directive when the source does not
// already start with a version comment.
func EnsureVersionHeader(source string) string {
	if versionRe.MatchString(source) {
		return source
	}
	return VersionHeader + "\n" + source
}
