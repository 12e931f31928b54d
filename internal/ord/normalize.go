package ord

import (
	"regexp"
	"strings"
)

var (
	paramDeclRe = regexp.MustCompile(`^(\s*\w+\s*=\s*Parameter\(\s*)([^,)]+)(\s*\))(\s*(?:#.*)?)$`)

	helperLineRes = []*regexp.Regexp{
		regexp.MustCompile(`^\s*helpers\.symbol_place_pins\(ctx\.root.*\)\s*$`),
		regexp.MustCompile(`^\s*helpers\.resolve_instances\(ctx\.root\)\s*$`),
		regexp.MustCompile(`^\s*ctx\.root\.outline\s*=\s*schematic_routing\(ctx\.root\)\s*$`),
		regexp.MustCompile(`^\s*return\s+ctx\.root\s*$`),
	}
	routingImportRe = regexp.MustCompile(`(?m)^from ordec\.schematic\.routing import schematic_routing\n`)
)

// EnsureParameterDefaults rewrites bare Parameter(type) declarations to carry
// a default value, so cells instantiate without caller-supplied parameters:
// w = Parameter(R) becomes w = Parameter(R, default=1u).
func EnsureParameterDefaults(source string) string {
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		m := paramDeclRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		typeName := strings.TrimSpace(m[2])
		lines[i] = m[1] + typeName + ", default=" + paramDefault(typeName) + m[3] + m[4]
	}
	return strings.Join(lines, "\n")
}

func paramDefault(typeName string) string {
	base := typeName
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[i+1:]
	}
	switch base {
	case "int":
		return "2"
	case "R":
		return "1u"
	case "float":
		return "1.0"
	case "bool":
		return "False"
	case "str":
		return `"x"`
	}
	return "1"
}

// StripExplicitHelpers removes helper calls the toolchain injects on its own,
// returning the source in the compact form the example corpus is written in.
func StripExplicitHelpers(source string) string {
	var kept []string
	for _, line := range strings.Split(source, "\n") {
		if isHelperLine(line) {
			continue
		}
		kept = append(kept, line)
	}
	return routingImportRe.ReplaceAllString(strings.Join(kept, "\n"), "")
}

func isHelperLine(line string) bool {
	for _, re := range helperLineRes {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
