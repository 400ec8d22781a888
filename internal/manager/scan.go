package manager

import "regexp"

// importSpecRe matches bare and relative import/require specifiers in transpiled
// JS source — used here as the dependency-discovery fallback for any
// Module the packager did not pre-compute a Requires list for.
var importSpecRe = regexp.MustCompile(`(?:from\s+|import\s*\(\s*|import\s+|require\s*\(\s*)["']([^"']+)["']`)

// scanRequires extracts the ordered, de-duplicated set of bare and
// relative specifiers referenced by code.
func scanRequires(code string) []string {
	matches := importSpecRe.FindAllStringSubmatch(code, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		spec := m[1]
		if seen[spec] {
			continue
		}
		seen[spec] = true
		out = append(out, spec)
	}
	return out
}
