// Package vpath normalizes virtual-filesystem paths and splits the
// loader-query prefix ("loader1!loader2!path") from a module path.
package vpath

import (
	"path"
	"strings"
)

// EmptyModulePath is the sentinel path that resolves to the Node
// built-in empty shim.
const EmptyModulePath = "/node_modules/empty/index.js"

// EmptySpecifier is the request string that always resolves to the
// empty shim, regardless of the path it's requested from.
const EmptySpecifier = "//empty.js"

// Normalize cleans a POSIX virtual path: collapses "." and "..",
// removes duplicate slashes, and ensures a single leading slash.
func Normalize(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "/"
	}
	return cleaned
}

// Dirname returns the normalized parent directory of p.
func Dirname(p string) string {
	return Normalize(path.Dir(Normalize(p)))
}

// Join joins a base directory and a relative request into a normalized
// virtual path.
func Join(dir, request string) string {
	return Normalize(path.Join(dir, request))
}

// SplitQuery splits a request of the form "loader1!loader2!path" into
// its query prefix ("loader1!loader2") and the remaining path. A
// request with no "!" has an empty query. Loader specifiers with their
// own query-string suffixes (e.g. "loader?opt=1!path") are preserved
// verbatim in the returned query segment.
func SplitQuery(request string) (query string, modulePath string) {
	idx := strings.LastIndex(request, "!")
	if idx < 0 {
		return "", request
	}
	return request[:idx], request[idx+1:]
}

// JoinQuery re-assembles a query prefix and module path into a single
// request string, inverse of SplitQuery.
func JoinQuery(query, modulePath string) string {
	if query == "" {
		return modulePath
	}
	return query + "!" + modulePath
}

// Loaders splits a non-empty query into its ordered "!"-separated
// loader specifiers.
func Loaders(query string) []string {
	if query == "" {
		return nil
	}
	return strings.Split(query, "!")
}

// IsRelative reports whether a request string is a relative or
// absolute virtual-FS path (as opposed to a bare module specifier).
func IsRelative(request string) bool {
	return strings.HasPrefix(request, "./") ||
		strings.HasPrefix(request, "../") ||
		strings.HasPrefix(request, "/") ||
		request == "." || request == ".."
}

// PackageName extracts the npm package name from a bare specifier.
// "react" -> "react", "react-dom/client" -> "react-dom",
// "@scope/pkg/sub" -> "@scope/pkg".
func PackageName(specifier string) string {
	if strings.HasPrefix(specifier, "@") {
		parts := strings.SplitN(specifier, "/", 3)
		if len(parts) >= 2 {
			return parts[0] + "/" + parts[1]
		}
		return specifier
	}
	parts := strings.SplitN(specifier, "/", 2)
	return parts[0]
}

// NodeModulesDependency returns the top-level dependency name a path
// lies under when it is rooted at "/node_modules/<name>/...", and true
// if it matched. Handles scoped packages.
func NodeModulesDependency(p string) (name string, ok bool) {
	const prefix = "/node_modules/"
	if !strings.HasPrefix(p, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(p, prefix)
	if rest == "" {
		return "", false
	}
	if strings.HasPrefix(rest, "@") {
		parts := strings.SplitN(rest, "/", 3)
		if len(parts) < 2 {
			return "", false
		}
		return parts[0] + "/" + parts[1], true
	}
	parts := strings.SplitN(rest, "/", 2)
	return parts[0], true
}
