package manifest

import "sort"

// LockfilePackage is the subset of an npm-lockfile package entry the
// alias builder needs: its lockfile path and resolved version.
type LockfilePackage struct {
	// Path is the lockfile key, e.g. "node_modules/react-dom/node_modules/react".
	Path string
	// Version is this package's resolved version.
	Version string
}

// BuildAliases detects nested packages whose resolved version differs
// from the top-level version of the same name, and produces a
// dependencyAliases table that rewrites lookups of that name from
// within the conflicting parent's subtree to a version-qualified path:
// dependencyAliases[parent][name] = "<name>/<version>", letting two
// versions of the same library coexist under distinct node_modules
// roots.
func BuildAliases(packages []LockfilePackage) map[string]map[string]string {
	topLevelVersions := make(map[string]string)
	for _, pkg := range packages {
		if isNestedPath(pkg.Path) {
			continue
		}
		name := extractPackageName(pkg.Path)
		if name != "" {
			topLevelVersions[name] = pkg.Version
		}
	}

	aliases := make(map[string]map[string]string)
	for _, pkg := range packages {
		if !isNestedPath(pkg.Path) {
			continue
		}
		name := extractPackageName(pkg.Path)
		if name == "" {
			continue
		}
		topVer, exists := topLevelVersions[name]
		if !exists || pkg.Version == topVer {
			continue
		}

		parentPath := extractParentPackagePath(pkg.Path)
		parentName := extractPackageName(parentPath)
		if parentName == "" {
			continue
		}

		if aliases[parentName] == nil {
			aliases[parentName] = make(map[string]string)
		}
		aliases[parentName][name] = name + "/" + pkg.Version
	}
	return aliases
}

// SortedParents returns the parent dependency names in an aliases
// table, sorted — a small convenience for deterministic output.
func SortedParents(aliases map[string]map[string]string) []string {
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const nodeModulesPrefix = "node_modules/"

func extractPackageName(path string) string {
	idx := lastIndex(path, nodeModulesPrefix)
	if idx < 0 {
		return ""
	}
	return path[idx+len(nodeModulesPrefix):]
}

func isNestedPath(path string) bool {
	return count(path, nodeModulesPrefix) > 1
}

func extractParentPackagePath(path string) string {
	idx := lastIndex(path, "/"+nodeModulesPrefix)
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

func lastIndex(s, substr string) int {
	last := -1
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			last = i
		}
	}
	return last
}

func count(s, substr string) int {
	n := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			n++
			i += len(substr) - 1
		}
	}
	return n
}
