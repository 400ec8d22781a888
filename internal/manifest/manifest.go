// Package manifest absorbs the packager's precomputed dependency
// content, per-dependency parent metadata, and the alias table used for
// version-split deduping.
package manifest

import (
	"sort"
	"strings"
)

// ContentEntry is the packager's precomputed content for one path.
type ContentEntry struct {
	Content  string
	Requires []string
}

// Dependency is one top-level dependency the manifest knows about.
type Dependency struct {
	Name    string
	Version string
}

// DependencyInfo describes one nested dependency resolution, keyed by
// name in Manifest.DependencyDependencies.
type DependencyInfo struct {
	Semver   string
	Resolved string
	Parents  []string
}

// Manifest is the packager's precomputed dependency bundle.
type Manifest struct {
	// Contents maps a virtual path to its precomputed source + literal
	// requires, as supplied by the remote packager service.
	Contents map[string]ContentEntry

	// Dependencies lists the top-level dependencies of the sandbox.
	Dependencies []Dependency

	// DependencyDependencies maps a nested dependency name to its
	// resolution metadata, including which parents pulled it in.
	DependencyDependencies map[string]DependencyInfo

	// DependencyAliases maps a parent dependency name to a table of
	// requiredName -> actualName rewrites, the mechanism that allows
	// two versions of the same library to coexist under distinct
	// /node_modules/<actualName> roots. See BuildAliases for how this
	// is derived from a raw dependency graph.
	DependencyAliases map[string]map[string]string
}

// New returns an empty Manifest.
func New() *Manifest {
	return &Manifest{
		Contents:               make(map[string]ContentEntry),
		DependencyDependencies: make(map[string]DependencyInfo),
		DependencyAliases:      make(map[string]map[string]string),
	}
}

// HasDependency reports whether name is a known top-level or nested
// dependency.
func (m *Manifest) HasDependency(name string) bool {
	if m == nil {
		return false
	}
	for _, d := range m.Dependencies {
		if d.Name == name {
			return true
		}
	}
	_, ok := m.DependencyDependencies[name]
	return ok
}

// ResolveAlias rewrites requiredName when requested from within
// /node_modules/<parent>/... and the manifest declares an alias for
// it. Returns ("", false) when no alias applies.
func (m *Manifest) ResolveAlias(parent, requiredName string) (string, bool) {
	if m == nil {
		return "", false
	}
	table, ok := m.DependencyAliases[parent]
	if !ok {
		return "", false
	}
	actual, ok := table[requiredName]
	return actual, ok
}

// Content returns the packager-precomputed content for path, if any.
func (m *Manifest) Content(path string) (ContentEntry, bool) {
	if m == nil {
		return ContentEntry{}, false
	}
	e, ok := m.Contents[path]
	return e, ok
}

// DependenciesQuery canonically encodes the manifest's top-level
// dependency set (name@version, sorted, comma-joined) as a cache key:
// a persisted cache is discarded whenever this string no longer
// matches the current manifest's.
func (m *Manifest) DependenciesQuery() string {
	if m == nil || len(m.Dependencies) == 0 {
		return ""
	}
	entries := make([]string, 0, len(m.Dependencies))
	for _, d := range m.Dependencies {
		entries = append(entries, d.Name+"@"+d.Version)
	}
	sort.Strings(entries)
	return strings.Join(entries, ",")
}
