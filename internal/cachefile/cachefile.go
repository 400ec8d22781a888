// Package cachefile defines the on-the-wire serialized form of a
// Manager's transpile graph and the version/dependency checks that
// gate restoring it. It holds plain data only — the two-phase restore
// walk that turns a CacheFile back into live TranspiledModules lives
// in internal/manager, which is the only package that knows about the
// graph/store/resolver types.
package cachefile

import "github.com/sandboxkit/corebundle/internal/sberrors"

// ScriptVersion is bumped whenever the serialized shape changes in a
// way that makes older caches unsafe to restore.
const ScriptVersion = 1

// AssetRecord is a persisted reference to a child Module a TM's
// transpile stage emitted (e.g. extracted CSS).
type AssetRecord struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// HotConfigRecord persists the two HMR policy flags that matter across
// a reload; AcceptDeps/DisposeHandler are closures and never survive
// serialization.
type HotConfigRecord struct {
	AcceptSelf bool `json:"acceptSelf"`
	Declined   bool `json:"declined"`
}

// TranspiledModuleRecord is one TM's serialized form: hash, path,
// query, source, assets, dependency hashes, initiator hashes,
// hmrConfig, and flags. Only non-precomputed TMs get a record at all —
// see the "non-precomputed" skip rule documented on Serialize in
// internal/manager.
type TranspiledModuleRecord struct {
	Hash  string `json:"hash"`
	Path  string `json:"path"`
	Query string `json:"query"`

	Source    string `json:"source"`
	SourceMap string `json:"sourceMap,omitempty"`
	Assets    []AssetRecord `json:"assets,omitempty"`

	DependencyHashes              []string `json:"dependencyHashes,omitempty"`
	TranspilationDependencyHashes []string `json:"transpilationDependencyHashes,omitempty"`
	InitiatorHashes               []string `json:"initiatorHashes,omitempty"`
	TranspilationInitiatorHashes  []string `json:"transpilationInitiatorHashes,omitempty"`

	Hot HotConfigRecord `json:"hot"`

	IsEntry                bool `json:"isEntry"`
	IsTestFile             bool `json:"isTestFile"`
	HasMissingDependencies bool `json:"hasMissingDependencies"`
}

// CacheFile is the full record a cache dump produces.
type CacheFile struct {
	Version           int                          `json:"version"`
	Timestamp         int64                        `json:"timestamp"`
	EntryPath         string                       `json:"entryPath"`
	ConfigJSON        string                       `json:"configuration,omitempty"`
	DependenciesQuery string                       `json:"dependenciesQuery"`
	Meta              map[string][]string          `json:"meta,omitempty"`
	CachedPaths       map[string]map[string]string `json:"cachedPaths,omitempty"`
	Modules           []TranspiledModuleRecord      `json:"modules"`
}

// Validate gates a restore: it only proceeds when the script version
// and dependency fingerprint both match; otherwise the whole cache is
// discarded (CacheVersionMismatch is non-fatal — callers treat it as
// "start from an empty registry").
func (c *CacheFile) Validate(currentDependenciesQuery string) error {
	if c == nil {
		return &sberrors.CacheVersionMismatch{Reason: "no cache data"}
	}
	if c.Version != ScriptVersion {
		return &sberrors.CacheVersionMismatch{Reason: "script version mismatch"}
	}
	if c.DependenciesQuery != currentDependenciesQuery {
		return &sberrors.CacheVersionMismatch{Reason: "dependenciesQuery mismatch"}
	}
	return nil
}
