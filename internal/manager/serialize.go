package manager

import (
	"time"

	"github.com/sandboxkit/corebundle/internal/cachefile"
	"github.com/sandboxkit/corebundle/internal/graph"
	"github.com/sandboxkit/corebundle/internal/store"
)

// Serialize captures every "non-precomputed" TM (one the manifest
// doesn't already supply verbatim), the resolver's directory cache,
// the configuration bundle, and a dependenciesQuery fingerprint used
// to invalidate the whole cache on a dependency-set change.
//
// optimizeForSize drops the inline source map from every persisted
// record — the largest compressible field — at the cost of losing
// mapped stack traces for a restored session.
func (m *Manager) Serialize(entryPath string, optimizeForSize bool) *cachefile.CacheFile {
	out := &cachefile.CacheFile{
		Version:           cachefile.ScriptVersion,
		Timestamp:         time.Now().Unix(),
		EntryPath:         entryPath,
		DependenciesQuery: m.manifest.DependenciesQuery(),
		Meta:              m.buildMetaIndex(),
		CachedPaths:       m.resolver.ExportCachedPaths(),
	}

	m.configMu.Lock()
	out.ConfigJSON = m.configJSON
	m.configMu.Unlock()

	for _, tm := range m.registry.All() {
		if m.isPrecomputed(tm) {
			continue
		}
		out.Modules = append(out.Modules, m.toRecord(tm, optimizeForSize))
	}

	return out
}

// isPrecomputed reports whether a TM should be omitted from the
// persisted set: the manifest already supplies its content verbatim,
// it required no transpile stage, and it was never fetched on demand.
// Such a TM is trivially reconstructed from the manifest the next time
// it's referenced, so persisting its bytes would only waste space.
func (m *Manager) isPrecomputed(tm *graph.TranspiledModule) bool {
	entry, fromManifest := m.manifest.Content(tm.Path)
	if !fromManifest {
		return false
	}
	mod := m.store.Get(tm.Path)
	if mod == nil || mod.Downloaded {
		return false
	}
	if len(m.preset.GetLoaders(tm.Path, tm.Query)) != 0 {
		return false
	}
	return tm.Source != nil && *tm.Source == entry.Content
}

func (m *Manager) toRecord(tm *graph.TranspiledModule, optimizeForSize bool) cachefile.TranspiledModuleRecord {
	rec := cachefile.TranspiledModuleRecord{
		Hash:  string(tm.Hash),
		Path:  tm.Path,
		Query: tm.Query,
		Hot: cachefile.HotConfigRecord{
			AcceptSelf: tm.Hot.AcceptSelf,
			Declined:   tm.Hot.Declined,
		},
		IsEntry:                tm.IsEntry,
		IsTestFile:              tm.IsTestFile,
		HasMissingDependencies:  tm.HasMissingDependencies,
	}
	if tm.Source != nil {
		rec.Source = *tm.Source
	}
	if !optimizeForSize {
		rec.SourceMap = tm.SourceMap
	}
	for _, a := range tm.Assets {
		rec.Assets = append(rec.Assets, cachefile.AssetRecord{Path: a.Path, Hash: string(a.Hash)})
	}
	for h := range tm.Dependencies {
		rec.DependencyHashes = append(rec.DependencyHashes, string(h))
	}
	for h := range tm.TranspilationDependencies {
		rec.TranspilationDependencyHashes = append(rec.TranspilationDependencyHashes, string(h))
	}
	for h := range tm.Initiators {
		rec.InitiatorHashes = append(rec.InitiatorHashes, string(h))
	}
	for h := range tm.TranspilationInitiators {
		rec.TranspilationInitiatorHashes = append(rec.TranspilationInitiatorHashes, string(h))
	}
	return rec
}

// buildMetaIndex groups the append-only combinedMetas path set by
// directory into a "directory -> filenames" index.
func (m *Manager) buildMetaIndex() map[string][]string {
	if len(m.combinedMetas) == 0 {
		return nil
	}
	out := make(map[string][]string)
	for p := range m.combinedMetas {
		dir, file := splitDirFile(p)
		out[dir] = append(out[dir], file)
	}
	return out
}

func splitDirFile(p string) (dir, file string) {
	idx := -1
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", p
	}
	return p[:idx], p[idx+1:]
}

// Load restores only when the version and dependenciesQuery
// fingerprints both match; otherwise it returns a CacheVersionMismatch
// and leaves the Manager's registry empty, with no error surfaced to
// the caller beyond the typed mismatch.
//
// Restoration is two-phase: every record is instantiated into a TM
// first (so every hash referenced by an edge exists), then edges are
// reconnected by hash. A dependency hash with no matching record is
// skipped rather than failing the whole restore: only that edge is
// dropped, silently, and the TM holding it is still restored.
func (m *Manager) Load(data *cachefile.CacheFile) error {
	if err := data.Validate(m.manifest.DependenciesQuery()); err != nil {
		return err
	}

	byOldHash := make(map[string]*graph.TranspiledModule, len(data.Modules))
	for _, rec := range data.Modules {
		tm := m.registry.GetOrCreate(rec.Path, rec.Query)
		tm.IsEntry = rec.IsEntry
		tm.IsTestFile = rec.IsTestFile
		tm.HasMissingDependencies = rec.HasMissingDependencies
		tm.Hot.AcceptSelf = rec.Hot.AcceptSelf
		tm.Hot.Declined = rec.Hot.Declined
		tm.SourceMap = rec.SourceMap
		if rec.Source != "" {
			src := rec.Source
			tm.Source = &src
		}
		for _, a := range rec.Assets {
			tm.Assets = append(tm.Assets, graph.EmittedChild{Path: a.Path, Hash: graph.Hash(a.Hash)})
			if mod := m.store.Get(a.Path); mod == nil {
				m.store.Add(&store.Module{Path: a.Path, Parent: tm.Path})
			}
		}
		byOldHash[rec.Hash] = tm
	}

	for _, rec := range data.Modules {
		tm, ok := byOldHash[rec.Hash]
		if !ok {
			continue
		}
		for _, h := range rec.DependencyHashes {
			if dep, ok := byOldHash[h]; ok {
				m.registry.Link(tm.Hash, dep.Hash, false)
			}
		}
		for _, h := range rec.TranspilationDependencyHashes {
			if dep, ok := byOldHash[h]; ok {
				m.registry.Link(tm.Hash, dep.Hash, true)
			}
		}
	}

	m.resolver.ImportCachedPaths(data.CachedPaths)

	m.configMu.Lock()
	m.configJSON = data.ConfigJSON
	m.configMu.Unlock()

	for dir, files := range data.Meta {
		for _, f := range files {
			m.combinedMetas[joinDirFile(dir, f)] = true
		}
	}

	return nil
}

func joinDirFile(dir, file string) string {
	if dir == "" {
		return file
	}
	return dir + "/" + file
}
