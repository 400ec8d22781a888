// Package manager implements the Manager: the orchestrator that owns
// the Module Store and TM registry, drives transpilation and
// evaluation, and answers incremental updates.
//
// Concurrent transpilation of independent dependencies fans out one
// transpile per dirty TM through an errgroup bounded by
// runtime.NumCPU().
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sandboxkit/corebundle/internal/graph"
	"github.com/sandboxkit/corebundle/internal/manifest"
	"github.com/sandboxkit/corebundle/internal/preset"
	"github.com/sandboxkit/corebundle/internal/resolver"
	"github.com/sandboxkit/corebundle/internal/store"
)

// FileResolver is the optional host-process protocol bridge: consulted
// only when the in-memory Store lacks a path during transpilation.
// Evaluation never falls back to it.
type FileResolver interface {
	IsFile(path string) (bool, error)
	ReadFile(path string) (string, error)
}

// Options configures a Manager.
type Options struct {
	Extensions         []string
	ModuleDirectories  []string
	BrowserFilterSkip  []string
	HasFileResolver    bool
	HardReloadOnChange bool
}

// Manager is the top-level orchestrator: it owns the Module Store and
// TM registry, and exposes transpileModules/evaluateModule/updateData/
// serialize/load/dispose.
type Manager struct {
	ID     string
	preset preset.Preset

	store    *store.Store
	manifest *manifest.Manifest
	resolver *resolver.Resolver
	registry *graph.Registry

	opts Options

	fileResolver FileResolver

	transpileJobsMu sync.Mutex
	transpileJobs   map[graph.Hash]chan struct{}
	transpileErrs   map[graph.Hash]error

	pendingHardReload bool

	configMu   sync.Mutex
	configJSON string

	// combinedMetas is the append-only set of known npm file paths
	// seen across fetched manifest metas during this session; cleared
	// by ClearCache/DeleteAPICache.
	combinedMetas map[string]bool

	evalOnce sync.Once
	eval     *evalState
}

// New constructs a Manager over the given initial modules. ready, if
// non-nil, is invoked once the Manager is fully configured.
func New(id string, p preset.Preset, modules map[string]*store.Module, opts Options, ready func()) *Manager {
	s := store.New()

	m := &Manager{
		ID:            id,
		preset:        p,
		store:         s,
		registry:      graph.NewRegistry(),
		opts:          opts,
		transpileJobs: make(map[graph.Hash]chan struct{}),
		transpileErrs: make(map[graph.Hash]error),
		combinedMetas: make(map[string]bool),
	}
	m.resolver = resolver.New(s, nil, resolver.Options{
		Extensions:        opts.Extensions,
		ModuleDirectories: opts.ModuleDirectories,
		BrowserFilterSkip: opts.BrowserFilterSkip,
	})
	s.AddListener(m)

	for _, mod := range modules {
		s.Add(mod)
	}

	if ready != nil {
		ready()
	}
	return m
}

// SetManifest installs the packager's manifest wholesale and rebuilds
// the resolver over it.
func (m *Manager) SetManifest(man *manifest.Manifest) {
	m.manifest = man
	m.resolver = resolver.New(m.store, man, resolver.Options{
		Extensions:        m.opts.Extensions,
		ModuleDirectories: m.opts.ModuleDirectories,
		BrowserFilterSkip: m.opts.BrowserFilterSkip,
	})
}

// SetFileResolver installs the optional host-process protocol bridge.
func (m *Manager) SetFileResolver(fr FileResolver) { m.fileResolver = fr }

// Store exposes the Manager's Module Store (read access only is
// expected from callers other than updateData).
func (m *Manager) Store() *store.Store { return m.store }

// Registry exposes the Manager's TM registry for introspection.
func (m *Manager) Registry() *graph.Registry { return m.registry }

// resolvePath applies preset aliasing and then runs the Resolver's
// pipeline, falling back to the file-resolver bridge when the Store
// has no local match and a bridge is configured: every path the
// resolver would have probed locally is offered to the bridge in the
// same order, and the first one it reports as a file is added to the
// Store and returned.
func (m *Manager) resolvePath(request, fromPath string) (string, error) {
	if m.preset != nil {
		request = m.preset.GetAliasedPath(request)
	}
	resolved, err := m.resolver.ResolvePath(request, fromPath)
	if err == nil {
		return resolved, nil
	}
	if m.fileResolver == nil {
		return "", err
	}
	for _, candidate := range m.resolver.CandidatePaths(request, fromPath) {
		ok, ferr := m.fileResolver.IsFile(candidate)
		if ferr != nil || !ok {
			continue
		}
		content, ferr := m.fileResolver.ReadFile(candidate)
		if ferr != nil {
			continue
		}
		mod := &store.Module{Path: candidate, Code: content, Downloaded: true}
		m.store.Add(mod)
		return candidate, nil
	}
	return "", err
}

// OnAdd implements store.Listener. TMs are created lazily on first
// reference, so a plain add requires no eager bookkeeping.
func (m *Manager) OnAdd(mod *store.Module) {}

// OnUpdate implements store.Listener: invalidates every TM variant
// registered for the updated path.
func (m *Manager) OnUpdate(mod *store.Module) {
	for _, tm := range m.registry.FindAllForPath(mod.Path) {
		m.registry.Invalidate(tm.Hash)
	}
}

// OnRemove implements store.Listener: disposes every TM variant
// registered for the removed path.
func (m *Manager) OnRemove(mod *store.Module) {
	m.registry.DisposeAllForPath(mod.Path)
}

// Dispose tears down the Manager: disposes transpiler resources that
// implement preset.Disposable and resets the TM registry.
func (m *Manager) Dispose() {
	m.registry.SetStatus(graph.StatusDispose)
	if m.preset != nil {
		for _, t := range m.preset.Transpilers() {
			if d, ok := t.(preset.Disposable); ok {
				d.Dispose()
			}
		}
	}
	m.registry.Reset()
}

// ClearCache resets the TM registry, the resolver's directory cache
// and combinedMetas, without touching the Module Store itself.
func (m *Manager) ClearCache() {
	m.registry.Reset()
	m.resolver.InvalidateCache()
	m.combinedMetas = make(map[string]bool)
}

// DeleteAPICache clears combinedMetas, the append-only set of known
// npm file paths accumulated from fetched manifest metas.
func (m *Manager) DeleteAPICache() {
	m.combinedMetas = make(map[string]bool)
}

// GetModuleDirectories returns a copy of Options.ModuleDirectories as
// the Manager was configured with it. It reads neither a tsconfig
// baseUrl nor the NODE_PATH environment variable itself.
func (m *Manager) GetModuleDirectories() []string {
	return append([]string(nil), m.opts.ModuleDirectories...)
}

// UpdateConfigurations deep-compares parsed against the stored
// configuration bundle; if it differs, every TM's source/compilation
// is reset since any transpiler's behavior may depend on it.
func (m *Manager) UpdateConfigurations(parsed map[string]interface{}) error {
	encoded, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("manager: encode configuration: %w", err)
	}

	m.configMu.Lock()
	changed := string(encoded) != m.configJSON
	m.configJSON = string(encoded)
	m.configMu.Unlock()

	if changed {
		m.registry.Reset()
		m.resolver.InvalidateCache()
	}
	return nil
}

// missingDependencyTMs returns every TM currently flagged
// hasMissingDependencies, resetting its transpile state so it will be
// retried on the next transpile pass.
func (m *Manager) missingDependencyTMs() []*graph.TranspiledModule {
	var out []*graph.TranspiledModule
	for _, tm := range m.registry.All() {
		if tm.HasMissingDependencies {
			tm.HasMissingDependencies = false
			tm.Source = nil
			out = append(out, tm)
		}
	}
	return out
}

func newErrgroup() (*errgroup.Group, context.Context) {
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(runtime.NumCPU())
	return g, ctx
}

var _ store.Listener = (*Manager)(nil)
