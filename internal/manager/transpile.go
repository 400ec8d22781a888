package manager

import (
	"sync"

	"github.com/sandboxkit/corebundle/internal/graph"
	"github.com/sandboxkit/corebundle/internal/preset"
	"github.com/sandboxkit/corebundle/internal/sberrors"
	"github.com/sandboxkit/corebundle/internal/store"
	"github.com/sandboxkit/corebundle/internal/vpath"
)

// TranspileModules walks entry's dependency graph through
// Resolver -> Preset -> TranspiledModule, transpiling every reachable
// dirty TM. Concurrent transpilation of sibling dependencies is
// bounded by an errgroup.
func (m *Manager) TranspileModules(entry string, isTestFile bool) ([]*graph.TranspiledModule, error) {
	m.registry.SetStatus(graph.StatusCheck)

	query, path := vpath.SplitQuery(entry)
	entryTM := m.registry.GetOrCreate(path, query)
	entryTM.IsEntry = true
	entryTM.IsTestFile = isTestFile

	walk := &transpileWalk{visited: make(map[graph.Hash]bool)}

	if err := m.transpileRecursive(entryTM, walk); err != nil {
		m.registry.SetStatus(graph.StatusFail)
		return walk.touched, err
	}

	// Retry any previously-missing-dependency TM not already visited
	// this pass.
	for _, tm := range m.missingDependencyTMs() {
		if walk.has(tm.Hash) {
			continue
		}
		if err := m.transpileRecursive(tm, walk); err != nil {
			m.registry.SetStatus(graph.StatusFail)
			return walk.touched, err
		}
	}

	m.registry.SetStatus(graph.StatusIdle)
	return walk.touched, nil
}

// transpileWalk tracks the set of TMs visited and touched during one
// TranspileModules call, guarded by a mutex since sibling dependencies
// transpile concurrently.
type transpileWalk struct {
	mu      sync.Mutex
	visited map[graph.Hash]bool
	touched []*graph.TranspiledModule
}

func (w *transpileWalk) has(h graph.Hash) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visited[h]
}

// claim marks h visited and reports whether this call was the first
// to do so.
func (w *transpileWalk) claim(h graph.Hash) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.visited[h] {
		return false
	}
	w.visited[h] = true
	return true
}

func (w *transpileWalk) record(tm *graph.TranspiledModule) {
	w.mu.Lock()
	w.touched = append(w.touched, tm)
	w.mu.Unlock()
}

func (m *Manager) transpileRecursive(tm *graph.TranspiledModule, walk *transpileWalk) error {
	if !walk.claim(tm.Hash) {
		return nil
	}

	if err := m.transpileOne(tm); err != nil {
		return err
	}
	walk.record(tm)

	deps := dependencyHashes(tm)
	g, _ := newErrgroup()
	for _, depHash := range deps {
		depHash := depHash
		g.Go(func() error {
			depTM := m.registry.Get(depHash)
			if depTM == nil {
				return nil
			}
			return m.transpileRecursive(depTM, walk)
		})
	}
	return g.Wait()
}

func dependencyHashes(tm *graph.TranspiledModule) []graph.Hash {
	out := make([]graph.Hash, 0, len(tm.Dependencies)+len(tm.TranspilationDependencies))
	for h := range tm.Dependencies {
		out = append(out, h)
	}
	for h := range tm.TranspilationDependencies {
		out = append(out, h)
	}
	return out
}

// transpileOne transpiles a single TM if needed, deduplicating
// concurrent callers through transpileJobs keyed by hash: the same TM
// is never transpiled twice in parallel, later callers await the
// first job's result.
func (m *Manager) transpileOne(tm *graph.TranspiledModule) error {
	if !tm.ShouldTranspile() {
		return nil
	}

	m.transpileJobsMu.Lock()
	if job, inFlight := m.transpileJobs[tm.Hash]; inFlight {
		m.transpileJobsMu.Unlock()
		<-job
		m.transpileJobsMu.Lock()
		err := m.transpileErrs[tm.Hash]
		m.transpileJobsMu.Unlock()
		return err
	}
	job := make(chan struct{})
	m.transpileJobs[tm.Hash] = job
	m.transpileJobsMu.Unlock()

	err := m.doTranspile(tm)

	m.transpileJobsMu.Lock()
	m.transpileErrs[tm.Hash] = err
	delete(m.transpileJobs, tm.Hash)
	m.transpileJobsMu.Unlock()
	close(job)

	return err
}

func (m *Manager) doTranspile(tm *graph.TranspiledModule) error {
	mod := m.store.Get(tm.Path)
	if mod == nil {
		return &sberrors.IOError{Path: tm.Path, Op: "readFile"}
	}

	m.registry.UnlinkAll(tm.Hash)

	code := mod.Code
	var emitted []graph.EmittedChild
	var stageRequires, stageTranspilationDeps []string
	for _, t := range m.preset.GetLoaders(tm.Path, tm.Query) {
		result, err := t.Transpile(code, preset.LoaderContext{Path: tm.Path, Query: tm.Query})
		if err != nil {
			tm.Errors = append(tm.Errors, err)
			return err
		}
		code = result.Code
		if result.SourceMap != "" {
			tm.SourceMap = result.SourceMap
		}
		for _, asset := range result.Assets {
			m.store.Add(&store.Module{Path: asset.Path, Code: asset.Code, Parent: tm.Path})
			childTM := m.registry.GetOrCreate(asset.Path, "")
			emitted = append(emitted, graph.EmittedChild{Path: asset.Path, Hash: childTM.Hash})
		}
		stageRequires = append(stageRequires, result.Dependencies...)
		stageTranspilationDeps = append(stageTranspilationDeps, result.TranspilationDependencies...)
	}
	tm.Assets = emitted

	requires := mod.Requires
	if requires == nil {
		requires = scanRequires(code)
	}
	requires = append(append([]string(nil), requires...), stageRequires...)

	tm.HasMissingDependencies = false
	var missing error
	for _, request := range requires {
		if request == "" {
			continue
		}
		resolvedPath, err := m.resolvePath(request, tm.Path)
		if err != nil {
			if _, ok := err.(*sberrors.DependencyNotFoundError); ok {
				tm.HasMissingDependencies = true
				missing = err
				continue
			}
			tm.Errors = append(tm.Errors, err)
			return err
		}
		depTM := m.registry.GetOrCreate(resolvedPath, "")
		m.registry.Link(tm.Hash, depTM.Hash, false)
	}
	for _, request := range stageTranspilationDeps {
		resolvedPath, err := m.resolvePath(request, tm.Path)
		if err != nil {
			tm.Errors = append(tm.Errors, err)
			return err
		}
		depTM := m.registry.GetOrCreate(resolvedPath, "")
		m.registry.Link(tm.Hash, depTM.Hash, true)
	}

	tm.Source = &code
	if missing != nil {
		return missing
	}
	return nil
}
