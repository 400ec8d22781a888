package graph

import "sync"

// GlobalStatus is the process-wide HMR status broadcast to registered
// listeners: check at start of transpile, apply during evaluate of
// dirty TMs, idle on success, fail on a forced hard reload, dispose on
// explicit teardown.
type GlobalStatus int

const (
	StatusIdle GlobalStatus = iota
	StatusCheck
	StatusApply
	StatusFail
	StatusDispose
)

func (s GlobalStatus) String() string {
	switch s {
	case StatusCheck:
		return "check"
	case StatusApply:
		return "apply"
	case StatusFail:
		return "fail"
	case StatusDispose:
		return "dispose"
	default:
		return "idle"
	}
}

// StatusListener receives global HMR status transitions.
type StatusListener func(GlobalStatus)

// Registry is the central hash→TM registry: the single owner of every
// TranspiledModule node. Edges between TMs are hash references held
// inside each TM; the Registry is what keeps forward and reverse edges
// in lockstep and performs invalidation propagation and disposal.
type Registry struct {
	mu        sync.Mutex
	modules   map[Hash]*TranspiledModule
	listeners []StatusListener
	status    GlobalStatus
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[Hash]*TranspiledModule)}
}

// AddStatusListener registers l to receive future global status
// transitions.
func (r *Registry) AddStatusListener(l StatusListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

// SetStatus transitions the global HMR status and notifies listeners.
func (r *Registry) SetStatus(s GlobalStatus) {
	r.mu.Lock()
	r.status = s
	listeners := append([]StatusListener(nil), r.listeners...)
	r.mu.Unlock()
	for _, l := range listeners {
		l(s)
	}
}

// Status returns the current global HMR status.
func (r *Registry) Status() GlobalStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Get returns the TM for hash, or nil if not registered.
func (r *Registry) Get(hash Hash) *TranspiledModule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modules[hash]
}

// GetByPathQuery looks up a TM by its (path, query) pair.
func (r *Registry) GetByPathQuery(path, query string) *TranspiledModule {
	return r.Get(ComputeHash(path, query))
}

// All returns a snapshot slice of every registered TM.
func (r *Registry) All() []*TranspiledModule {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*TranspiledModule, 0, len(r.modules))
	for _, tm := range r.modules {
		out = append(out, tm)
	}
	return out
}

// GetOrCreate returns the TM for (path, query), creating and
// registering one if none exists yet — TMs are created lazily on
// first reference.
func (r *Registry) GetOrCreate(path, query string) *TranspiledModule {
	hash := ComputeHash(path, query)
	r.mu.Lock()
	defer r.mu.Unlock()
	if tm, ok := r.modules[hash]; ok {
		return tm
	}
	tm := New(path, query)
	r.modules[hash] = tm
	return tm
}

// Link records a forward edge from.Hash -> to.Hash and its
// corresponding reverse edge on the target, keeping both directions in
// lockstep. transpilation selects which edge pair (dependencies/
// initiators vs transpilationDependencies/transpilationInitiators) is
// recorded.
func (r *Registry) Link(from, to Hash, transpilation bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fromTM, ok := r.modules[from]
	if !ok {
		return
	}
	toTM, ok := r.modules[to]
	if !ok {
		return
	}
	if transpilation {
		fromTM.TranspilationDependencies[to] = struct{}{}
		toTM.TranspilationInitiators[from] = struct{}{}
		return
	}
	fromTM.Dependencies[to] = struct{}{}
	toTM.Initiators[from] = struct{}{}
}

// UnlinkAll clears every forward edge owned by from (both kinds) and
// removes from's corresponding reverse-edge entries from the targets
// it used to point to. Called before retranspiling a TM, since its new
// output may reference a different dependency set.
func (r *Registry) UnlinkAll(from Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fromTM, ok := r.modules[from]
	if !ok {
		return
	}
	for to := range fromTM.Dependencies {
		if toTM, ok := r.modules[to]; ok {
			delete(toTM.Initiators, from)
		}
	}
	for to := range fromTM.TranspilationDependencies {
		if toTM, ok := r.modules[to]; ok {
			delete(toTM.TranspilationInitiators, from)
		}
	}
	fromTM.Dependencies = make(map[Hash]struct{})
	fromTM.TranspilationDependencies = make(map[Hash]struct{})
}

// Invalidate clears the target TM's source and compilation and marks
// it dirty, then propagates along reverse edges: fully (source and
// compilation, since they must retranspile too) through
// transpilationInitiators, and compilation-only through plain
// initiators, since they must re-evaluate but their own transpiled
// output is still valid.
func (r *Registry) Invalidate(hash Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateFull(hash, make(map[Hash]bool))
}

func (r *Registry) invalidateFull(hash Hash, seen map[Hash]bool) {
	if seen[hash] {
		return
	}
	seen[hash] = true
	tm, ok := r.modules[hash]
	if !ok {
		return
	}
	tm.resetTranspileState()
	if tm.State != StateDisposed {
		tm.State = StateDirty
	}
	for initiator := range tm.Initiators {
		r.invalidateCompilationOnly(initiator, seen)
	}
	for initiator := range tm.TranspilationInitiators {
		r.invalidateFull(initiator, seen)
	}
}

func (r *Registry) invalidateCompilationOnly(hash Hash, seen map[Hash]bool) {
	if seen[hash] {
		return
	}
	seen[hash] = true
	tm, ok := r.modules[hash]
	if !ok {
		return
	}
	tm.Compilation = nil
	if tm.State != StateDisposed {
		tm.State = StateDirty
	}
	for initiator := range tm.Initiators {
		r.invalidateCompilationOnly(initiator, seen)
	}
	for initiator := range tm.TranspilationInitiators {
		r.invalidateFull(initiator, seen)
	}
}

// Dispose removes hash from the registry and from every neighbor's
// edge sets: both reverse-edge sets of every neighbor, and the
// hash-indexed registry itself.
func (r *Registry) Dispose(hash Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tm, ok := r.modules[hash]
	if !ok {
		return
	}
	if tm.Hot.DisposeHandler != nil {
		tm.Hot.DisposeHandler()
	}
	for to := range tm.Dependencies {
		if toTM, ok := r.modules[to]; ok {
			delete(toTM.Initiators, hash)
		}
	}
	for to := range tm.TranspilationDependencies {
		if toTM, ok := r.modules[to]; ok {
			delete(toTM.TranspilationInitiators, hash)
		}
	}
	for initiator := range tm.Initiators {
		if initTM, ok := r.modules[initiator]; ok {
			delete(initTM.Dependencies, hash)
			initTM.HasMissingDependencies = true
			initTM.Errors = append(initTM.Errors, ErrDanglingReference)
		}
	}
	for initiator := range tm.TranspilationInitiators {
		if initTM, ok := r.modules[initiator]; ok {
			delete(initTM.TranspilationDependencies, hash)
		}
	}
	tm.State = StateDisposed
	delete(r.modules, hash)
}

// FindAllForPath returns every registered TM variant (one per query)
// for path, used to propagate an OnUpdate across all loader variants
// of the same Module.
func (r *Registry) FindAllForPath(path string) []*TranspiledModule {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*TranspiledModule
	for _, tm := range r.modules {
		if tm.Path == path {
			out = append(out, tm)
		}
	}
	return out
}

// DisposeAllForPath disposes every TM variant (every query) registered
// under path, used when the Module Store removes a path entirely.
func (r *Registry) DisposeAllForPath(path string) {
	r.mu.Lock()
	var toDispose []Hash
	for hash, tm := range r.modules {
		if tm.Path == path {
			toDispose = append(toDispose, hash)
		}
	}
	r.mu.Unlock()
	for _, hash := range toDispose {
		r.Dispose(hash)
	}
}

// Reset clears the entire registry and global status, used by
// ClearCache/configuration changes that invalidate every TM at once.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.modules = make(map[Hash]*TranspiledModule)
	r.status = StatusIdle
	r.mu.Unlock()
}
