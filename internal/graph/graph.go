// Package graph implements the Transpiled Module (TM): one compiled
// variant of a Module under a given loader-query prefix, and the unit
// of the compile graph that links TMs into a dependency DAG.
//
// Edges between TMs are stored as hash references rather than direct
// pointers: a central hash->TM registry owns the nodes, disposal is
// explicit, and there are no reference-counting loops to unwind.
package graph

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
)

// Hash is the deterministic identity of a TranspiledModule, a
// one-to-one function of (path, query).
type Hash string

// ComputeHash returns the deterministic hash of a (path, query) pair.
func ComputeHash(path, query string) Hash {
	h := sha1.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(path))
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// ErrDanglingReference marks a TM whose source Module was deleted from
// the Store while it was still referenced by live initiators: such TMs
// are marked errored rather than left silently dangling.
var ErrDanglingReference = errors.New("graph: source module deleted while still referenced by live initiators")

// HMRState is the TM's transient position in the per-module HMR state
// machine: idle, dirty or disposed. Status combines it with the
// HotConfig flags to report accepted and declined as well.
type HMRState int

const (
	StateIdle HMRState = iota
	StateDirty
	StateDisposed
)

func (s HMRState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDirty:
		return "dirty"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// HotConfig records the HMR policy a module's own code registered via
// `module.hot`. AcceptSelf/AcceptDeps/Declined/DisposeHandler persist
// independent of the transient idle/dirty/disposed State — a module
// can be both "dirty" and "declared hot.accept(self)" at once, which
// Status reports as "accepted". EvaluateModule re-evaluates every
// dirty TM in place whether or not it set AcceptSelf, and a dirty
// Declined TM does not trigger a hard reload.
type HotConfig struct {
	AcceptSelf     bool
	AcceptDeps     map[Hash]func(exports interface{})
	Declined       bool
	DisposeHandler func()
}

// Status reports one of five named HMR states, combining the
// transient State with the HotConfig policy flags even though the
// underlying fields are kept orthogonal internally.
func (tm *TranspiledModule) Status() string {
	switch tm.State {
	case StateDisposed:
		return "disposed"
	case StateDirty:
		if tm.Hot.Declined {
			return "declined"
		}
		if tm.Hot.AcceptSelf {
			return "accepted"
		}
		return "dirty"
	default:
		return "idle"
	}
}

// Compilation is the cached result of evaluating a TM: its module
// exports. The HMR policy the evaluation registered lives in the TM's
// HotConfig, not here.
type Compilation struct {
	Exports interface{}
}

// EmittedChild is a synthetic Module path a transpiler stage produced
// as a side effect (e.g. extracted CSS), recorded on the TM that
// emitted it.
type EmittedChild struct {
	Path string
	Hash Hash
}

// TranspiledModule is one compiled variant of a Module under a given
// loader-query prefix — the unit of the compile graph.
type TranspiledModule struct {
	Hash  Hash
	Path  string
	Query string

	// Source is the transpiled code; nil means "not yet transpiled".
	Source *string
	// SourceMap is the inline or external source map produced for
	// Source, when any.
	SourceMap string

	// Assets are child Modules this TM's transpile stage emitted.
	Assets []EmittedChild

	// Dependencies/TranspilationDependencies are forward edges to
	// other TMs by hash — the things this TM refers to.
	Dependencies              map[Hash]struct{}
	TranspilationDependencies map[Hash]struct{}
	// Initiators/TranspilationInitiators are the reverse edges — the
	// TMs that refer to this one. Maintained in lockstep with the
	// forward edges by the Registry's Link/Unlink.
	Initiators              map[Hash]struct{}
	TranspilationInitiators map[Hash]struct{}

	Compilation *Compilation

	IsEntry                bool
	IsTestFile             bool
	HasMissingDependencies bool

	Errors   []error
	Warnings []string

	Hot   HotConfig
	State HMRState
}

// New constructs a TranspiledModule for (path, query) with its hash
// pre-computed and edge sets initialized.
func New(path, query string) *TranspiledModule {
	return &TranspiledModule{
		Hash:                      ComputeHash(path, query),
		Path:                      path,
		Query:                     query,
		Dependencies:              make(map[Hash]struct{}),
		TranspilationDependencies: make(map[Hash]struct{}),
		Initiators:                make(map[Hash]struct{}),
		TranspilationInitiators:   make(map[Hash]struct{}),
		State:                     StateIdle,
	}
}

// ShouldTranspile reports whether this TM needs a transpile pass:
// Source is nil, or the TM is currently Dirty (the Registry keeps
// Dirty in sync with any transitive transpilation dependency updated
// since the last transpile, via Invalidate's propagation along
// transpilationInitiator edges), or it still carries a missing
// dependency from a previous attempt. Source is set even on a failing
// attempt so partial output stays inspectable, so HasMissingDependencies
// is what keeps such a TM eligible for a later retry instead of looking
// already up to date.
func (tm *TranspiledModule) ShouldTranspile() bool {
	return tm.Source == nil || tm.State == StateDirty || tm.HasMissingDependencies
}

// resetTranspileState clears Source/Compilation/errors, used both by
// plain invalidation and by the "missing dependency resolved, retry"
// path.
func (tm *TranspiledModule) resetTranspileState() {
	tm.Source = nil
	tm.SourceMap = ""
	tm.Compilation = nil
	tm.Errors = nil
	tm.HasMissingDependencies = false
}
