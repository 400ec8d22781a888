// Package sberrors defines the structured error taxonomy the engine
// raises during resolution, transpilation, evaluation and caching.
// Errors are always structured values, never bare strings.
package sberrors

import "fmt"

// ModuleNotFoundError is raised when resolution fails for a relative or
// absolute request, or for a bare request whose package name the
// manifest knows (IsDependency is then true).
type ModuleNotFoundError struct {
	Path        string // the request string that failed to resolve
	FromPath    string // the path resolution was attempted from
	IsDependency bool  // true when Path names a package the manifest knows
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module not found: %q (from %q, isDependency=%v)", e.Path, e.FromPath, e.IsDependency)
}

// DependencyNotFoundError is raised when a request resolves under
// /node_modules/<name> but <name> is not present in the manifest.
type DependencyNotFoundError struct {
	Name     string
	FromPath string
}

func (e *DependencyNotFoundError) Error() string {
	return fmt.Sprintf("dependency not found: %q (from %q)", e.Name, e.FromPath)
}

// TranspileError wraps an exception raised by a transpiler stage.
type TranspileError struct {
	Hash       string
	Path       string
	Query      string
	Stage      string
	SourceSpan string // optional source-map context
	Err        error
}

func (e *TranspileError) Error() string {
	if e.SourceSpan != "" {
		return fmt.Sprintf("transpile error in %s (stage %s) at %s: %v", e.Path, e.Stage, e.SourceSpan, e.Err)
	}
	return fmt.Sprintf("transpile error in %s (stage %s): %v", e.Path, e.Stage, e.Err)
}

func (e *TranspileError) Unwrap() error { return e.Err }

// EvaluationError wraps a runtime exception raised during Evaluate.
type EvaluationError struct {
	Hash  string
	Path  string
	Stack string // CommonJS-style stack trace context
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation error in %s: %v\n%s", e.Path, e.Err, e.Stack)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// CacheVersionMismatch is non-fatal: it signals that a persisted cache
// was discarded because its version or dependency set didn't match.
type CacheVersionMismatch struct {
	Reason string
}

func (e *CacheVersionMismatch) Error() string {
	return fmt.Sprintf("cache discarded: %s", e.Reason)
}

// IOError is raised when a TM is transpiled and the in-memory Module
// Store has no Module at its path.
type IOError struct {
	Path string
	Op   string
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: no such file or directory (ENOENT)", e.Op, e.Path)
}
