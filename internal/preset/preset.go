// Package preset defines the pluggable policy object that supplies
// transpiler chains, default/ignored extensions, and path aliasing
// rules.
//
// The interface is deliberately data-driven rather than a class
// hierarchy: a Preset hands the Manager an ordered list of uniform
// transpiler stages per (path, query), picked from a flat loader
// table rather than dispatched through a type hierarchy.
package preset

// LoaderContext is the input every transpiler stage receives alongside
// the current code, carrying enough addressing information for a
// transpiler to emit diagnostics or child assets.
type LoaderContext struct {
	Path  string
	Query string
	// SandboxRoot is the sandbox root, when the caller supplies it. The
	// Manager leaves it empty; preset aliasing substitutes
	// "{{sandboxRoot}}" from BasePreset.SandboxRoot instead.
	SandboxRoot string
}

// EmittedAsset is a synthetic Module a transpiler stage produces as a
// side effect of compiling its input (e.g. an extracted CSS file).
type EmittedAsset struct {
	Path string
	Code string
}

// TranspileResult is what a single transpiler stage returns. Output of
// stage n's Code feeds stage n+1 as input.
type TranspileResult struct {
	Code      string
	SourceMap string
	Assets    []EmittedAsset
	// Dependencies are request strings discovered during this stage,
	// resolved through the Resolver into `dependencies` edges.
	Dependencies []string
	// TranspilationDependencies are other files whose content affects
	// this stage's output (e.g. a babel config) — creates a
	// `transpilationDependencies` edge rather than a runtime edge.
	TranspilationDependencies []string
}

// Transpiler is one named, orderable stage of the transpilation
// pipeline.
type Transpiler interface {
	Name() string
	Transpile(code string, ctx LoaderContext) (TranspileResult, error)
}

// ContextualTranspiler is implemented by transpilers that need a
// handle back to the owning Manager (e.g. to read sandbox-wide
// configuration). Optional.
type ContextualTranspiler interface {
	Transpiler
	SetManagerContext(ctx interface{})
}

// Disposable is implemented by transpilers that hold resources (a
// cache, a subprocess) needing explicit teardown.
type Disposable interface {
	Dispose()
}

// Preset is the pluggable policy object a sandbox configures the
// Manager with.
type Preset interface {
	// Transpilers returns the full registered set, keyed by name, so
	// the Manager can dispose them on teardown.
	Transpilers() map[string]Transpiler

	// GetLoaders returns the ordered transpiler chain for a given
	// module path and loader-query, e.g. [] for a plain .js file or
	// [cssLoader] for a .css file referenced as a stylesheet.
	GetLoaders(path, query string) []Transpiler

	// GetAliasedPath substitutes "{{sandboxRoot}}" and consults the
	// preset's static alias table.
	GetAliasedPath(path string) string

	// IgnoredExtensions lists extensions the resolver's extension
	// fallback should never append (e.g. ".map", ".d.ts").
	IgnoredExtensions() []string

	// HasDotEnv reports whether this sandbox's .env file should be
	// read and its values injected as `process.env` defines.
	HasDotEnv() bool
}

// BasePreset is an embeddable struct implementations can compose to
// get straightforward Transpilers/GetAliasedPath/IgnoredExtensions/
// HasDotEnv behavior, leaving only GetLoaders preset-specific.
type BasePreset struct {
	Named             map[string]Transpiler
	Aliases           map[string]string
	SandboxRoot       string
	IgnoredExts       []string
	DotEnv            bool
}

func (b *BasePreset) Transpilers() map[string]Transpiler { return b.Named }

func (b *BasePreset) GetAliasedPath(path string) string {
	substituted := replaceSandboxRoot(path, b.SandboxRoot)
	if target, ok := b.Aliases[substituted]; ok {
		return target
	}
	return substituted
}

func (b *BasePreset) IgnoredExtensions() []string { return b.IgnoredExts }

func (b *BasePreset) HasDotEnv() bool { return b.DotEnv }

const sandboxRootPlaceholder = "{{sandboxRoot}}"

func replaceSandboxRoot(path, root string) string {
	if root == "" {
		return path
	}
	out := make([]byte, 0, len(path))
	for i := 0; i < len(path); {
		if i+len(sandboxRootPlaceholder) <= len(path) && path[i:i+len(sandboxRootPlaceholder)] == sandboxRootPlaceholder {
			out = append(out, root...)
			i += len(sandboxRootPlaceholder)
			continue
		}
		out = append(out, path[i])
		i++
	}
	return string(out)
}
