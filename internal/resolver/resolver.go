// Package resolver implements Node-style module resolution: preset
// aliasing, manifest dependency aliasing, core-library shims,
// node_modules walking with package.json main/browser/exports
// handling, and a directory-scoped resolution cache, layered over a
// Module Store and Manifest.
package resolver

import (
	"encoding/json"
	"path"
	"strings"
	"sync"

	"github.com/sandboxkit/corebundle/internal/manifest"
	"github.com/sandboxkit/corebundle/internal/sberrors"
	"github.com/sandboxkit/corebundle/internal/store"
	"github.com/sandboxkit/corebundle/internal/vpath"
)

// FileReader abstracts reading a file's raw bytes from the virtual
// filesystem backing a Store, independent of whether the content came
// from the editor, the packager manifest, or an npm fetch. The
// resolver needs this only to read package.json manifests.
type FileReader interface {
	ReadFile(path string) ([]byte, bool)
}

// storeFileReader adapts a *store.Store (Module.Code) to FileReader.
type storeFileReader struct{ s *store.Store }

func (r storeFileReader) ReadFile(p string) ([]byte, bool) {
	m := r.s.Get(p)
	if m == nil {
		return nil, false
	}
	return []byte(m.Code), true
}

// AliasTable is the preset's static alias map, consulted before
// manifest aliasing and node_modules resolution.
type AliasTable map[string]string

// coreShims is the Node built-in shim table: any of these names
// resolve to the empty module regardless of what's on disk.
var coreShims = map[string]bool{
	"fs": true, "os": true, "child_process": true,
	"net": true, "tls": true, "dns": true, "dgram": true, "cluster": true,
	"readline": true, "repl": true, "worker_threads": true,
	"v8": true, "perf_hooks": true, "inspector": true, "module": true,
}

// Resolver resolves request strings against a Module Store, optional
// Manifest, and static alias table through a fixed resolution
// pipeline.
type Resolver struct {
	store    *store.Store
	manifest *manifest.Manifest
	aliases  AliasTable
	reader   FileReader

	// extensions is the configured resolution order, e.g.
	// [".tsx", ".ts", ".jsx", ".js", ".json"].
	extensions []string
	// moduleDirectories are additional roots walked alongside
	// node_modules (tsconfig baseUrl, NODE_PATH entries).
	moduleDirectories []string
	// browserFilterSkip lists dependency names whose package.json
	// "browser" field is ignored.
	browserFilterSkip map[string]bool

	mu          sync.Mutex
	cachedPaths map[string]map[string]string
}

// Options configures a new Resolver.
type Options struct {
	Aliases           AliasTable
	Extensions        []string
	ModuleDirectories []string
	BrowserFilterSkip []string
}

// New builds a Resolver over s and an optional manifest (nil is
// permitted: a Resolver with no manifest simply never matches
// manifest-level aliases or dependency-known failures).
func New(s *store.Store, m *manifest.Manifest, opts Options) *Resolver {
	skip := make(map[string]bool, len(opts.BrowserFilterSkip))
	for _, name := range opts.BrowserFilterSkip {
		skip[name] = true
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{".js", ".jsx", ".ts", ".tsx", ".json"}
	}
	return &Resolver{
		store:             s,
		manifest:          m,
		aliases:           opts.Aliases,
		reader:            storeFileReader{s},
		extensions:        exts,
		moduleDirectories: opts.ModuleDirectories,
		browserFilterSkip: skip,
		cachedPaths:       make(map[string]map[string]string),
	}
}

// InvalidateCache clears the whole cachedPaths table, used whenever
// the underlying file set changes wholesale (e.g. an updateData
// pass).
func (r *Resolver) InvalidateCache() {
	r.mu.Lock()
	r.cachedPaths = make(map[string]map[string]string)
	r.mu.Unlock()
}

func (r *Resolver) cacheGet(dir, request string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byRequest, ok := r.cachedPaths[dir]
	if !ok {
		return "", false
	}
	p, ok := byRequest[request]
	return p, ok
}

func (r *Resolver) cachePut(dir, request, resolved string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byRequest, ok := r.cachedPaths[dir]
	if !ok {
		byRequest = make(map[string]string)
		r.cachedPaths[dir] = byRequest
	}
	byRequest[request] = resolved
}

// ExportCachedPaths returns a snapshot of the directory-scoped
// resolution cache, used by Manager.Serialize to persist
// `cachedPaths` in a cachefile.CacheFile.
func (r *Resolver) ExportCachedPaths() map[string]map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]map[string]string, len(r.cachedPaths))
	for dir, byRequest := range r.cachedPaths {
		cp := make(map[string]string, len(byRequest))
		for req, resolved := range byRequest {
			cp[req] = resolved
		}
		out[dir] = cp
	}
	return out
}

// ImportCachedPaths replaces the resolution cache wholesale with a
// previously-exported snapshot, used by Manager.Load.
func (r *Resolver) ImportCachedPaths(cache map[string]map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]map[string]string, len(cache))
	for dir, byRequest := range cache {
		cp := make(map[string]string, len(byRequest))
		for req, resolved := range byRequest {
			cp[req] = resolved
		}
		out[dir] = cp
	}
	r.cachedPaths = out
}

func (r *Resolver) cachePurge(dir, request string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if byRequest, ok := r.cachedPaths[dir]; ok {
		delete(byRequest, request)
	}
}

// Resolve runs the synchronous resolution pipeline and returns the
// resolved Module. It does not attempt the external file-resolver
// fallback; Manager.resolvePath layers that on top of ResolvePath.
func (r *Resolver) Resolve(request, fromPath string) (*store.Module, error) {
	p, err := r.ResolvePath(request, fromPath)
	if err != nil {
		return nil, err
	}
	if m := r.store.Get(p); m != nil {
		return m, nil
	}
	return nil, r.notFoundError(p, fromPath, request)
}

// ResolvePath runs the resolution pipeline and returns the resolved
// virtual path. Every path it returns was found through the Store,
// except the empty-shim sentinel, which is returned as-is.
func (r *Resolver) ResolvePath(request, fromPath string) (string, error) {
	dir := vpath.Dirname(fromPath)

	if cached, ok := r.cacheGet(dir, request); ok {
		return cached, nil
	}

	resolved, err := r.resolveUncached(request, fromPath)
	if err != nil {
		r.cachePurge(dir, request)
		return "", err
	}

	r.cachePut(dir, request, resolved)
	return resolved, nil
}

func (r *Resolver) resolveUncached(request, fromPath string) (string, error) {
	if request == vpath.EmptySpecifier {
		return vpath.EmptyModulePath, nil
	}

	// Step 1: preset aliasing.
	request = r.applyPresetAlias(request)

	// Step 2: manifest dependency aliasing.
	request = r.applyManifestAlias(request, fromPath)

	// Step 3: core-library shim table.
	if coreShims[request] {
		return vpath.EmptyModulePath, nil
	}

	// Step 4: Node-style resolution.
	if vpath.IsRelative(request) {
		dir := vpath.Dirname(fromPath)
		joined := vpath.Join(dir, request)
		if resolved, ok := r.resolveFileOrDirectory(joined); ok {
			return resolved, nil
		}
		return "", &sberrors.ModuleNotFoundError{Path: request, FromPath: fromPath}
	}

	for _, dir := range r.nodeModulesRoots(fromPath) {
		candidate := path.Join(dir, request)
		if resolved, ok := r.resolveFileOrDirectory(candidate); ok {
			return resolved, nil
		}
	}
	for _, dir := range r.moduleDirectories {
		candidate := path.Join(dir, request)
		if resolved, ok := r.resolveFileOrDirectory(candidate); ok {
			return resolved, nil
		}
	}

	return "", r.notFoundError("", fromPath, request)
}

func (r *Resolver) applyPresetAlias(request string) string {
	if r.aliases == nil {
		return request
	}
	if target, ok := r.aliases[request]; ok {
		return target
	}
	return request
}

func (r *Resolver) applyManifestAlias(request, fromPath string) string {
	if r.manifest == nil {
		return request
	}
	parent, ok := vpath.NodeModulesDependency(fromPath)
	if !ok {
		return request
	}
	name := vpath.PackageName(request)
	if name == "" {
		return request
	}
	actual, ok := r.manifest.ResolveAlias(parent, name)
	if !ok {
		return request
	}
	rest := strings.TrimPrefix(request, name)
	return actual + rest
}

// nodeModulesRoots walks fromPath's directory chain up to / yielding
// each ancestor's node_modules directory, nearest first — the standard
// Node module-directory walk.
func (r *Resolver) nodeModulesRoots(fromPath string) []string {
	dir := vpath.Dirname(fromPath)
	var roots []string
	for {
		roots = append(roots, path.Join(dir, "node_modules"))
		if dir == "/" || dir == "." || dir == "" {
			break
		}
		parent := path.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return roots
}

// CandidatePaths returns the ordered list of absolute paths a relative
// request would probe if it resolved locally (candidate itself, each
// extension appended, then an index.<ext> under it as a directory),
// the same order resolveFileOrDirectory tries against the Store, minus
// its package.json entry-point step. Used
// by Manager.resolvePath to ask the file-resolver bridge about real
// paths once local resolution has failed, instead of the empty
// candidate a failed ResolvePath alone would leave it with. Bare
// (non-relative) requests return nil: the bridge protocol only stands
// in for local files missing from the virtual tree, not for npm-style
// package resolution.
func (r *Resolver) CandidatePaths(request, fromPath string) []string {
	if !vpath.IsRelative(request) {
		return nil
	}
	dir := vpath.Dirname(fromPath)
	candidate := vpath.Join(dir, request)

	out := []string{candidate}
	for _, ext := range r.extensions {
		out = append(out, candidate+ext)
	}
	indexCandidate := path.Join(candidate, "index")
	for _, ext := range r.extensions {
		out = append(out, indexCandidate+ext)
	}
	return out
}

// resolveFileOrDirectory tries candidate as a file (with extension
// fallback), then as a directory: package.json main/exports/browser
// wins over falling back to index.<ext>.
func (r *Resolver) resolveFileOrDirectory(candidate string) (string, bool) {
	if _, ok := r.reader.ReadFile(candidate); ok {
		return candidate, true
	}
	for _, ext := range r.extensions {
		withExt := candidate + ext
		if _, ok := r.reader.ReadFile(withExt); ok {
			return withExt, true
		}
	}

	if entry, ok := r.resolvePackageEntry(candidate, "."); ok {
		full := path.Join(candidate, entry)
		if resolved, ok := r.resolveFileOrDirectory(full); ok {
			return resolved, true
		}
	}

	indexCandidate := path.Join(candidate, "index")
	for _, ext := range r.extensions {
		withExt := indexCandidate + ext
		if _, ok := r.reader.ReadFile(withExt); ok {
			return withExt, true
		}
	}

	return "", false
}

func (r *Resolver) notFoundError(resolvedPath, fromPath, request string) error {
	name := vpath.PackageName(request)
	if name != "" && !vpath.IsRelative(request) {
		if r.manifest != nil && r.manifest.HasDependency(name) {
			return &sberrors.ModuleNotFoundError{Path: request, FromPath: fromPath, IsDependency: true}
		}
		return &sberrors.DependencyNotFoundError{Name: name, FromPath: fromPath}
	}
	return &sberrors.ModuleNotFoundError{Path: resolvedPath, FromPath: fromPath}
}

// packageJSONFields mirrors the subset of package.json read for
// entry-point resolution.
type packageJSONFields struct {
	Exports json.RawMessage `json:"exports"`
	Module  string          `json:"module"`
	Main    string          `json:"main"`
	Browser json.RawMessage `json:"browser"`
}

// resolvePackageEntry reads candidateDir/package.json and resolves the
// entry point for subpath, trying exports, then a string-form browser
// field, then module/main. An object-form browser field is not
// applied: its sub-path rewrites are ignored.
func (r *Resolver) resolvePackageEntry(candidateDir, subpath string) (string, bool) {
	raw, ok := r.reader.ReadFile(path.Join(candidateDir, "package.json"))
	if !ok {
		return "", false
	}
	var pkg packageJSONFields
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return "", false
	}

	if len(pkg.Exports) > 0 {
		var ev exportValue
		if err := json.Unmarshal(pkg.Exports, &ev); err == nil {
			if result := matchExports(&ev, subpath, "browser"); result != "" {
				return result, true
			}
		}
	}

	depName := vpath.PackageName(strings.TrimPrefix(candidateDir, "/node_modules/"))
	if subpath == "." && len(pkg.Browser) > 0 && !r.browserFilterSkip[depName] {
		var asString string
		if err := json.Unmarshal(pkg.Browser, &asString); err == nil && asString != "" {
			return asString, true
		}
		// Object-form browser field rewrites sub-paths; the root entry
		// is keyed by the package's own main/module value when present,
		// otherwise by "." itself is not standard, so fall through to
		// module/main below for the root entry.
	}

	if subpath == "." {
		if pkg.Module != "" {
			return pkg.Module, true
		}
		if pkg.Main != "" {
			return pkg.Main, true
		}
	}
	return "", false
}
