package resolver

import (
	"testing"

	"github.com/sandboxkit/corebundle/internal/manifest"
	"github.com/sandboxkit/corebundle/internal/sberrors"
	"github.com/sandboxkit/corebundle/internal/store"
)

func newTestStore(files map[string]string) *store.Store {
	s := store.New()
	for p, code := range files {
		s.Add(&store.Module{Path: p, Code: code})
	}
	return s
}

func TestResolveRelativeWithExtensionFallback(t *testing.T) {
	s := newTestStore(map[string]string{
		"/src/index.js": "require('./util')",
		"/src/util.js":  "module.exports = 1",
	})
	r := New(s, nil, Options{})

	m, err := r.Resolve("./util", "/src/index.js")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Path != "/src/util.js" {
		t.Fatalf("expected /src/util.js, got %s", m.Path)
	}
}

func TestResolveDirectoryPrefersPackageMainOverIndex(t *testing.T) {
	s := newTestStore(map[string]string{
		"/node_modules/left-pad/package.json": `{"main": "./lib.js"}`,
		"/node_modules/left-pad/lib.js":        "module.exports = function(){}",
		"/node_modules/left-pad/index.js":      "module.exports = 'wrong'",
		"/src/index.js":                        "require('left-pad')",
	})
	r := New(s, nil, Options{})

	m, err := r.Resolve("left-pad", "/src/index.js")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Path != "/node_modules/left-pad/lib.js" {
		t.Fatalf("expected package.json#main to win, got %s", m.Path)
	}
}

func TestResolveDependencyAliasRewritesVersionConflict(t *testing.T) {
	s := newTestStore(map[string]string{
		"/node_modules/react/17.0.0/index.js": "module.exports = 'react17'",
		"/node_modules/react-dom/index.js":    "require('react')",
	})
	man := manifest.New()
	man.Dependencies = []manifest.Dependency{{Name: "react", Version: "17.0.0"}}
	man.DependencyAliases = map[string]map[string]string{
		"react-dom": {"react": "react/17.0.0"},
	}
	r := New(s, man, Options{})

	m, err := r.Resolve("react", "/node_modules/react-dom/index.js")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Path != "/node_modules/react/17.0.0/index.js" {
		t.Fatalf("expected aliased path under /node_modules/react/17.0.0/, got %s", m.Path)
	}
}

func TestResolveCoreShimReturnsEmptyModule(t *testing.T) {
	s := newTestStore(map[string]string{
		"/node_modules/empty/index.js": "module.exports = {}",
		"/src/index.js":                "require('fs')",
	})
	r := New(s, nil, Options{})

	m, err := r.Resolve("fs", "/src/index.js")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Path != "/node_modules/empty/index.js" {
		t.Fatalf("expected empty shim module, got %s", m.Path)
	}
}

func TestResolveUnknownDependencyRaisesDependencyNotFound(t *testing.T) {
	s := newTestStore(map[string]string{
		"/src/index.js": "require('left-pad')",
	})
	man := manifest.New()
	r := New(s, man, Options{})

	_, err := r.Resolve("left-pad", "/src/index.js")
	if err == nil {
		t.Fatalf("expected an error")
	}
	if _, ok := err.(*sberrors.DependencyNotFoundError); !ok {
		t.Fatalf("expected *sberrors.DependencyNotFoundError, got %T", err)
	}
}

func TestResolveKnownDependencyMissingFileRaisesModuleNotFoundIsDependency(t *testing.T) {
	s := newTestStore(map[string]string{
		"/src/index.js": "require('left-pad')",
	})
	man := manifest.New()
	man.Dependencies = []manifest.Dependency{{Name: "left-pad", Version: "1.3.0"}}
	r := New(s, man, Options{})

	_, err := r.Resolve("left-pad", "/src/index.js")
	notFound, ok := err.(*sberrors.ModuleNotFoundError)
	if !ok {
		t.Fatalf("expected *sberrors.ModuleNotFoundError, got %T", err)
	}
	if !notFound.IsDependency {
		t.Fatalf("expected IsDependency=true for a manifest-known package")
	}
}

func TestResolveCachesDirectoryScoped(t *testing.T) {
	s := newTestStore(map[string]string{
		"/src/a/index.js": "require('./util')",
		"/src/a/util.js":  "module.exports = 1",
	})
	r := New(s, nil, Options{})

	if _, err := r.Resolve("./util", "/src/a/index.js"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached, ok := r.cacheGet("/src/a", "./util"); !ok || cached != "/src/a/util.js" {
		t.Fatalf("expected cachedPaths to record the resolution, got %q ok=%v", cached, ok)
	}

	r.InvalidateCache()
	if _, ok := r.cacheGet("/src/a", "./util"); ok {
		t.Fatalf("expected InvalidateCache to clear cachedPaths")
	}
}

func TestResolveExportsSubpathMap(t *testing.T) {
	s := newTestStore(map[string]string{
		"/node_modules/pkg/package.json": `{"exports": {".": {"browser": "./browser.js", "default": "./index.js"}}}`,
		"/node_modules/pkg/browser.js":   "module.exports = 'browser'",
		"/node_modules/pkg/index.js":     "module.exports = 'default'",
		"/src/index.js":                  "require('pkg')",
	})
	r := New(s, nil, Options{})

	m, err := r.Resolve("pkg", "/src/index.js")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Path != "/node_modules/pkg/browser.js" {
		t.Fatalf("expected browser condition to win for the browser platform, got %s", m.Path)
	}
}
