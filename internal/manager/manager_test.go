package manager

import (
	"testing"

	"github.com/sandboxkit/corebundle/internal/graph"
	"github.com/sandboxkit/corebundle/internal/preset"
	"github.com/sandboxkit/corebundle/internal/store"
)

// passthroughPreset is a minimal Preset with no transpiler chain at
// all: every file is handed to the evaluator exactly as stored. It
// exercises the Manager's own orchestration rather than any transpile
// stage, for tests that only care about plain JS source.
type passthroughPreset struct {
	preset.BasePreset
}

func newPassthroughPreset() *passthroughPreset {
	return &passthroughPreset{BasePreset: preset.BasePreset{Named: map[string]preset.Transpiler{}}}
}

func (p *passthroughPreset) GetLoaders(path, query string) []preset.Transpiler { return nil }

func newTestManager(modules map[string]*store.Module) *Manager {
	return New("test-sandbox", newPassthroughPreset(), modules, Options{}, nil)
}

// A fresh transpile + evaluate of an entry that requires one
// dependency evaluates to the dependency's value plus one.
func TestFreshTranspileAndEvaluate(t *testing.T) {
	m := newTestManager(map[string]*store.Module{
		"/index.js": {Path: "/index.js", Code: "module.exports = require('./dep') + 1"},
		"/dep.js":   {Path: "/dep.js", Code: "module.exports = 41"},
	})

	touched, err := m.TranspileModules("/index.js", false)
	if err != nil {
		t.Fatalf("TranspileModules: %v", err)
	}
	if len(touched) != 2 {
		t.Fatalf("expected 2 TMs touched, got %d", len(touched))
	}

	result, err := m.EvaluateModule("/index.js", EvaluateOptions{})
	if err != nil {
		t.Fatalf("EvaluateModule: %v", err)
	}

	n, ok := result.(int64)
	if !ok {
		if f, ok := result.(float64); ok {
			n = int64(f)
		} else {
			t.Fatalf("expected numeric result, got %T(%v)", result, result)
		}
	}
	if n != 42 {
		t.Fatalf("expected 42, got %v", n)
	}
}

// A require cycle between two modules resolves so that each side
// observes the other's exports object identity, matching CommonJS's
// partial-exports cycle semantics.
func TestRequireCycleResolvesToSharedExportsIdentity(t *testing.T) {
	m := newTestManager(map[string]*store.Module{
		"/a.js": {Path: "/a.js", Code: `
var b = require('./b');
exports.name = 'a';
exports.b = b;
`},
		"/b.js": {Path: "/b.js", Code: `
var a = require('./a');
exports.name = 'b';
exports.a = a;
`},
	})

	if _, err := m.TranspileModules("/a.js", false); err != nil {
		t.Fatalf("TranspileModules: %v", err)
	}

	result, err := m.EvaluateModule("/a.js", EvaluateOptions{})
	if err != nil {
		t.Fatalf("EvaluateModule: %v", err)
	}

	aExports, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected a map-shaped export, got %T", result)
	}
	bExports, ok := aExports["b"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected a.b to be a map, got %T", aExports["b"])
	}
	aFromB, ok := bExports["a"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected b.a to be a map, got %T", bExports["a"])
	}
	if aFromB["name"] != "a" {
		t.Fatalf("expected b.a.name == 'a' (the cycle closing back to a), got %v", aFromB["name"])
	}
}

// A module that declares module.hot.accept() re-evaluates in place on
// invalidation rather than forcing a hard reload, and the global HMR
// status walks idle -> check -> apply -> idle across the update.
func TestHMRAcceptReevaluatesInPlace(t *testing.T) {
	m := newTestManager(map[string]*store.Module{
		"/index.js": {Path: "/index.js", Code: `
module.hot.accept();
module.exports = 100;
`},
	})

	var statuses []string
	m.Registry().AddStatusListener(func(s graph.GlobalStatus) {
		statuses = append(statuses, s.String())
	})

	if _, err := m.TranspileModules("/index.js", false); err != nil {
		t.Fatalf("initial TranspileModules: %v", err)
	}
	if _, err := m.EvaluateModule("/index.js", EvaluateOptions{}); err != nil {
		t.Fatalf("initial EvaluateModule: %v", err)
	}

	tm := m.Registry().GetByPathQuery("/index.js", "")
	if tm == nil {
		t.Fatal("expected entry TM to be registered")
	}
	if !tm.Hot.AcceptSelf {
		t.Fatal("expected module.hot.accept() to have set AcceptSelf")
	}

	updated := &store.Module{Path: "/index.js", Code: `
module.hot.accept();
module.exports = 101;
`}
	if _, err := m.UpdateData(map[string]*store.Module{"/index.js": updated}); err != nil {
		t.Fatalf("UpdateData: %v", err)
	}

	result, err := m.EvaluateModule("/index.js", EvaluateOptions{})
	if err != nil {
		t.Fatalf("EvaluateModule after update: %v", err)
	}
	n, ok := result.(int64)
	if !ok {
		if f, ok := result.(float64); ok {
			n = int64(f)
		} else {
			t.Fatalf("expected numeric result, got %T(%v)", result, result)
		}
	}
	if n != 101 {
		t.Fatalf("expected 101 after HMR update, got %v", n)
	}
	if m.pendingHardReload {
		t.Fatal("expected no hard reload for an accepted in-place HMR update")
	}

	wantSeq := []string{"check", "idle", "apply", "idle", "check", "apply", "idle"}
	if len(statuses) < len(wantSeq) {
		t.Fatalf("expected at least %d status transitions, got %v", len(wantSeq), statuses)
	}
	for i, want := range wantSeq {
		if statuses[i] != want {
			t.Fatalf("status[%d] = %q, want %q (full sequence: %v)", i, statuses[i], want, statuses)
		}
	}
}
