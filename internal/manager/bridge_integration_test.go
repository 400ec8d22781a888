package manager

import (
	"testing"

	"github.com/sandboxkit/corebundle/internal/store"
)

// fakeFileResolver stands in for internal/bridge in this package's
// tests: it implements FileResolver directly over an in-memory table,
// so the integration with Manager.resolvePath can be exercised without
// pulling in the wire protocol.
type fakeFileResolver struct {
	files map[string]string
}

func (f *fakeFileResolver) IsFile(path string) (bool, error) {
	_, ok := f.files[path]
	return ok, nil
}

func (f *fakeFileResolver) ReadFile(path string) (string, error) {
	return f.files[path], nil
}

// A request the Store and manifest can't resolve is handed to the
// file-resolver bridge; once it reports the file exists and supplies
// its content, the Module is added to the Store and the TM transpiles
// successfully on retry.
func TestMissingDependencyResolvedThroughFileResolver(t *testing.T) {
	m := newTestManager(map[string]*store.Module{
		"/index.js": {Path: "/index.js", Code: "module.exports = require('./helper')"},
	})

	if _, err := m.TranspileModules("/index.js", false); err == nil {
		t.Fatal("expected TranspileModules to report the missing dependency before a file resolver is configured")
	}

	entryTM := m.Registry().GetByPathQuery("/index.js", "")
	if entryTM.HasMissingDependencies {
		t.Fatal("expected a missing relative file (ModuleNotFoundError) not to flag hasMissingDependencies")
	}

	m.SetFileResolver(&fakeFileResolver{files: map[string]string{
		"/helper.js": "module.exports = 7",
	}})

	if _, err := m.TranspileModules("/index.js", false); err != nil {
		t.Fatalf("TranspileModules retry: %v", err)
	}
	if entryTM.HasMissingDependencies {
		t.Fatal("expected hasMissingDependencies to stay clear once the bridge resolved the request")
	}

	result, err := m.EvaluateModule("/index.js", EvaluateOptions{})
	if err != nil {
		t.Fatalf("EvaluateModule: %v", err)
	}
	if n, ok := result.(int64); !ok || n != 7 {
		if f, ok := result.(float64); !ok || f != 7 {
			t.Fatalf("expected exports 7, got %#v", result)
		}
	}
}
