package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTree(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "node_modules", "left-pad"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.js"), []byte("module.exports = 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "node_modules", "left-pad", "index.js"), []byte("module.exports = 2"), 0o644); err != nil {
		t.Fatal(err)
	}

	modules, err := loadTree(dir)
	if err != nil {
		t.Fatalf("loadTree: %v", err)
	}
	if _, ok := modules["/index.js"]; !ok {
		t.Fatal("expected /index.js to be loaded")
	}
	if _, ok := modules["/node_modules/left-pad/index.js"]; !ok {
		t.Fatal("expected the node_modules file to be loaded (only .git/dist/build/.cache are ignored)")
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"/a.js":   "application/javascript; charset=utf-8",
		"/a.json": "application/json; charset=utf-8",
		"/a.css":  "text/css; charset=utf-8",
		"/a.bin":  "text/plain; charset=utf-8",
	}
	for path, want := range cases {
		if got := contentTypeFor(path); got != want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nFOO=bar\nBAZ=\"quoted\"\n\nBADLINE\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got := loadDotEnv(path)
	if got["FOO"] != "bar" {
		t.Errorf("FOO = %q, want bar", got["FOO"])
	}
	if got["BAZ"] != "quoted" {
		t.Errorf("BAZ = %q, want quoted", got["BAZ"])
	}
	if _, ok := got["BADLINE"]; ok {
		t.Error("expected a line without '=' to be skipped")
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	got := loadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
	if len(got) != 0 {
		t.Errorf("expected an empty map for a missing file, got %v", got)
	}
}
