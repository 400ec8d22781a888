package main

import "testing"

func TestShouldIgnorePath(t *testing.T) {
	cases := map[string]bool{
		"/src/index.js":     false,
		"/src/.index.js.swp": true,
		"/src/index.js~":    true,
		"/src/#scratch#":    true,
		"/src/.#index.js":   true,
	}
	for path, want := range cases {
		if got := shouldIgnorePath(path); got != want {
			t.Errorf("shouldIgnorePath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestShouldIgnoreDir(t *testing.T) {
	cases := map[string]bool{
		"/repo/src":          false,
		"/repo/node_modules": false,
		"/repo/.git":         true,
		"/repo/dist":         true,
	}
	for path, want := range cases {
		if got := shouldIgnoreDir(path); got != want {
			t.Errorf("shouldIgnoreDir(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestShouldIgnoreWatchDir(t *testing.T) {
	cases := map[string]bool{
		"/repo/src":          false,
		"/repo/node_modules": true,
		"/repo/.git":         true,
		"/repo/dist":         true,
	}
	for path, want := range cases {
		if got := shouldIgnoreWatchDir(path); got != want {
			t.Errorf("shouldIgnoreWatchDir(%q) = %v, want %v", path, got, want)
		}
	}
}
