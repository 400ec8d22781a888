package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sandboxkit/corebundle/internal/manager"
)

// handleRun transpiles and evaluates the configured entry, returning
// its exports (or a structured error) as JSON — the demonstration
// host's equivalent of a browser importing the entry module, since
// evaluation here happens inside goja rather than in a page.
func (s *sandboxServer) handleRun(w http.ResponseWriter, r *http.Request) {
	if _, err := s.mgr.TranspileModules(s.entry, false); err != nil {
		writeJSONError(w, err)
		return
	}
	result, err := s.mgr.EvaluateModule(s.entry, manager.EvaluateOptions{})
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"ok": true, "exports": result})
}

// handleModule returns the transpiled source and source map for a
// single path, given as a ?path= query parameter — an inspection
// endpoint useful for debugging what the pipeline produced.
func (s *sandboxServer) handleModule(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "missing ?path=", http.StatusBadRequest)
		return
	}
	tm := s.mgr.Registry().GetByPathQuery(path, "")
	if tm == nil {
		http.Error(w, "no transpiled module for "+path, http.StatusNotFound)
		return
	}
	source := ""
	if tm.Source != nil {
		source = *tm.Source
	}
	writeJSON(w, map[string]interface{}{
		"path":      tm.Path,
		"query":     tm.Query,
		"hash":      string(tm.Hash),
		"status":    tm.Status(),
		"source":    source,
		"sourceMap": tm.SourceMap,
	})
}

// handleIndex serves the demonstration host's single HTML page: a
// status panel wired to the SSE endpoint and the /api/run output. This
// engine evaluates server-side via goja rather than loading ES modules
// directly in the browser, so the page re-runs the evaluator and shows
// its output instead of reloading imported modules in place.
func (s *sandboxServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

// handleStatic serves a Module's code from the Manager's Store for any
// path not claimed by an API route, falling back to the index page
// for any path the Store has no Module for (SPA-style fallback).
func (s *sandboxServer) handleStatic(w http.ResponseWriter, r *http.Request) {
	mod := s.mgr.Store().Get(r.URL.Path)
	if mod == nil {
		s.handleIndex(w, r)
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(mod.Path))
	fmt.Fprint(w, mod.Code)
}

func contentTypeFor(path string) string {
	switch {
	case hasSuffix(path, ".js"), hasSuffix(path, ".jsx"), hasSuffix(path, ".mjs"):
		return "application/javascript; charset=utf-8"
	case hasSuffix(path, ".json"):
		return "application/json; charset=utf-8"
	case hasSuffix(path, ".css"):
		return "text/css; charset=utf-8"
	case hasSuffix(path, ".html"):
		return "text/html; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// handleSSE streams global HMR status transitions to the browser: a
// per-client buffered channel is registered under sseMu for the
// duration of the connection, with a keepalive ticker so idle proxies
// don't time the connection out.
func (s *sandboxServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan string, 8)
	s.sseMu.Lock()
	s.sseClients[ch] = true
	s.sseMu.Unlock()
	defer func() {
		s.sseMu.Lock()
		delete(s.sseClients, ch)
		s.sseMu.Unlock()
	}()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case status := <-ch:
			fmt.Fprintf(w, "event: status\ndata: %s\n\n", status)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "\033[2m[sandboxd] encoding response: %v\033[0m\n", err)
	}
}

// writeJSONError sets the content type and status before encoding the
// body — WriteHeader must come after any Header().Set call or the
// header never reaches the client.
func writeJSONError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]interface{}{"ok": false, "error": err.Error()})
}
