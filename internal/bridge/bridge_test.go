package bridge

import (
	"encoding/json"
	"io"
	"testing"
	"time"
)

// fakeHost simulates the parent frame: it reads requests off reqR and
// answers each with a canned reply on respW, keyed off a path->content
// table, independent of request ordering/concurrency.
type fakeHost struct {
	files map[string]string
}

func (h *fakeHost) serve(t *testing.T, reqR io.Reader, respW io.Writer) {
	dec := json.NewDecoder(reqR)
	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			return
		}
		go func(req request) {
			content, exists := h.files[req.Path]
			resp := response{ID: req.ID, Ok: true, Exists: exists}
			if req.Method == "readFile" {
				if !exists {
					resp = response{ID: req.ID, Ok: false, Error: "not found"}
				} else {
					resp.Data = content
				}
			}
			data, _ := json.Marshal(resp)
			data = append(data, '\n')
			if _, err := respW.Write(data); err != nil {
				t.Logf("host write failed: %v", err)
			}
		}(req)
	}
}

func newTestBridge(t *testing.T, files map[string]string) *Bridge {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	host := &fakeHost{files: files}
	go host.serve(t, reqR, respW)

	return New(respR, reqW)
}

func TestIsFileAndReadFileRoundTrip(t *testing.T) {
	b := newTestBridge(t, map[string]string{"/lib/left-pad.js": "module.exports = 1"})

	ok, err := b.IsFile("/lib/left-pad.js")
	if err != nil {
		t.Fatalf("IsFile: %v", err)
	}
	if !ok {
		t.Fatal("expected IsFile to report true for a known path")
	}

	ok, err = b.IsFile("/lib/missing.js")
	if err != nil {
		t.Fatalf("IsFile: %v", err)
	}
	if ok {
		t.Fatal("expected IsFile to report false for an unknown path")
	}

	content, err := b.ReadFile("/lib/left-pad.js")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if content != "module.exports = 1" {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestReadFileMissingReturnsError(t *testing.T) {
	b := newTestBridge(t, map[string]string{})
	if _, err := b.ReadFile("/lib/missing.js"); err == nil {
		t.Fatal("expected an error reading a missing path")
	}
}

// Concurrent calls correlate correctly by ID even though the fake host
// answers out of order (each request is handled on its own goroutine).
func TestConcurrentCallsCorrelateByID(t *testing.T) {
	b := newTestBridge(t, map[string]string{
		"/a.js": "A",
		"/b.js": "B",
		"/c.js": "C",
	})

	type result struct {
		path, content string
		err           error
	}
	results := make(chan result, 3)
	for _, p := range []string{"/a.js", "/b.js", "/c.js"} {
		go func(p string) {
			content, err := b.ReadFile(p)
			results <- result{p, content, err}
		}(p)
	}

	want := map[string]string{"/a.js": "A", "/b.js": "B", "/c.js": "C"}
	for i := 0; i < 3; i++ {
		select {
		case r := <-results:
			if r.err != nil {
				t.Fatalf("ReadFile(%s): %v", r.path, r.err)
			}
			if r.content != want[r.path] {
				t.Fatalf("ReadFile(%s) = %q, want %q", r.path, r.content, want[r.path])
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for concurrent bridge calls")
		}
	}
}
