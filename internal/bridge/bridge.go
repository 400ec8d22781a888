// Package bridge implements the optional host-process protocol: a
// duplex JSON-message channel exposing isFile(path) and readFile(path)
// to a parent frame, consulted only when the in-memory Module Store
// lacks a path during transpilation.
//
// One goroutine owns the reader loop and fans each reply out to the
// goroutine awaiting it, so concurrent callers never tear each other's
// partial reads. Framing is one JSON value per message via
// encoding/json's streaming Decoder, which tolerates back-to-back
// values without needing an explicit delimiter between them.
package bridge

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// request is one outgoing call, correlated to its reply by ID.
type request struct {
	ID     string `json:"id"`
	Method string `json:"m"`
	Path   string `json:"p"`
}

// response is one incoming reply, matched back to the pending request
// with the same ID.
type response struct {
	ID     string `json:"id"`
	Ok     bool   `json:"ok"`
	Exists bool   `json:"exists,omitempty"`
	Data   string `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Bridge is a duplex JSON-message channel to a parent frame. It
// implements manager.FileResolver, so a Manager can be configured with
// one directly via SetFileResolver.
type Bridge struct {
	w io.Writer

	writeMu sync.Mutex
	nextID  int64

	pendingMu sync.Mutex
	pending   map[string]chan response

	closed chan struct{}
}

// New starts a Bridge reading replies from r and writing requests to
// w. The caller owns r/w's lifetime; the read loop stops when reading
// from r fails or hits EOF.
func New(r io.Reader, w io.Writer) *Bridge {
	b := &Bridge{
		w:       w,
		pending: make(map[string]chan response),
		closed:  make(chan struct{}),
	}
	go b.readLoop(r)
	return b
}

func (b *Bridge) readLoop(r io.Reader) {
	dec := json.NewDecoder(r)
	for {
		var resp response
		if err := dec.Decode(&resp); err != nil {
			b.drainPending(err)
			return
		}
		b.pendingMu.Lock()
		ch, ok := b.pending[resp.ID]
		if ok {
			delete(b.pending, resp.ID)
		}
		b.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// drainPending unblocks every still-waiting caller with a synthetic
// error reply once the read side has failed or hit EOF, so a dropped
// connection can't hang a caller forever.
func (b *Bridge) drainPending(err error) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	for id, ch := range b.pending {
		ch <- response{ID: id, Ok: false, Error: fmt.Sprintf("bridge: connection closed: %v", err)}
		delete(b.pending, id)
	}
}

func (b *Bridge) call(method, path string) (response, error) {
	id := fmt.Sprintf("%d", atomic.AddInt64(&b.nextID, 1))
	ch := make(chan response, 1)

	b.pendingMu.Lock()
	b.pending[id] = ch
	b.pendingMu.Unlock()

	b.writeMu.Lock()
	err := json.NewEncoder(b.w).Encode(request{ID: id, Method: method, Path: path})
	b.writeMu.Unlock()
	if err != nil {
		b.pendingMu.Lock()
		delete(b.pending, id)
		b.pendingMu.Unlock()
		return response{}, fmt.Errorf("bridge: write request: %w", err)
	}

	resp := <-ch
	if !resp.Ok {
		return response{}, fmt.Errorf("bridge: %s %s: %s", method, path, resp.Error)
	}
	return resp, nil
}

// IsFile implements manager.FileResolver.
func (b *Bridge) IsFile(path string) (bool, error) {
	resp, err := b.call("isFile", path)
	if err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// ReadFile implements manager.FileResolver.
func (b *Bridge) ReadFile(path string) (string, error) {
	resp, err := b.call("readFile", path)
	if err != nil {
		return "", err
	}
	return resp.Data, nil
}
