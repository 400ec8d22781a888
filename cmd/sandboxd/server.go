package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sandboxkit/corebundle/internal/esbuildpreset"
	"github.com/sandboxkit/corebundle/internal/graph"
	"github.com/sandboxkit/corebundle/internal/manager"
	"github.com/sandboxkit/corebundle/internal/store"
)

// sandboxServer wires a Manager to an on-disk directory tree over
// HTTP. Its ServeHTTP dispatch order is SSE endpoint first, then
// reverse-proxy prefixes, then the demonstration host's own routes,
// falling back to static file serving from the source root.
type sandboxServer struct {
	mgr   *manager.Manager
	root  string
	entry string

	proxies       map[string]*httputil.ReverseProxy
	proxyPrefixes []string

	sseMu      sync.Mutex
	sseClients map[chan string]bool
}

func runServe(c serveCmd) int {
	root, err := filepath.Abs(c.Root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sandboxd: %v\n", err)
		return 1
	}

	modules, err := loadTree(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sandboxd: loading %s: %v\n", root, err)
		return 1
	}

	defines := map[string]string{}
	for _, kv := range c.Define {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			defines[parts[0]] = parts[1]
		}
	}
	if c.DotEnv {
		for k, v := range loadDotEnv(filepath.Join(root, ".env")) {
			defines["process.env."+k] = fmt.Sprintf("%q", v)
		}
	}

	aliases, tsconfigRaw := loadTsconfig(root)

	p := esbuildpreset.New(esbuildpreset.Options{
		SandboxRoot: root,
		Defines:     defines,
		DotEnv:      c.DotEnv,
		Aliases:     aliases,
		TsconfigRaw: tsconfigRaw,
	})

	m := manager.New("sandboxd", p, modules, manager.Options{
		Extensions:        []string{".js", ".jsx", ".ts", ".tsx", ".json"},
		ModuleDirectories: []string{"node_modules"},
		HasFileResolver:   c.BridgeCmd != "",
	}, nil)

	if c.BridgeCmd != "" {
		br, err := newStdioBridge(c.BridgeCmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sandboxd: bridge: %v\n", err)
			return 1
		}
		m.SetFileResolver(br)
	}

	proxies, prefixes := parseProxies(c.Proxy)

	srv := &sandboxServer{
		mgr:           m,
		root:          root,
		entry:         c.Entry,
		proxies:       proxies,
		proxyPrefixes: prefixes,
		sseClients:    make(map[chan string]bool),
	}

	m.Registry().AddStatusListener(srv.broadcastStatus)

	if err := srv.Run(c.Port); err != nil {
		fmt.Fprintf(os.Stderr, "sandboxd: %v\n", err)
		return 1
	}
	return 0
}

// Run starts the HTTP server and the tree watcher, retrying successive
// ports on EADDRINUSE and shutting down cleanly on SIGINT/SIGTERM.
func (s *sandboxServer) Run(port int) error {
	w, err := newWatcher(150 * time.Millisecond)
	if err != nil {
		return fmt.Errorf("sandboxd: starting watcher: %w", err)
	}
	if err := w.Watch(s.root); err != nil {
		return fmt.Errorf("sandboxd: watching %s: %w", s.root, err)
	}
	go s.watchLoop(w)
	defer w.Close()

	var ln net.Listener
	for attempt := 0; attempt < 20; attempt++ {
		addr := fmt.Sprintf(":%d", port+attempt)
		ln, err = net.Listen("tcp", addr)
		if err == nil {
			port += attempt
			break
		}
		if !isAddrInUse(err) {
			return err
		}
	}
	if ln == nil {
		return fmt.Errorf("sandboxd: no free port found starting at %d", port)
	}

	httpServer := &http.Server{Handler: s}
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "\033[2m[sandboxd] server error: %v\033[0m\n", err)
		}
	}()

	fmt.Fprintf(os.Stderr, "\033[2m[sandboxd] serving %s on http://localhost:%d\033[0m\n", s.root, port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Fprintf(os.Stderr, "\033[2m[sandboxd] shutting down\033[0m\n")
	return httpServer.Close()
}

func (s *sandboxServer) watchLoop(w *watcher) {
	for changed := range w.Events() {
		newModules, err := loadTree(s.root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\033[2m[sandboxd] reload failed: %v\033[0m\n", err)
			continue
		}
		if _, err := s.mgr.UpdateData(newModules); err != nil {
			fmt.Fprintf(os.Stderr, "\033[2m[sandboxd] update failed: %v\033[0m\n", err)
		}
		fmt.Fprintf(os.Stderr, "\033[2m[sandboxd] changed: %s\033[0m\n", strings.Join(relativize(s.root, changed), ", "))
	}
}

func relativize(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if rel, err := filepath.Rel(root, p); err == nil {
			out = append(out, rel)
		} else {
			out = append(out, p)
		}
	}
	return out
}

// ServeHTTP dispatches SSE first, then proxies, then the demonstration
// host's own API routes, then a static/HTML fallback.
func (s *sandboxServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/__sandbox_sse":
		s.handleSSE(w, r)
		return
	}

	for _, prefix := range s.proxyPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			s.proxies[prefix].ServeHTTP(w, r)
			return
		}
	}

	switch {
	case r.URL.Path == "/api/run":
		s.handleRun(w, r)
		return
	case r.URL.Path == "/api/module":
		s.handleModule(w, r)
		return
	case r.URL.Path == "/" || r.URL.Path == "/index.html":
		s.handleIndex(w, r)
		return
	}

	s.handleStatic(w, r)
}

func (s *sandboxServer) broadcastStatus(status graph.GlobalStatus) {
	s.sseMu.Lock()
	defer s.sseMu.Unlock()
	for ch := range s.sseClients {
		select {
		case ch <- status.String():
		default:
		}
	}
}

func isAddrInUse(err error) bool {
	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		return false
	}
	var sysErr *os.SyscallError
	if errors.As(opErr.Err, &sysErr) {
		return errors.Is(sysErr.Err, syscall.EADDRINUSE)
	}
	return errors.Is(opErr.Err, syscall.EADDRINUSE)
}

// loadTree walks root and builds a flat path -> Module map keyed by
// POSIX-style absolute virtual paths rooted at "/", the same shape
// Manager.New/UpdateData expect.
func loadTree(root string) (map[string]*store.Module, error) {
	modules := make(map[string]*store.Module)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if shouldIgnoreDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		vpath := "/" + filepath.ToSlash(rel)
		code, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		modules[vpath] = &store.Module{Path: vpath, Code: string(code)}
		return nil
	})
	return modules, err
}
