package main

import (
	"crypto/tls"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"
)

// parseProxies builds one reverse proxy per "prefix=target" spec: a
// Director override rewrites the Host header, the transport skips TLS
// verification for local dev certs, and prefixes are returned longest
// first so a more specific rule always wins a match.
func parseProxies(specs []string) (map[string]*httputil.ReverseProxy, []string) {
	proxies := make(map[string]*httputil.ReverseProxy, len(specs))
	var prefixes []string

	for _, spec := range specs {
		parts := strings.SplitN(spec, "=", 2)
		if len(parts) != 2 {
			continue
		}
		prefix, target := parts[0], parts[1]
		u, err := url.Parse(target)
		if err != nil {
			continue
		}

		rp := httputil.NewSingleHostReverseProxy(u)
		origDirector := rp.Director
		rp.Director = func(req *http.Request) {
			origDirector(req)
			req.Host = u.Host
		}
		rp.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}

		proxies[prefix] = rp
		prefixes = append(prefixes, prefix)
	}

	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	return proxies, prefixes
}
