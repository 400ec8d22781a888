package main

import "testing"

// Table of cases exercising the sandboxd build of parseProxies.
func TestParseProxies(t *testing.T) {
	t.Run("single proxy", func(t *testing.T) {
		proxies, prefixes := parseProxies([]string{"/api=http://localhost:8080"})
		if len(prefixes) != 1 || prefixes[0] != "/api" {
			t.Fatalf("expected prefixes [/api], got %v", prefixes)
		}
		if _, ok := proxies["/api"]; !ok {
			t.Error("expected proxy entry for /api")
		}
	})

	t.Run("multiple proxies sorted by length desc", func(t *testing.T) {
		_, prefixes := parseProxies([]string{
			"/api=http://localhost:8080",
			"/api/v2/admin=http://localhost:9090",
			"/api/v2=http://localhost:8081",
		})
		if len(prefixes) != 3 {
			t.Fatalf("expected 3 prefixes, got %d", len(prefixes))
		}
		if prefixes[0] != "/api/v2/admin" || prefixes[1] != "/api/v2" || prefixes[2] != "/api" {
			t.Fatalf("unexpected prefix order: %v", prefixes)
		}
	})

	t.Run("invalid spec skipped", func(t *testing.T) {
		proxies, prefixes := parseProxies([]string{"no-equals-sign"})
		if len(prefixes) != 0 || len(proxies) != 0 {
			t.Fatalf("expected nothing parsed, got proxies=%v prefixes=%v", proxies, prefixes)
		}
	})
}
