package domain

import (
	"testing"
	"time"
)

func TestNormalizeHostname(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://WWW.Example.com/", "example.com"},
		{"example.com", "example.com"},
		{"Example.com/", "example.com"},
		{"http://example.com:8443/widget", "example.com"},
		{"  shop.example.co.uk  ", "shop.example.co.uk"},
		{"localhost:3000", "localhost:3000"},
		{"127.0.0.1:8080", "127.0.0.1:8080"},
		{"https://example.com?utm=1", "example.com"},
		{"::1", "::1"},
		{"[::1]", "::1"},
		{"[::1]:3000", "[::1]:3000"},
		{"https://[::1]:3000/widget", "[::1]:3000"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"2001:db8::beef", "2001:db8::beef"},
	}
	for _, c := range cases {
		got, err := NormalizeHostname(c.in)
		if err != nil {
			t.Fatalf("normalize(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeHostnameIdempotent(t *testing.T) {
	for _, in := range []string{"https://WWW.Example.com/", "example.com", "Example.com/", "localhost:3000", "[::1]:3000", "2001:db8::beef"} {
		once, err := NormalizeHostname(in)
		if err != nil {
			t.Fatalf("first pass %q: %v", in, err)
		}
		twice, err := NormalizeHostname(once)
		if err != nil {
			t.Fatalf("second pass %q: %v", once, err)
		}
		if once != twice {
			t.Fatalf("normalization not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestNormalizeHostnameRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "https://", "a b.com", "not:an:address", "[::1", "[example.com]:80", "[::1]x"} {
		if _, err := NormalizeHostname(in); err == nil {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}

func TestRefreshCredentialActive(t *testing.T) {
	now := time.Now()
	c := &RefreshCredential{ExpiresAt: now.Add(time.Hour)}
	if !c.Active(now) {
		t.Fatal("expected unexpired unrevoked credential to be active")
	}
	revoked := now
	c.RevokedAt = &revoked
	if c.Active(now) {
		t.Fatal("expected revoked credential to be inactive")
	}
	c.RevokedAt = nil
	if c.Active(now.Add(2 * time.Hour)) {
		t.Fatal("expected expired credential to be inactive")
	}
}
