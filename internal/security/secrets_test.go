package security

import (
	"strings"
	"testing"
)

func TestNewRefreshSecretEntropyAndUniqueness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		s, err := NewRefreshSecret()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		// 64 bytes base64url, no padding.
		if len(s) != 86 {
			t.Fatalf("unexpected secret length %d", len(s))
		}
		if seen[s] {
			t.Fatal("duplicate secret generated")
		}
		seen[s] = true
	}
}

func TestHashRefreshSecretDeterministicAndPeppered(t *testing.T) {
	a := HashRefreshSecret("secret", "pepper")
	b := HashRefreshSecret("secret", "pepper")
	if a != b {
		t.Fatal("hash must be deterministic")
	}
	if a == HashRefreshSecret("secret", "other-pepper") {
		t.Fatal("pepper must change the hash")
	}
	if a == HashRefreshSecret("other-secret", "pepper") {
		t.Fatal("secret must change the hash")
	}
	if strings.Contains(a, "secret") {
		t.Fatal("hash must not contain the raw value")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got length %d", len(a))
	}
}

func TestAPIKeyPrefix(t *testing.T) {
	k, err := NewAPIKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(k, "sk_") {
		t.Fatalf("unexpected api key format: %q", k)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	h, err := HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(h, "hunter2hunter2") {
		t.Fatal("expected matching password to verify")
	}
	if CheckPassword(h, "wrong-password") {
		t.Fatal("expected wrong password to fail")
	}
}
