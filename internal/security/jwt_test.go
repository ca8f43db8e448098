package security

import (
	"strings"
	"testing"
	"time"
)

func newTestManager() *JWTManager {
	return NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newTestManager()
	raw, err := m.SignAccessToken(42, 7, "admin", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := m.ParseAccessToken(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "42" || claims.TenantID != 7 || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected a token id")
	}
}

func TestExpiredTokenRejectedByParseButDecodable(t *testing.T) {
	m := newTestManager()
	raw, err := m.SignAccessToken(42, 7, "admin", -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.ParseAccessToken(raw); err == nil {
		t.Fatal("expected expired token to fail full validation")
	}
	claims, err := m.ParseExpiredAccessToken(raw)
	if err != nil {
		t.Fatalf("expired decode: %v", err)
	}
	if claims.Subject != "42" {
		t.Fatalf("unexpected subject: %q", claims.Subject)
	}
}

func TestTamperedTokenRejectedEvenIgnoringExpiry(t *testing.T) {
	m := newTestManager()
	raw, err := m.SignAccessToken(42, 7, "admin", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	parts := strings.Split(raw, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := m.ParseExpiredAccessToken(tampered); err == nil {
		t.Fatal("expected tampered signature to fail")
	}
	if _, err := m.ParseExpiredAccessToken("not-a-token"); err == nil {
		t.Fatal("expected malformed token to fail")
	}
}

func TestWrongIssuerOrAudienceRejected(t *testing.T) {
	other := NewJWTManager("other-iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")
	raw, err := other.SignAccessToken(42, 7, "admin", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	m := newTestManager()
	if _, err := m.ParseAccessToken(raw); err == nil {
		t.Fatal("expected issuer mismatch to fail full validation")
	}
	if _, err := m.ParseExpiredAccessToken(raw); err == nil {
		t.Fatal("expected issuer mismatch to fail expired decode")
	}
}

func TestDifferentSecretRejected(t *testing.T) {
	other := NewJWTManager("iss", "aud", "00000000000000000000000000000000")
	raw, err := other.SignAccessToken(42, 7, "admin", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	m := newTestManager()
	if _, err := m.ParseExpiredAccessToken(raw); err == nil {
		t.Fatal("expected wrong key to fail")
	}
}
