package crypto

import (
	"strings"
	"testing"
)

func TestSign(t *testing.T) {
	auth := &HMACAuth{Key: "api-key", Secret: "key"}

	// RFC 4231-style known vector for HMAC-SHA256.
	got := auth.Sign("The quick brown fox jumps over the lazy dog")
	want := "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got != want {
		t.Errorf("signature = %s, want %s", got, want)
	}
}

func TestSignDiffersPerSecret(t *testing.T) {
	q := "symbol=SOL-USDT&timestamp=1700000000000"
	a := (&HMACAuth{Secret: "s1"}).Sign(q)
	b := (&HMACAuth{Secret: "s2"}).Sign(q)
	if a == b {
		t.Error("different secrets produced the same signature")
	}
	if len(a) != 64 {
		t.Errorf("signature length = %d, want 64 hex chars", len(a))
	}
}

func TestStringRedactsCredentials(t *testing.T) {
	auth := &HMACAuth{Key: "abcdef123456", Secret: "supersecretvalue"}
	s := auth.String()
	if strings.Contains(s, "123456") || strings.Contains(s, "secretvalue") {
		t.Errorf("credentials leaked: %s", s)
	}
	if !strings.Contains(s, "abcd****") {
		t.Errorf("redacted prefix missing: %s", s)
	}
}
