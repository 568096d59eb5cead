// Package crypto provides request signing for authenticated exchange calls.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HMACAuth holds the credentials for HMAC-authenticated requests against the
// exchange REST API.
type HMACAuth struct {
	Key    string // API key, sent in the X-BX-APIKEY header
	Secret string // API secret, never sent on the wire
}

// Sign computes the hex-encoded HMAC-SHA256 signature of the canonical query
// string, as required by the spot trading endpoints.
func (h *HMACAuth) Sign(query string) string {
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
