package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	perr "nafbridge/internal/platform/errors"
)

// Verifier checks the hex HMAC-SHA256 body signature the platform sends
type Verifier struct {
	secret []byte
}

// NewVerifier builds a verifier for the shared secret
func NewVerifier(secret string) Verifier {
	return Verifier{secret: []byte(secret)}
}

// Verify recomputes the signature over the raw body and compares it
// in constant time against the header value
func (v Verifier) Verify(body []byte, signature string) error {
	if len(v.secret) == 0 {
		return perr.Internalf("webhook secret not configured")
	}
	if signature == "" {
		return perr.SignatureInvalidf("missing signature header")
	}

	given, err := hex.DecodeString(signature)
	if err != nil {
		return perr.SignatureInvalidf("malformed signature header")
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(given, mac.Sum(nil)) {
		return perr.SignatureInvalidf("signature mismatch")
	}
	return nil
}

// Sign produces the hex signature for a body, used by tests and the
// registration handshake
func (v Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
