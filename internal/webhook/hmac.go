package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const prefix = "sha256="

// Verify reports whether signature is the HMAC-SHA256 of body under secret.
//
// The digest is compared with crypto/subtle so timing does not depend on how
// many leading bytes match. Accepted forms:
//   - "<hex>" (plain hex, either case)
//   - "sha256=<hex>" (GitHub style)
//
// An empty secret or signature, malformed hex, or a wrong length all yield
// false.
func Verify(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}

	actual, err := parseSignature(signature)
	if err != nil || len(actual) != sha256.Size {
		return false
	}

	return subtle.ConstantTimeCompare(digest(secret, body), actual) == 1
}

// Sign returns the lowercase hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	return hex.EncodeToString(digest(secret, body))
}

// Prefixed formats a hex signature in the "sha256=<hex>" form.
func Prefixed(hexSig string) string {
	return prefix + hexSig
}

func digest(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

func parseSignature(signature string) ([]byte, error) {
	signature = strings.TrimSpace(signature)
	if rest, ok := strings.CutPrefix(signature, prefix); ok {
		signature = rest
	}
	return hex.DecodeString(signature)
}
