package worker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sign computes an HMAC-SHA256 signature over the payload bytes.
// Returns the signature in the format: sha256=<hex_encoded_hmac>
func Sign(payload []byte, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	if _, err := mac.Write(payload); err != nil {
		return "", fmt.Errorf("failed to write payload to HMAC: %w", err)
	}

	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil))), nil
}

// VerifySignature recomputes the HMAC over the raw body bytes and compares it
// to the received header value in constant time. This is what receivers do.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected, err := Sign(payload, secret)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}
