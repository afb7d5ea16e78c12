package worker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_Format(t *testing.T) {
	payload := []byte(`{"event":"query.executed","data":{"rows":42}}`)

	signature, err := Sign(payload, "topsecret")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(signature, "sha256="))
	hexPart := strings.TrimPrefix(signature, "sha256=")
	assert.Len(t, hexPart, 64)
	_, err = hex.DecodeString(hexPart)
	assert.NoError(t, err)
}

func TestSign_RoundTrip(t *testing.T) {
	payload := []byte(`{"event":"dashboard.updated","timestamp":"2026-08-29T10:00:00Z"}`)
	secret := "a1b2c3d4e5f6"

	signature, err := Sign(payload, secret)
	require.NoError(t, err)

	// A receiver recomputing the HMAC over the identical bytes must
	// reproduce the header value.
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	assert.Equal(t, expected, signature)

	assert.True(t, VerifySignature(payload, secret, signature))
}

func TestVerifySignature_Tampered(t *testing.T) {
	payload := []byte(`{"event":"alert.triggered"}`)
	signature, err := Sign(payload, "secret")
	require.NoError(t, err)

	assert.False(t, VerifySignature([]byte(`{"event":"alert.resolved"}`), "secret", signature))
	assert.False(t, VerifySignature(payload, "other-secret", signature))
	assert.False(t, VerifySignature(payload, "secret", "sha256=deadbeef"))
}

func TestSign_EmptySecret(t *testing.T) {
	_, err := Sign([]byte("{}"), "")
	assert.Error(t, err)
}
