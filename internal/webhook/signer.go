// Package webhook delivers job events to user endpoints and holds the HMAC
// signing shared with the editing backend's status callbacks.
package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrReplayWindowExceeded = errors.New("timestamp outside replay window")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrInvalidTimestamp     = errors.New("invalid timestamp")
)

// DefaultReplayWindow bounds clock skew between signer and verifier.
const DefaultReplayWindow = 5 * time.Minute

const secretPrefix = "whsec_"

// Sign returns the hex HMAC-SHA256 of "<unix seconds>.<body>" under key.
func Sign(key string, ts int64, body []byte) string {
	return hex.EncodeToString(mac(key, ts, body))
}

func mac(key string, ts int64, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(key))
	h.Write(strconv.AppendInt(nil, ts, 10))
	h.Write([]byte{'.'})
	h.Write(body)
	return h.Sum(nil)
}

// Verifier checks signatures produced by Sign. Timestamps further than
// Window from now in either direction are refused.
type Verifier struct {
	Key    string
	Window time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewVerifier uses DefaultReplayWindow.
func NewVerifier(key string) Verifier {
	return Verifier{Key: key, Window: DefaultReplayWindow}
}

// Verify takes the signature and timestamp in their header form.
func (v Verifier) Verify(signature, timestamp string, body []byte) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	skew := now().Sub(time.Unix(ts, 0)).Abs()
	if skew > v.Window {
		return ErrReplayWindowExceeded
	}

	got, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(got, mac(v.Key, ts, body)) {
		return ErrInvalidSignature
	}
	return nil
}

// HashSecret derives the stored signing key from a plaintext secret.
// Receivers compute the same value to verify deliveries.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// GenerateSecret returns "whsec_" followed by 32 random bytes in hex.
func GenerateSecret() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return secretPrefix + hex.EncodeToString(b[:]), nil
}
