// Package auth issues and verifies API keys and carries the authenticated
// caller on the request context.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aivideopro/aivideopro/internal/model"
)

// Plaintext keys look like avp_<env>_<prefix>_<secret>, for example
//
//	avp_live_7a9f3c_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b
//
// The prefix is stored in clear and narrows the lookup. Only an Argon2id
// hash of the whole key is stored.
const (
	keyScheme   = "avp"
	prefixBytes = 3
	secretBytes = 16
)

// Env separates production keys from sandbox keys.
type Env string

const (
	EnvLive Env = "live"
	EnvTest Env = "test"
)

var ErrInvalidKeyFormat = errors.New("invalid API key format")

// Key is a plaintext API key split into its parts.
type Key struct {
	Env    Env
	Prefix string
	Secret string
}

func (k Key) String() string {
	return keyScheme + "_" + string(k.Env) + "_" + k.Prefix + "_" + k.Secret
}

// MintKey draws a fresh random key. Unknown envs mint live keys.
func MintKey(env Env) (Key, error) {
	if env != EnvTest {
		env = EnvLive
	}
	buf := make([]byte, prefixBytes+secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return Key{}, fmt.Errorf("read random: %w", err)
	}
	return Key{
		Env:    env,
		Prefix: hex.EncodeToString(buf[:prefixBytes]),
		Secret: hex.EncodeToString(buf[prefixBytes:]),
	}, nil
}

// ParseAPIKey accepts only lowercase hex in the prefix and secret.
func ParseAPIKey(s string) (Key, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 4 || parts[0] != keyScheme {
		return Key{}, ErrInvalidKeyFormat
	}
	k := Key{Env: Env(parts[1]), Prefix: parts[2], Secret: parts[3]}
	if k.Env != EnvLive && k.Env != EnvTest {
		return Key{}, ErrInvalidKeyFormat
	}
	if !isLowerHex(k.Prefix, 2*prefixBytes) || !isLowerHex(k.Secret, 2*secretBytes) {
		return Key{}, ErrInvalidKeyFormat
	}
	return k, nil
}

func ValidateKeyFormat(s string) bool {
	_, err := ParseAPIKey(s)
	return err == nil
}

func isLowerHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// NewAPIKey mints a live key and the record that stores it. The plaintext
// is returned separately and is shown to the caller exactly once.
func NewAPIKey(userID, name string, scopes []string, tier string) (*model.APIKey, string, error) {
	k, err := MintKey(EnvLive)
	if err != nil {
		return nil, "", err
	}
	plaintext := k.String()
	hash, err := HashKey(plaintext)
	if err != nil {
		return nil, "", fmt.Errorf("hash key: %w", err)
	}
	if tier == "" {
		tier = model.TierFree
	}

	return &model.APIKey{
		ID:            ulid.Make().String(),
		UserID:        userID,
		KeyHash:       hash,
		KeyPrefix:     k.Prefix,
		Scopes:        scopes,
		RateLimitTier: tier,
		Name:          name,
		CreatedAt:     time.Now().UTC(),
	}, plaintext, nil
}
