package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Errors from VerifyKey.
var (
	ErrInvalidHash         = errors.New("invalid key hash")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

// argonParams are the Argon2id settings stored in every hash.
type argonParams struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
}

// keyHashParams are used for new hashes.
var keyHashParams = argonParams{memory: 64 * 1024, time: 3, threads: 4}

// maxHashMemory caps what a stored hash may ask VerifyKey to allocate.
const maxHashMemory = 256 * 1024

const (
	saltLen = 16
	hashLen = 32
)

// HashKey hashes an API key for storage, in PHC form:
// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
func HashKey(key string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	p := keyHashParams
	sum := argon2.IDKey([]byte(key), salt, p.time, p.memory, p.threads, hashLen)
	return encodeHash(p, salt, sum), nil
}

// VerifyKey reports whether key matches encoded. The comparison is
// constant time. A malformed hash is an error, a mismatch is not.
func VerifyKey(key, encoded string) (bool, error) {
	p, salt, want, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(key), salt, p.time, p.memory, p.threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func encodeHash(p argonParams, salt, sum []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	)
}

func decodeHash(encoded string) (argonParams, []byte, []byte, error) {
	var p argonParams

	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, hash
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return p, nil, nil, ErrIncompatibleVersion
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	if p.memory == 0 || p.memory > maxHashMemory || p.time == 0 || p.threads == 0 {
		return p, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, ErrInvalidHash
	}
	sum, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(sum) == 0 {
		return p, nil, nil, ErrInvalidHash
	}
	return p, salt, sum, nil
}

// QuickHash is the auth cache key for a plaintext API key: 16 bytes of
// SHA-256, hex. It only needs to be unique, not slow.
func QuickHash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}
