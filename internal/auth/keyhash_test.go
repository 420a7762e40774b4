package auth

import (
	"errors"
	"strings"
	"testing"
)

const sampleKey = "avp_live_7a9f3c_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b"

func TestHashKey_PHCFormat(t *testing.T) {
	t.Parallel()

	hash, err := HashKey(sampleKey)
	if err != nil {
		t.Fatalf("HashKey: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=4$") {
		t.Errorf("hash = %q", hash)
	}
	if strings.Contains(hash, sampleKey) {
		t.Error("hash contains the plaintext key")
	}
}

func TestHashKey_SaltedAndVerifiable(t *testing.T) {
	t.Parallel()

	h1, err := HashKey(sampleKey)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashKey(sampleKey)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("two hashes of one key are identical; salt missing")
	}

	for _, h := range []string{h1, h2} {
		ok, err := VerifyKey(sampleKey, h)
		if err != nil || !ok {
			t.Errorf("VerifyKey(own hash) = %v, %v", ok, err)
		}
	}

	ok, err := VerifyKey("avp_live_7a9f3c_00000000000000000000000000000000", h1)
	if err != nil || ok {
		t.Errorf("VerifyKey(other key) = %v, %v; want false, nil", ok, err)
	}
}

func TestVerifyKey_RejectsMalformedHashes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hash string
		want error
	}{
		{"empty", "", ErrInvalidHash},
		{"not phc", "not-a-hash", ErrInvalidHash},
		{"bcrypt", "$2a$10$abcdefghijklmnopqrstuv", ErrInvalidHash},
		{"other algorithm", "$argon2i$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA", ErrInvalidHash},
		{"truncated", "$argon2id$v=19$m=65536", ErrInvalidHash},
		{"old version", "$argon2id$v=16$m=65536,t=3,p=4$c2FsdA$aGFzaA", ErrIncompatibleVersion},
		{"zero time", "$argon2id$v=19$m=65536,t=0,p=4$c2FsdA$aGFzaA", ErrInvalidHash},
		{"memory bomb", "$argon2id$v=19$m=4194304,t=3,p=4$c2FsdA$aGFzaA", ErrInvalidHash},
		{"bad salt", "$argon2id$v=19$m=65536,t=3,p=4$!!!$aGFzaA", ErrInvalidHash},
		{"empty hash", "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$", ErrInvalidHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ok, err := VerifyKey(sampleKey, tt.hash)
			if ok || !errors.Is(err, tt.want) {
				t.Errorf("VerifyKey = %v, %v; want false, %v", ok, err, tt.want)
			}
		})
	}
}

func TestQuickHash(t *testing.T) {
	t.Parallel()

	a := QuickHash(sampleKey)
	if len(a) != 32 {
		t.Errorf("len = %d, want 32", len(a))
	}
	if a != QuickHash(sampleKey) {
		t.Error("QuickHash is not deterministic")
	}
	if a == QuickHash(sampleKey+"x") {
		t.Error("different keys share a QuickHash")
	}
}
