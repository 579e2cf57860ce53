package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	DefaultArgon2Memory      = 64 * 1024 // KiB
	DefaultArgon2Iterations  = 3
	DefaultArgon2Parallelism = 2
	SaltLength               = 16
	HashKeyLength            = 32

	// Upper bounds accepted when parsing a stored hash; anything above is treated as corrupt
	maxArgon2Memory      = 1024 * 1024
	maxArgon2Iterations  = 64
	maxArgon2Parallelism = 64
)

// Argon2Params configures the cost of argon2id hashing
type Argon2Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultArgon2Params returns the production cost parameters
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      DefaultArgon2Memory,
		Iterations:  DefaultArgon2Iterations,
		Parallelism: DefaultArgon2Parallelism,
	}
}

// Validate rejects parameters argon2 cannot run with
func (p Argon2Params) Validate() error {
	if p.Iterations < 1 || p.Iterations > maxArgon2Iterations {
		return fmt.Errorf("argon2 iterations must be between 1 and %d", maxArgon2Iterations)
	}
	if p.Parallelism < 1 || p.Parallelism > maxArgon2Parallelism {
		return fmt.Errorf("argon2 parallelism must be between 1 and %d", maxArgon2Parallelism)
	}
	if p.Memory < 8*uint32(p.Parallelism) || p.Memory > maxArgon2Memory {
		return fmt.Errorf("argon2 memory must be between %d and %d KiB", 8*uint32(p.Parallelism), maxArgon2Memory)
	}
	return nil
}

// SecretVerifier one-way hashes credential secrets with salted argon2id.
// Hashes use the PHC string format, so the salt and cost travel with the hash:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>
type SecretVerifier struct {
	params Argon2Params
}

// NewSecretVerifier creates a SecretVerifier with the given cost
func NewSecretVerifier(params Argon2Params) (*SecretVerifier, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &SecretVerifier{params: params}, nil
}

// Hash returns an encoded hash of secret with a fresh random salt
func (v *SecretVerifier) Hash(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret cannot be empty")
	}

	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, v.params.Iterations, v.params.Memory, v.params.Parallelism, HashKeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		v.params.Memory, v.params.Iterations, v.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches encoded. A malformed hash is a mismatch, never an error.
func (v *SecretVerifier) Verify(secret, encoded string) bool {
	params, salt, want, err := decodeHash(encoded)
	if err != nil {
		return false
	}

	got := argon2.IDKey([]byte(secret), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// decodeHash parses a PHC argon2id string using the cost recorded in it
func decodeHash(encoded string) (Argon2Params, []byte, []byte, error) {
	var params Argon2Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return params, nil, nil, errors.New("invalid hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return params, nil, nil, errors.New("unsupported argon2 version")
	}

	var parallelism uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &parallelism); err != nil {
		return params, nil, nil, errors.New("invalid hash parameters")
	}
	if parallelism > maxArgon2Parallelism {
		return params, nil, nil, errors.New("invalid hash parameters")
	}
	params.Parallelism = uint8(parallelism)
	if err := params.Validate(); err != nil {
		return params, nil, nil, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return params, nil, nil, errors.New("invalid salt")
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return params, nil, nil, errors.New("invalid key")
	}

	return params, salt, key, nil
}
