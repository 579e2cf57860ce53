package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	CredentialScheme = "mf"
	PrefixIDBytes    = 8  // 16 hex chars
	SecretLength     = 32 // base62 chars
	MaxCredentialLen = 256
)

const secretCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ErrMalformedCredential is returned when a credential has no usable prefix
var ErrMalformedCredential = errors.New("malformed credential")

// GenerateCredential creates a new credential in the format: mf_<16 hex>_<32 base62>
// Returns the plaintext (shown once) and its public prefix (mf_<16 hex>)
func GenerateCredential() (plainKey, prefix string, err error) {
	idBytes := make([]byte, PrefixIDBytes)
	if _, err := rand.Read(idBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate prefix: %w", err)
	}
	prefix = CredentialScheme + "_" + hex.EncodeToString(idBytes)

	secret, err := randomString(SecretLength)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate secret: %w", err)
	}

	return prefix + "_" + secret, prefix, nil
}

// ExtractPrefix returns the first two underscore-delimited segments of a credential.
// Both segments must be non-empty; a partial value is never returned.
func ExtractPrefix(credential string) (string, error) {
	if credential == "" || len(credential) > MaxCredentialLen {
		return "", ErrMalformedCredential
	}

	parts := strings.SplitN(credential, "_", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", ErrMalformedCredential
	}

	return parts[0] + "_" + parts[1], nil
}

func randomString(n int) (string, error) {
	max := big.NewInt(int64(len(secretCharset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = secretCharset[idx.Int64()]
	}
	return string(b), nil
}
