package secretstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// EnvKeyring is the single-operator bootstrap SecretStore: one HMAC key
// loaded from config at startup (JWT_SECRET_KEY), never rotated. It is the
// default when no database-backed keyring has been provisioned, mirroring
// how the teacher's validator falls back to a single configured key pair
// before Console's full cert pipeline exists.
type EnvKeyring struct {
	kid string
	key []byte
}

// NewEnvKeyring derives a stable kid from the key material itself so
// every process sharing the same secret agrees on the kid without a
// separate coordination step.
func NewEnvKeyring(secret string) (*EnvKeyring, error) {
	if len(secret) < 16 {
		return nil, errors.New("secretstore: JWT_SECRET_KEY must be at least 16 bytes")
	}
	sum := sha256.Sum256([]byte(secret))
	return &EnvKeyring{
		kid: hex.EncodeToString(sum[:8]),
		key: []byte(secret),
	}, nil
}

func (k *EnvKeyring) ActiveSigningKey(ctx context.Context) (string, []byte, string, error) {
	return k.kid, k.key, "HS256", nil
}

func (k *EnvKeyring) SigningKey(ctx context.Context, kid string) ([]byte, string, error) {
	if kid != k.kid {
		return nil, "", errors.New("secretstore: unknown kid")
	}
	return k.key, "HS256", nil
}

// Rotate is a no-op: a single env-sourced key has nowhere to rotate to.
func (k *EnvKeyring) Rotate(ctx context.Context) error {
	return nil
}
