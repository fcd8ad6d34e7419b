package secretstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/store"
)

// PGKeyring persists a rotating HMAC keyring in the signing_keys table.
// Verification keeps every retired key reachable by kid so credentials
// issued under an older key still validate until they expire; signing
// always uses whichever key is currently marked active.
type PGKeyring struct {
	store store.Store
	clock clock.Clock
}

func NewPGKeyring(s store.Store, c clock.Clock) *PGKeyring {
	return &PGKeyring{store: s, clock: c}
}

// Bootstrap ensures at least one active key exists, generating a fresh
// HS256 key the first time a process starts against an empty keyring.
func (k *PGKeyring) Bootstrap(ctx context.Context) error {
	_, err := k.store.GetActiveSigningKey(ctx)
	if err == nil {
		return nil
	}
	if !domain.IsKind(err, domain.KindNotFound) {
		return err
	}
	return k.generateAndActivate(ctx)
}

func (k *PGKeyring) ActiveSigningKey(ctx context.Context) (string, []byte, string, error) {
	sk, err := k.store.GetActiveSigningKey(ctx)
	if err != nil {
		return "", nil, "", fmt.Errorf("secretstore: no active signing key: %w", err)
	}
	return sk.KID, sk.KeyMaterial, sk.Algorithm, nil
}

func (k *PGKeyring) SigningKey(ctx context.Context, kid string) ([]byte, string, error) {
	sk, err := k.store.GetSigningKey(ctx, kid)
	if err != nil {
		return nil, "", err
	}
	return sk.KeyMaterial, sk.Algorithm, nil
}

// Rotate generates a new active key and retires the previous one inside a
// single transaction, so readers never observe zero active keys.
func (k *PGKeyring) Rotate(ctx context.Context) error {
	return k.store.WithTransaction(ctx, func(ctx context.Context, tx store.Store) error {
		prev, err := tx.GetActiveSigningKey(ctx)
		if err != nil && !domain.IsKind(err, domain.KindNotFound) {
			return err
		}

		newKID, newKey, genErr := generateKey()
		if genErr != nil {
			return genErr
		}
		now := k.clock.Now()
		if err := tx.InsertSigningKey(ctx, &domain.SigningKey{
			KID:         newKID,
			Algorithm:   "HS256",
			KeyMaterial: newKey,
			IsActive:    true,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		if err := tx.ActivateSigningKey(ctx, newKID, now); err != nil {
			return err
		}
		if prev != nil {
			if err := tx.RetireSigningKey(ctx, prev.KID, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func (k *PGKeyring) generateAndActivate(ctx context.Context) error {
	return k.store.WithTransaction(ctx, func(ctx context.Context, tx store.Store) error {
		kid, key, err := generateKey()
		if err != nil {
			return err
		}
		now := k.clock.Now()
		if err := tx.InsertSigningKey(ctx, &domain.SigningKey{
			KID:         kid,
			Algorithm:   "HS256",
			KeyMaterial: key,
			IsActive:    true,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		return tx.ActivateSigningKey(ctx, kid, now)
	})
}

func generateKey() (kid string, key []byte, err error) {
	key = make([]byte, 32)
	if _, err = rand.Read(key); err != nil {
		return "", nil, errors.New("secretstore: failed to generate key material")
	}
	kidBytes := make([]byte, 8)
	if _, err = rand.Read(kidBytes); err != nil {
		return "", nil, errors.New("secretstore: failed to generate kid")
	}
	return hex.EncodeToString(kidBytes), key, nil
}
