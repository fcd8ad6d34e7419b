package domain

import "time"

// SigningKey is one entry in the credential-signing keyring. Only one key
// is active at a time; retired keys are kept so tokens issued under them
// can still be verified until they expire (spec.md §4.6).
type SigningKey struct {
	KID         string
	Algorithm   string
	KeyMaterial []byte
	IsActive    bool
	CreatedAt   time.Time
	RetiredAt   *time.Time
}
