package secretstore

import "context"

// SecretStore hands the credential vendor the key material it needs to
// sign and verify bearer credentials. Implementations are free to rotate
// keys behind the scenes; callers must always look a key up by kid rather
// than caching key material across calls (spec.md §4.6).
type SecretStore interface {
	// ActiveSigningKey returns the key currently used to sign new
	// credentials, along with its kid and algorithm.
	ActiveSigningKey(ctx context.Context) (kid string, key []byte, alg string, err error)

	// SigningKey looks up a (possibly retired) key by kid, for verifying a
	// credential that was signed before the last rotation.
	SigningKey(ctx context.Context, kid string) (key []byte, alg string, err error)

	// Rotate introduces a new active signing key and retires the previous
	// one. Implementations that do not support rotation (envkeyring) treat
	// this as a no-op.
	Rotate(ctx context.Context) error
}
