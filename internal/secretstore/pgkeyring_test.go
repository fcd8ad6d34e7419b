package secretstore

import (
	"context"
	"testing"
	"time"

	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/store/storetest"
)

func TestPGKeyringBootstrapGeneratesFirstKey(t *testing.T) {
	mem := storetest.New()
	k := NewPGKeyring(mem, clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	if err := k.Bootstrap(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	kid, key, alg, err := k.ActiveSigningKey(context.Background())
	if err != nil {
		t.Fatalf("unexpected error after bootstrap: %v", err)
	}
	if kid == "" || len(key) == 0 || alg != "HS256" {
		t.Fatalf("expected a generated key, got kid=%q key-len=%d alg=%q", kid, len(key), alg)
	}
}

func TestPGKeyringBootstrapIsIdempotent(t *testing.T) {
	mem := storetest.New()
	k := NewPGKeyring(mem, clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	if err := k.Bootstrap(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	kidBefore, _, _, _ := k.ActiveSigningKey(context.Background())

	if err := k.Bootstrap(context.Background()); err != nil {
		t.Fatalf("unexpected error on second bootstrap: %v", err)
	}
	kidAfter, _, _, _ := k.ActiveSigningKey(context.Background())

	if kidBefore != kidAfter {
		t.Fatalf("expected bootstrap to be a no-op once a key is active, got %q then %q", kidBefore, kidAfter)
	}
}

func TestPGKeyringRotateActivatesNewKeyAndRetiresOld(t *testing.T) {
	mem := storetest.New()
	fixed := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	k := NewPGKeyring(mem, fixed)

	if err := k.Bootstrap(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	oldKID, _, _, _ := k.ActiveSigningKey(context.Background())

	fixed.Advance(24 * time.Hour)
	if err := k.Rotate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	newKID, _, _, err := k.ActiveSigningKey(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newKID == oldKID {
		t.Fatalf("expected rotation to activate a different kid")
	}

	// The old key must still resolve for verification of tokens issued
	// under it, even though it is no longer active.
	if _, _, err := k.SigningKey(context.Background(), oldKID); err != nil {
		t.Fatalf("expected retired key to remain lookupable, got error: %v", err)
	}

	keys, err := mem.ListSigningKeys(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawRetired bool
	for _, sk := range keys {
		if sk.KID == oldKID {
			if sk.IsActive {
				t.Fatalf("expected old key to be inactive after rotation")
			}
			if sk.RetiredAt == nil {
				t.Fatalf("expected old key to carry a RetiredAt timestamp")
			}
			sawRetired = true
		}
	}
	if !sawRetired {
		t.Fatalf("expected the old key to still be present in the keyring")
	}
}
