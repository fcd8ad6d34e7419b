package credential

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/toolaccess/broker/internal/audit"
	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/secretstore"
	"github.com/toolaccess/broker/internal/store"
)

// claims is the JWS payload spec.md §4.5 step 2 names verbatim.
type claims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
}

// ValidateResult is CredentialVendor.Validate's return value.
type ValidateResult struct {
	Valid        bool
	CredentialID string
	AgentID      string
	ToolID       string
	Scopes       []string
	ReasonCode   string
}

// Vendor issues, validates, revokes and sweeps bearer credentials. It
// generalizes the teacher's infra/auth.BaseValidator (single RS256 key,
// user-login only) into a kid-keyed signer/verifier over a rotatable
// SecretStore, built for machine-to-machine tool credentials rather than
// console sessions.
type Vendor struct {
	store   store.Store
	secrets secretstore.SecretStore
	clock   clock.Clock
	idgen   clock.IDGen
	audit   audit.Logger
	logger  *zap.Logger
}

func NewVendor(s store.Store, secrets secretstore.SecretStore, c clock.Clock, idgen clock.IDGen, auditLogger audit.Logger, logger *zap.Logger) *Vendor {
	return &Vendor{store: s, secrets: secrets, clock: c, idgen: idgen, audit: auditLogger, logger: logger.Named("credential_vendor")}
}

// Issue mints a new bearer credential and returns the plaintext token
// exactly once; it is never retrievable again afterward (spec.md §4.5).
func (v *Vendor) Issue(ctx context.Context, agentID, toolID string, scopes []string, lifetimeSeconds int, sourcePolicyID string, sourceRequestID *string) (credentialID, token string, expiresAt time.Time, err error) {
	kid, key, alg, err := v.secrets.ActiveSigningKey(ctx)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("credential: no active signing key: %w", err)
	}

	credentialID = v.idgen.NewID()
	now := v.clock.Now()
	expiresAt = now.Add(time.Duration(lifetimeSeconds) * time.Second)

	jti := credentialID
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID,
			Audience:  jwt.ClaimStrings{toolID},
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Scopes: scopes,
	}

	method, err := signingMethod(alg)
	if err != nil {
		return "", "", time.Time{}, err
	}
	tok := jwt.NewWithClaims(method, c)
	tok.Header["kid"] = kid

	signed, err := tok.SignedString(key)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("credential: signing failed: %w", err)
	}

	fingerprint := fingerprintOf(key, signed)

	cred := &domain.Credential{
		CredentialID:     credentialID,
		AgentID:          agentID,
		ToolID:           toolID,
		GrantedScopes:    scopes,
		TokenFingerprint: fingerprint,
		IssuedAt:         now,
		ExpiresAt:        expiresAt,
		SourcePolicyID:   sourcePolicyID,
		SourceRequestID:  sourceRequestID,
	}

	err = v.store.WithTransaction(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.InsertCredential(ctx, cred); err != nil {
			return err
		}
		credID := credentialID
		requestID := credentialID
		if sourceRequestID != nil {
			requestID = *sourceRequestID
		}
		return v.audit.LogEvent(ctx, &domain.AccessLog{
			RequestID:     requestID,
			AgentID:       agentID,
			ToolID:        toolID,
			CredentialID:  &credID,
			Event:         domain.EventCredentialIssued,
			Decision:      domain.DecisionAllow,
			ReasonCode:    "CREDENTIAL_ISSUED",
			GrantedScopes: scopes,
		})
	})
	if err != nil {
		return "", "", time.Time{}, err
	}

	return credentialID, signed, expiresAt, nil
}

// Validate parses and verifies token, then cross-checks it against the
// persisted credential row by constant-time fingerprint comparison. Every
// rejection path below returns the same shape of result to avoid leaking
// which check failed via timing (spec.md §4.5 step 5).
func (v *Vendor) Validate(ctx context.Context, token string, requiredScope string) (ValidateResult, error) {
	var unverifiedKID string
	parser := jwt.NewParser()
	unverifiedTok, _, perr := parser.ParseUnverified(token, &claims{})
	if perr == nil {
		if kid, ok := unverifiedTok.Header["kid"].(string); ok {
			unverifiedKID = kid
		}
	}

	// Only the signature is checked here; expiry and revocation are decided
	// below from the persisted row against the injected clock.
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
		}
		key, _, kerr := v.secrets.SigningKey(ctx, unverifiedKID)
		if kerr != nil {
			return nil, kerr
		}
		return key, nil
	}, jwt.WithoutClaimsValidation())

	reject := func(reason string) (ValidateResult, error) {
		v.logEventBestEffort(ctx, domain.EventCredentialValidated, domain.DecisionDeny, reason, "", "", "", nil)
		return ValidateResult{Valid: false, ReasonCode: reason}, nil
	}

	if err != nil || !parsed.Valid {
		return reject("SIGNATURE_INVALID")
	}
	if _, ok := parsed.Claims.(*claims); !ok {
		return reject("SIGNATURE_INVALID")
	}

	key, _, _ := v.secrets.SigningKey(ctx, unverifiedKID)
	fingerprint := fingerprintOf(key, token)

	cred, err := v.store.GetCredentialByFingerprint(ctx, fingerprint)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return reject("CREDENTIAL_NOT_FOUND")
		}
		return ValidateResult{}, err
	}
	if !constantTimeFingerprintMatch(cred.TokenFingerprint, fingerprint) {
		return reject("CREDENTIAL_NOT_FOUND")
	}

	now := v.clock.Now()
	if !cred.IsValidAt(now) {
		reason := "CREDENTIAL_EXPIRED"
		if cred.RevokedAt != nil {
			reason = "CREDENTIAL_REVOKED"
		}
		return reject(reason)
	}

	if requiredScope != "" && !cred.HasScope(requiredScope) {
		return reject("INSUFFICIENT_SCOPE")
	}

	v.logEventBestEffort(ctx, domain.EventCredentialValidated, domain.DecisionAllow, "CREDENTIAL_VALID",
		cred.CredentialID, cred.AgentID, cred.ToolID, cred.GrantedScopes)

	return ValidateResult{
		Valid:        true,
		CredentialID: cred.CredentialID,
		AgentID:      cred.AgentID,
		ToolID:       cred.ToolID,
		Scopes:       cred.GrantedScopes,
		ReasonCode:   "CREDENTIAL_VALID",
	}, nil
}

// Revoke sets revoked_at and logs CREDENTIAL_REVOKED; idempotent per
// spec.md §4.5.
func (v *Vendor) Revoke(ctx context.Context, credentialID, actorID string) error {
	cred, err := v.store.GetCredential(ctx, credentialID)
	if err != nil {
		return err
	}
	now := v.clock.Now()
	if err := v.store.RevokeCredential(ctx, credentialID, now); err != nil {
		return err
	}
	credID := credentialID
	return v.audit.LogEvent(ctx, &domain.AccessLog{
		RequestID:    credentialID,
		AgentID:      cred.AgentID,
		ToolID:       cred.ToolID,
		CredentialID: &credID,
		Event:        domain.EventCredentialRevoked,
		Decision:     domain.DecisionAllow,
		ReasonCode:   "CREDENTIAL_REVOKED",
	})
}

func (v *Vendor) logEventBestEffort(ctx context.Context, event domain.AccessEvent, decision domain.DecisionOutcome, reason, credentialID, agentID, toolID string, scopes []string) {
	entry := &domain.AccessLog{
		RequestID:  v.idgen.NewID(),
		AgentID:    agentID,
		ToolID:     toolID,
		Event:      event,
		Decision:   decision,
		ReasonCode: reason,
	}
	if credentialID != "" {
		entry.CredentialID = &credentialID
	}
	entry.GrantedScopes = scopes
	if err := v.audit.LogEvent(ctx, entry); err != nil {
		v.logger.Error("failed to log validation outcome", zap.Error(err))
	}
}

func signingMethod(alg string) (jwt.SigningMethod, error) {
	switch alg {
	case "HS256":
		return jwt.SigningMethodHS256, nil
	case "EdDSA":
		return jwt.SigningMethodEdDSA, nil
	default:
		return nil, fmt.Errorf("credential: unsupported signing algorithm %q", alg)
	}
}

func fingerprintOf(key []byte, token string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(token))
	return mac.Sum(nil)
}

// constantTimeFingerprintMatch is a belt-and-suspenders check: the
// fingerprint used to look the row up is already computed identically, so
// this only guards against a future lookup path that stops matching on
// the full fingerprint (e.g. a prefix index).
func constantTimeFingerprintMatch(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
