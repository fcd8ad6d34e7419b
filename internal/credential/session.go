package credential

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/secretstore"
)

// sessionClaims is the admin-session analogue of claims above, carrying a
// role instead of tool-scoped scopes — the Admin API authorizes by role,
// not by the core's scope language.
type sessionClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// SessionIssuer mints short-lived operator session tokens for the Admin
// API, sharing the core's SecretStore keyring rather than a separate PKI
// (spec.md §4.8's explicit simplification over the teacher's console RS256
// setup).
type SessionIssuer struct {
	secrets secretstore.SecretStore
	clock   clock.Clock
	idgen   clock.IDGen
}

func NewVendorSessionIssuer(secrets secretstore.SecretStore, c clock.Clock, idgen clock.IDGen) *SessionIssuer {
	return &SessionIssuer{secrets: secrets, clock: c, idgen: idgen}
}

func (s *SessionIssuer) IssueSession(ctx context.Context, userID, role string, ttl time.Duration) (token string, expiresAt time.Time, jti string, err error) {
	kid, key, alg, kerr := s.secrets.ActiveSigningKey(ctx)
	if kerr != nil {
		return "", time.Time{}, "", kerr
	}

	now := s.clock.Now()
	expiresAt = now.Add(ttl)
	jti = s.idgen.NewID()

	method, merr := signingMethod(alg)
	if merr != nil {
		return "", time.Time{}, "", merr
	}

	c := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(method, c)
	tok.Header["kid"] = kid

	signed, serr := tok.SignedString(key)
	if serr != nil {
		return "", time.Time{}, "", serr
	}
	return signed, expiresAt, jti, nil
}

// VerifySession parses and validates an admin session token, returning the
// subject (user id) and role claim.
func (s *SessionIssuer) VerifySession(ctx context.Context, token string) (userID, role string, err error) {
	parser := jwt.NewParser()
	unverified, _, perr := parser.ParseUnverified(token, &sessionClaims{})
	var kid string
	if perr == nil {
		if k, ok := unverified.Header["kid"].(string); ok {
			kid = k
		}
	}

	parsed, perr2 := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
		}
		key, _, kerr := s.secrets.SigningKey(ctx, kid)
		if kerr != nil {
			return nil, kerr
		}
		return key, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if perr2 != nil || !parsed.Valid {
		return "", "", jwt.ErrTokenSignatureInvalid
	}
	c, ok := parsed.Claims.(*sessionClaims)
	if !ok {
		return "", "", jwt.ErrTokenSignatureInvalid
	}
	return c.Subject, c.Role, nil
}
