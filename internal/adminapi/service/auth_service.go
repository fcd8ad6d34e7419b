package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/credential"
	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/secretstore"
	"github.com/toolaccess/broker/internal/store"
)

// AuthService authenticates operators against admin_users with bcrypt and
// issues a session bearer token, generalizing the teacher's AuthService
// (GetUserByUsername + bcrypt.CompareHashAndPassword + sign) but reusing
// the broker's own HS256/EdDSA CredentialVendor signer instead of standing
// up a second RS256 keypair just for admin sessions.
type AuthService struct {
	store   store.Store
	secrets secretstore.SecretStore
	clock   clock.Clock
	idgen   clock.IDGen
}

func NewAuthService(s store.Store, secrets secretstore.SecretStore, c clock.Clock, idgen clock.IDGen) *AuthService {
	return &AuthService{store: s, secrets: secrets, clock: c, idgen: idgen}
}

const sessionTTL = 24 * time.Hour

func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	user, err := s.store.GetAdminUserByUsername(ctx, username)
	if err != nil {
		return nil, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	token, _, _, err := credential.NewVendorSessionIssuer(s.secrets, s.clock, s.idgen).IssueSession(ctx, user.UserID, user.Role, sessionTTL)
	if err != nil {
		return nil, err
	}

	return &domain.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(sessionTTL.Seconds()),
	}, nil
}

// CreateAdminUser hashes password and persists a new operator account.
// There is no self-service signup endpoint; this is invoked from a seed
// script or an already-authenticated super-operator flow.
func (s *AuthService) CreateAdminUser(ctx context.Context, username, password, role string) (*domain.AdminUser, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &domain.AdminUser{
		UserID:       s.idgen.NewID(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.store.CreateAdminUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
