package postgres

import (
	"context"

	"github.com/toolaccess/broker/internal/domain"
)

func (s *PGStore) GetAdminUserByUsername(ctx context.Context, username string) (*domain.AdminUser, error) {
	const q = `SELECT user_id, username, password_hash, role, created_at FROM admin_users WHERE username = $1`
	var u domain.AdminUser
	err := s.db.QueryRow(ctx, q, username).Scan(&u.UserID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, translatePGError(err)
	}
	return &u, nil
}

func (s *PGStore) CreateAdminUser(ctx context.Context, u *domain.AdminUser) error {
	const q = `INSERT INTO admin_users (user_id, username, password_hash, role, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.Exec(ctx, q, u.UserID, u.Username, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		return translatePGError(err)
	}
	return nil
}
