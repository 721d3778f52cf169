package postgres

import (
	"context"
	"strings"

	"github.com/jogardn/dtc-configurator/pkg/models"
)

const userColumns = `id, email, name, password_hash, is_admin, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	query := `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	return s.exec(ctx, query,
		u.ID, strings.ToLower(u.Email), u.Name, u.PasswordHash, u.IsAdmin, u.CreatedAt, u.UpdatedAt)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *Store) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var u models.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}
