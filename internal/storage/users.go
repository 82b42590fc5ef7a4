package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"campusmart/internal/model"
)

const userColumns = `id, name, email, whatsapp, password_hash, created_at`

// CreateUser inserts a new account. Emails are unique regardless of case.
func (s *SQLite) CreateUser(ctx context.Context, u *model.User) error {
	id := uuid.NewString()
	created := now()
	email := strings.TrimSpace(u.Email)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		id, u.Name, email, u.WhatsApp, u.PasswordHash, created,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", email, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	u.Email = email
	u.CreatedAt = parseTime(created)
	return nil
}

// GetUser returns a user by ID.
func (s *SQLite) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail returns a user by email, ignoring case.
func (s *SQLite) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.TrimSpace(email))
	return scanUser(row)
}

// UpdateWhatsApp sets the contact number shown to buyers.
func (s *SQLite) UpdateWhatsApp(ctx context.Context, userID, number string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET whatsapp = ? WHERE id = ?`, number, userID)
	if err != nil {
		return fmt.Errorf("update whatsapp: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}

func scanUser(row scannable) (*model.User, error) {
	var u model.User
	var created string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.WhatsApp, &u.PasswordHash, &created); err != nil {
		return nil, notFound(err, "user")
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}
