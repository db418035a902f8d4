package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

const userColumns = `id, email, first_name, last_name, phone, role, password_hash, created_at, updated_at`

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	row := s.pool.DB().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by case-insensitive email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	row := s.pool.DB().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email))
	return scanUser(row)
}

// UpsertUserByEmail inserts the user or updates the profile, role and password
// of the existing account with the same email.
func (s *Store) UpsertUserByEmail(ctx context.Context, user persistence.User) (persistence.User, error) {
	if user.ID == "" || user.Email == "" {
		return persistence.User{}, persistence.ErrConstraintViolation
	}
	now := s.now()
	user.Email = normalizeEmail(user.Email)

	const query = `
		INSERT INTO users (id, email, first_name, last_name, phone, role, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			phone = excluded.phone,
			role = excluded.role,
			password_hash = excluded.password_hash,
			updated_at = excluded.updated_at`

	_, err := s.exec(ctx, query,
		user.ID,
		user.Email,
		user.FirstName,
		user.LastName,
		nullableString(user.Phone),
		user.Role,
		user.PasswordHash,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return persistence.User{}, err
	}
	return s.GetUserByEmail(ctx, user.Email)
}

func scanUser(row *sql.Row) (persistence.User, error) {
	var (
		user                 persistence.User
		phone                sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName, &phone, &user.Role, &user.PasswordHash, &createdAt, &updatedAt)
	if err != nil {
		return persistence.User{}, mapError(err)
	}
	user.Phone = phone.String
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
