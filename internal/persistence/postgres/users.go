package postgres

import (
	"context"
	"strings"

	"gorm.io/gorm/clause"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return persistence.User{}, mapError(err)
	}
	return row.domain(), nil
}

// GetUserByEmail retrieves a user by case-insensitive email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&row).Error; err != nil {
		return persistence.User{}, mapError(err)
	}
	return row.domain(), nil
}

// UpsertUserByEmail inserts the user or updates the profile, role and password
// of the existing account with the same email.
func (s *Store) UpsertUserByEmail(ctx context.Context, user persistence.User) (persistence.User, error) {
	if user.ID == "" || user.Email == "" {
		return persistence.User{}, persistence.ErrConstraintViolation
	}
	user.Email = normalizeEmail(user.Email)
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now

	row := newUserRow(user)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "phone", "role", "password_hash", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return persistence.User{}, mapError(err)
	}
	return s.GetUserByEmail(ctx, user.Email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
