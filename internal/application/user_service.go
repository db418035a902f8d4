package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

// UserRepository captures the persistence operations needed by the user service.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (persistence.User, error)
	UpsertUserByEmail(ctx context.Context, user persistence.User) (persistence.User, error)
}

const minPasswordLength = 8

var inputValidator = validator.New()

// UserService looks up accounts and seeds the administrator.
type UserService struct {
	users       UserRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, idGenerator func() string, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, idGenerator, now, nil)
}

// NewUserServiceWithLogger wires dependencies with a specified logger.
func NewUserServiceWithLogger(users UserRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *UserService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{users: users, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

// GetUser returns one account.
func (s *UserService) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if s == nil || s.users == nil {
		return persistence.User{}, fmt.Errorf("user repository not configured")
	}
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return persistence.User{}, mapRepoError(err, "user", id)
	}
	return user, nil
}

// SeedAdmin creates the administrator account, or refreshes it when the
// email is already registered.
func (s *UserService) SeedAdmin(ctx context.Context, params SeedAdminParams) (user persistence.User, err error) {
	if s == nil || s.users == nil {
		return persistence.User{}, fmt.Errorf("user repository not configured")
	}
	logger := serviceLogger(ctx, s.logger, "UserService", "SeedAdmin")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "seed admin failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "admin seeded", "user_id", user.ID, "email", user.Email)
	}()

	params.Email = strings.ToLower(strings.TrimSpace(params.Email))
	params.FirstName = strings.TrimSpace(params.FirstName)
	params.LastName = strings.TrimSpace(params.LastName)
	params.Phone = strings.TrimSpace(params.Phone)

	vErr := &ValidationError{}
	if params.Email == "" {
		vErr.add("email", "email is required")
	} else if inputValidator.Var(params.Email, "email") != nil {
		vErr.add("email", "email must be a valid address")
	}
	if len(params.Password) < minPasswordLength {
		vErr.add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if params.FirstName == "" {
		vErr.add("first_name", "first name is required")
	}
	if params.LastName == "" {
		vErr.add("last_name", "last name is required")
	}
	if vErr.HasErrors() {
		return persistence.User{}, vErr
	}

	hash, err := HashPassword(params.Password)
	if err != nil {
		return persistence.User{}, fmt.Errorf("hash admin password: %w", err)
	}

	now := s.now()
	user, err = s.users.UpsertUserByEmail(ctx, persistence.User{
		ID:           s.idGenerator(),
		Email:        params.Email,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Phone:        params.Phone,
		Role:         persistence.RoleAdmin,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return persistence.User{}, mapRepoError(err, "user", params.Email)
	}
	return user, nil
}
