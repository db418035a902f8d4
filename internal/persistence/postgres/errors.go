package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/nuru484/BeThere-server/internal/persistence"
)

// SQLSTATE codes mapped onto persistence sentinels.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNotNullViolation    = "23502"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return persistence.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", persistence.ErrDuplicate, err.Error())
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", persistence.ErrDuplicate, pgErr.ConstraintName)
		case codeForeignKeyViolation, codeCheckViolation, codeNotNullViolation:
			return fmt.Errorf("%w: %s", persistence.ErrConstraintViolation, pgErr.Message)
		}
	}
	return err
}
