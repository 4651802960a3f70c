package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/teamchat/pkg/errors"
)

var (
	// ErrValidation marks malformed input. Callers should not retry without changing it.
	ErrValidation = apperrors.New("VALIDATION_FAILED", "Invalid input", http.StatusBadRequest)
	// ErrStoreUnavailable marks an unreachable or failing datastore. The request may be retried.
	ErrStoreUnavailable = apperrors.New("STORE_UNAVAILABLE", "Data store unavailable, please try again", http.StatusServiceUnavailable)
)

// validationError builds an ErrValidation carrying a specific message.
func validationError(format string, args ...any) error {
	return &apperrors.AppError{
		Code:       ErrValidation.Code,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: ErrValidation.StatusCode,
	}
}

// storeError wraps a datastore failure so it matches ErrStoreUnavailable while keeping the cause.
func storeError(op string, err error) error {
	return ErrStoreUnavailable.WithInternal(fmt.Errorf("%s: %w", op, err))
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate key") ||
		strings.Contains(lower, "duplicate entry")
}
