package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/platinummonkey/thoughtnest/pkg/apperr"
)

const uniqueViolation = "23505"

// conflictFields maps unique constraints to the input field they guard.
var conflictFields = map[string]string{
	"users_username_key": "username",
	"users_email_key":    "email",
}

var conflictMessages = map[string]string{
	"username": "Username already exists",
	"email":    "Email already exists",
}

// mapError classifies a driver error. Missing rows become ErrNotFound and
// unique violations on known constraints become Conflict errors.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		if field, ok := conflictFields[pqErr.Constraint]; ok {
			return apperr.Conflict(field, conflictMessages[field])
		}
		return apperr.Conflict("", "Resource already exists")
	}

	return fmt.Errorf("%s: %w", op, err)
}

// expectAffected turns a zero-row write into ErrNotFound.
func expectAffected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	return nil
}
