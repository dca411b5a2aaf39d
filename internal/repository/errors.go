package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicateVerificationCode is returned when an enrollment collides on its certificate code.
var ErrDuplicateVerificationCode = errors.New("verification code already in use")

const pqUniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
