package database

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrTemplateLocked is returned when a template's rule or start date would
	// change after instances were materialized from it
	ErrTemplateLocked = errors.New("template has materialized instances")
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation
const uniqueViolation = pq.ErrorCode("23505")

// IsUniqueViolation reports whether err is a Postgres unique constraint violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
