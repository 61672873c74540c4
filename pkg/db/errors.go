package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/stockcore/pkg/errors"
)

// IsUniqueViolation reports whether err is a unique constraint failure from
// postgres or sqlite. When constraintName is provided, the postgres constraint
// name (or the error text, for sqlite) must also reference it.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	dump := pkgerrors.Dump(err)
	msg := err.Error()
	if !dump.UniqueViolation() &&
		!strings.Contains(msg, "duplicate key value") &&
		!strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	if constraintName == "" {
		return true
	}
	if dump.PGConstraint != "" {
		return dump.PGConstraint == constraintName
	}
	return strings.Contains(msg, constraintName)
}
