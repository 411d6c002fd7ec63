package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"recordshop/internal/core/apperror"
)

// SQLSTATE codes the repositories react to.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeQueryCanceled       = "57014"
)

// PgCode returns the SQLSTATE of err, or "" when err is not a server error.
func PgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return PgCode(err) == codeUniqueViolation
}

// IsForeignKeyViolation reports whether err is a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	return PgCode(err) == codeForeignKeyViolation
}

// IsQueryCanceled reports whether the server cancelled the statement,
// typically because statement_timeout fired.
func IsQueryCanceled(err error) bool {
	return PgCode(err) == codeQueryCanceled
}

// ConstraintError converts a constraint violation into an AppError and
// returns nil for anything else.
func ConstraintError(err error, entity string, key map[string]any) *apperror.AppError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return apperror.NewAlreadyExists(entity, key).
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case codeCheckViolation:
		return apperror.NewValidation("value violates a table constraint").
			WithDetail("entity", entity).
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	}
	return nil
}
