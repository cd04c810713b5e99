package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/school/feeledger/internal/domain/fees"
)

// Postgres SQLSTATE codes the repositories react to
const (
	sqlStateUniqueViolation      = "23505"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateQueryCanceled        = "57014"
)

// sqlState extracts the SQLSTATE and constraint name from a driver error.
// Both the pgx driver used by gorm and lib/pq (used by migrations) are understood.
func sqlState(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint
	}
	return "", ""
}

// IsUniqueViolation reports whether err is a unique constraint violation
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, _ := sqlState(err); code != "" {
		return code == sqlStateUniqueViolation
	}
	// fallback string check for drivers without typed errors (sqlite)
	lo := strings.ToLower(err.Error())
	return strings.Contains(lo, "duplicate key") || strings.Contains(lo, "unique constraint")
}

// violatesConstraint reports whether err is a unique violation on the named
// constraint or column. Column names match sqlite messages such as
// "UNIQUE constraint failed: payment_receipts.receipt_number".
func violatesConstraint(err error, names ...string) bool {
	if !IsUniqueViolation(err) {
		return false
	}
	_, constraint := sqlState(err)
	haystack := strings.ToLower(constraint + " " + err.Error())
	for _, n := range names {
		if strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether err is a transient failure the caller may retry:
// lock wait timeout, deadlock, serialization failure, statement cancellation
// or an expired context.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch code, _ := sqlState(err); code {
	case sqlStateLockNotAvailable, sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateQueryCanceled:
		return true
	}
	lo := strings.ToLower(err.Error())
	return strings.Contains(lo, "database is locked") || strings.Contains(lo, "lock timeout")
}

// classifyLedgerError turns transient database failures into *fees.RetryableError
// and leaves every other error as is
func classifyLedgerError(op string, err error) error {
	if err == nil {
		return nil
	}
	var coded fees.CodedError
	if errors.As(err, &coded) {
		return err
	}
	if IsRetryable(err) {
		return fees.NewRetryableError(op, err)
	}
	return err
}
