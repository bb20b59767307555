package libdbexec

import (
	"context"
	"database/sql"
	"errors"
)

// Sentinel errors returned by executors after driver-specific translation.
// Callers match with errors.Is and never inspect driver error types directly.
var (
	ErrNotFound             = errors.New("libdb: not found")
	ErrTxFailed             = errors.New("libdb: transaction failed")
	ErrUniqueViolation      = errors.New("libdb: unique constraint violation")
	ErrForeignKeyViolation  = errors.New("libdb: foreign key constraint violation")
	ErrNotNullViolation     = errors.New("libdb: not null constraint violation")
	ErrCheckViolation       = errors.New("libdb: check constraint violation")
	ErrConstraintViolation  = errors.New("libdb: constraint violation")
	ErrDeadlockDetected     = errors.New("libdb: deadlock detected")
	ErrSerializationFailure = errors.New("libdb: serialization failure")
	ErrLockNotAvailable     = errors.New("libdb: lock not available")
	ErrQueryCanceled        = errors.New("libdb: query canceled")
	ErrDataTruncation       = errors.New("libdb: data truncation")
	ErrNumericOutOfRange    = errors.New("libdb: numeric value out of range")
	ErrInvalidInputSyntax   = errors.New("libdb: invalid input syntax")
	ErrUndefinedColumn      = errors.New("libdb: undefined column")
	ErrUndefinedTable       = errors.New("libdb: undefined table")
	ErrMaxRowsReached       = errors.New("libdb: max rows reached")
)

// QueryRower mirrors (*sql.Row).Scan so row errors pass through translation.
type QueryRower interface {
	Scan(dest ...any) error
}

// Exec is the executor surface stores depend on. It is satisfied by both a
// plain connection pool and an open transaction.
type Exec interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) QueryRower
}

// CommitTx finalizes a transaction started with WithTransaction.
type CommitTx func(ctx context.Context) error

// ReleaseTx rolls back if the transaction was not committed. Safe to defer.
type ReleaseTx func() error

// DBManager owns a database connection pool and hands out executors.
type DBManager interface {
	WithoutTransaction() Exec
	WithTransaction(ctx context.Context, onRollback ...func()) (Exec, CommitTx, ReleaseTx, error)
	Close() error
}
