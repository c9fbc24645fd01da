package db

import (
	"fmt"
	"log/slog"

	"github.com/jonathan/job-monitor/internal/types"
)

// Error is returned by every Store operation that fails.
type Error struct {
	Op       string          // store operation, e.g. "upsert"
	Identity *types.Identity // set for per-posting operations
	Err      error
}

func (e *Error) Error() string {
	if e.Identity != nil {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Identity, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// fail logs a storage failure and wraps it. Every backend error passes
// through here so callers never see an unlogged driver error.
func fail(logger *slog.Logger, op string, id *types.Identity, err error) *Error {
	attrs := []any{"op", op, "err", err}
	if id != nil {
		attrs = append(attrs, "identity", id.String())
	}
	logger.Error("store operation failed", attrs...)
	return &Error{Op: op, Identity: id, Err: err}
}
