package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/job-monitor/internal/ingest"
	"github.com/jonathan/job-monitor/internal/scheduler"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var ve *ErrValidation
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrCycleInProgress), errors.Is(err, scheduler.ErrGuardBusy):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
