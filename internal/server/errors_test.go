package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jonathan/job-monitor/internal/ingest"
	"github.com/jonathan/job-monitor/internal/scheduler"
	"github.com/stretchr/testify/assert"
)

func TestErrValidation(t *testing.T) {
	err := &ErrValidation{Field: "limit", Message: "must be a positive integer"}
	assert.Equal(t, "validation error: limit - must be a positive integer", err.Error())
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"cycle in progress", ingest.ErrCycleInProgress, http.StatusConflict},
		{"guard busy", fmt.Errorf("run: %w", scheduler.ErrGuardBusy), http.StatusConflict},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"wrapped validation", fmt.Errorf("bad: %w", &ErrValidation{Field: "q"}), http.StatusBadRequest},
		{"unknown", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
