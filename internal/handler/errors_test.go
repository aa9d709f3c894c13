package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"backend/internal/service"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"permission denied", &service.PermissionDeniedError{Reason: "only the request owner may submit it"}, http.StatusForbidden},
		{"invalid transition", &service.InvalidTransitionError{Reason: "cannot submit a request in status APPROVED"}, http.StatusBadRequest},
		{"validation", &service.ValidationError{Reason: "quantity must be at least 1"}, http.StatusBadRequest},
		{"not found", fmt.Errorf("request: %w", service.ErrNotFound), http.StatusNotFound},
		{"lost status race", fmt.Errorf("request status changed concurrently: %w", service.ErrConflict), http.StatusConflict},
		{"duplicate", service.ErrConflict, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}
