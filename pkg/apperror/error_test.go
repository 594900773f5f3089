package apperror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorError(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name: "without internal error",
			err: &Error{
				HTTPStatus: http.StatusNotFound,
				Code:       "not_found",
				Message:    "Resource not found",
			},
			expected: "not_found: Resource not found",
		},
		{
			name: "with internal error",
			err: &Error{
				HTTPStatus: http.StatusInternalServerError,
				Code:       "internal_error",
				Message:    "Something went wrong",
				Internal:   errors.New("database connection failed"),
			},
			expected: "internal_error: Something went wrong (database connection failed)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := ErrDatabase.WithInternal(inner)
	assert.True(t, errors.Is(err, inner))
}

func TestWithMessageDoesNotMutateSentinel(t *testing.T) {
	custom := ErrBadRequest.WithMessage("missing canonical_id")
	assert.Equal(t, "missing canonical_id", custom.Message)
	assert.Equal(t, "Invalid request", ErrBadRequest.Message)
	assert.Equal(t, http.StatusBadRequest, custom.HTTPStatus)
}

func TestNewSafetyBlocked(t *testing.T) {
	err := NewSafetyBlocked("conflicting verified phone identifiers")
	assert.Equal(t, "safety_blocked", err.Code)
	assert.Equal(t, http.StatusConflict, err.HTTPStatus)
	assert.Equal(t, "conflicting verified phone identifiers", err.Message)
}

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "app error",
			err:        ErrCandidateNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "candidate_not_found",
		},
		{
			name:       "app error with details",
			err:        ErrValidation.WithDetails(map[string]any{"field": "pairs"}),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "validation_error",
		},
		{
			name:       "plain error maps to internal",
			err:        errors.New("unexpected"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ToHTTPError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			errObj, ok := body["error"].(map[string]any)
			assert.True(t, ok)
			assert.Equal(t, tt.wantCode, errObj["code"])
		})
	}
}
