package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewValidationError("picture ID missing")
	assert.Equal(t, "VALIDATION_ERROR: picture ID missing", err.Error())

	wrapped := Wrap(fmt.Errorf("socket closed"), ErrorTypeInternal, "listener stopped", http.StatusInternalServerError)
	assert.Contains(t, wrapped.Error(), "listener stopped")
	assert.Contains(t, wrapped.Error(), "socket closed")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := WrapInternalError(cause, "handler failed")

	assert.True(t, errors.Is(err, cause))
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantType   ErrorType
		wantStatus int
	}{
		{"validation", NewValidationError("bad"), ErrorTypeValidation, http.StatusBadRequest},
		{"not found", NewNotFoundError("stream"), ErrorTypeNotFound, http.StatusNotFound},
		{"internal", NewInternalError("oops"), ErrorTypeInternal, http.StatusInternalServerError},
		{"timeout", NewTimeoutError("slow"), ErrorTypeTimeout, http.StatusRequestTimeout},
		{"rate limit", NewRateLimitError("too fast"), ErrorTypeRateLimit, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus)
		})
	}
}

func TestNotFoundMessage(t *testing.T) {
	err := NewNotFoundError("stream")
	assert.Equal(t, "stream not found", err.Message)
}

func TestWithDetailsAndCode(t *testing.T) {
	err := NewValidationError("bad descriptor").
		WithCode("VP9_DESC").
		WithDetails(map[string]interface{}{"offset": 3})

	assert.Equal(t, "VP9_DESC", err.Code)
	assert.Equal(t, 3, err.Details["offset"])
}

func TestGetAppError(t *testing.T) {
	appErr := NewInternalError("x")
	got, ok := GetAppError(appErr)
	require.True(t, ok)
	assert.Equal(t, appErr, got)

	_, ok = GetAppError(fmt.Errorf("plain"))
	assert.False(t, ok)
	assert.False(t, IsAppError(fmt.Errorf("plain")))
	assert.True(t, IsAppError(appErr))
}
