package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeInvalidInput, http.StatusBadRequest},
		{ErrCodeValidationFailed, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeConflict, http.StatusConflict},
		{ErrCodeRateLimitExceeded, http.StatusTooManyRequests},
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("email", "Email is required")

	assert.Equal(t, ErrCodeInvalidInput, err.Code)
	assert.Equal(t, "email", err.Field)
	assert.Equal(t, "Email is required", err.Message)
	assert.Equal(t, "[INVALID_INPUT] email: Email is required", err.Error())
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatusCode())
}

func TestInspectionThroughWrapping(t *testing.T) {
	base := Conflict("user already exists with this email")
	wrapped := fmt.Errorf("register: %w", base)

	assert.True(t, IsCode(wrapped, ErrCodeConflict))
	assert.False(t, IsCode(wrapped, ErrCodeNotFound))
	assert.Equal(t, ErrCodeConflict, GetCode(wrapped))
	assert.Equal(t, "", GetField(wrapped))

	var appErr *Error
	require.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, "user already exists with this email", appErr.Message)
}

func TestPlainErrorIsInternal(t *testing.T) {
	err := errors.New("connection refused")

	assert.Equal(t, ErrCodeInternal, GetCode(err))
	assert.False(t, IsCode(err, ErrCodeInternal))
	assert.Equal(t, "", GetField(err))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))

	cause := errors.New("disk full")
	err := Wrap(cause, ErrCodeInternal, "failed to save")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[INTERNAL_ERROR] failed to save: disk full", err.Error())
}

func TestRateLimitExceeded(t *testing.T) {
	err := RateLimitExceeded("60")
	assert.Equal(t, "60", err.Details["retry_after"])
	assert.Equal(t, http.StatusTooManyRequests, err.HTTPStatusCode())
	assert.NotEmpty(t, err.Message)

	err = RateLimitExceeded("")
	assert.Nil(t, err.Details)
}
