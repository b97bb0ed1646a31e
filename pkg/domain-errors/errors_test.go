package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeNotFound, "user not found")
		assert.True(t, Is(err, CodeNotFound))
		assert.False(t, Is(err, CodeInternal))
	})

	t.Run("matches inner code through wrapping", func(t *testing.T) {
		inner := New(CodeUnavailable, "store down")
		err := Wrap(fmt.Errorf("reserve: %w", inner), CodeInternal, "reserve failed")
		assert.True(t, Is(err, CodeInternal))
		assert.True(t, Is(err, CodeUnavailable))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, Is(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeUnavailable, "ledger unavailable")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "ledger unavailable: connection refused", err.Error())
	assert.Equal(t, "ledger unavailable", MessageOf(err))
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		code   Code
		status int
	}{
		{CodeBadRequest, http.StatusBadRequest},
		{CodeInvalidInput, http.StatusBadRequest},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeNotFound, http.StatusNotFound},
		{CodeInsufficientBalance, http.StatusPaymentRequired},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.status, ToHTTPStatus(tt.code))
		})
	}
}
