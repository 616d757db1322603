package accounts_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestIsTokenExpiredError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "Structured token expired error",
			err:      accounts.ErrTokenExpired,
			expected: true,
		},
		{
			name:     "Legacy token expired error (string match)",
			err:      errors.New("some wrapper: token is expired"),
			expected: true,
		},
		{
			name:     "Different structured error",
			err:      accounts.ErrIdentityNotFound,
			expected: false,
		},
		{
			name:     "Nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, accounts.IsTokenExpiredError(tt.err))
		})
	}
}

func TestIsMalformedError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "Structured malformed error",
			err:      accounts.ErrTokenMalformed,
			expected: true,
		},
		{
			name:     "Legacy missing JWT error (string match)",
			err:      errors.New("missing or malformed JWT"),
			expected: true,
		},
		{
			name:     "Different structured error",
			err:      accounts.ErrTokenExpired,
			expected: false,
		},
		{
			name:     "Nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, accounts.IsMalformedError(tt.err))
		})
	}
}

func TestTokenErrorFamily(t *testing.T) {
	for _, err := range []error{
		accounts.ErrTokenMalformed,
		accounts.ErrTokenSignature,
		accounts.ErrTokenExpired,
		accounts.ErrTokenAudience,
	} {
		assert.True(t, accounts.IsTokenError(err), err.Error())
	}

	assert.False(t, accounts.IsTokenError(accounts.ErrNotConfirmed))
	assert.False(t, accounts.IsTokenError(accounts.ErrClaimProvider))
}

func TestStructuredErrorProperties(t *testing.T) {
	assert.Equal(t, goerrors.CategoryAuthz, accounts.ErrNotConfirmed.Category)
	assert.Equal(t, "User not activated.", accounts.ErrNotConfirmed.Message)
	assert.Equal(t, goerrors.CategoryConflict, accounts.ErrAlreadyConfirmed.Category)
	assert.Equal(t, "User already activated.", accounts.ErrAlreadyConfirmed.Message)
	assert.Equal(t, goerrors.CategoryRateLimit, accounts.ErrTooManyLoginAttempts.Category)
	assert.Equal(t, accounts.TextCodeTooManyAttempts, accounts.ErrTooManyLoginAttempts.TextCode)
	assert.Equal(t, accounts.TextCodeEmailTaken, accounts.ErrEmailTaken.TextCode)
}

func TestPublicReason(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{name: "expired", err: accounts.ErrTokenExpired, status: http.StatusBadRequest, reason: "Invalid or expired token."},
		{name: "signature", err: accounts.ErrTokenSignature, status: http.StatusBadRequest, reason: "Invalid or expired token."},
		{name: "audience", err: accounts.ErrTokenAudience, status: http.StatusBadRequest, reason: "Invalid or expired token."},
		{name: "credentials", err: accounts.ErrMismatchedHashAndPassword, status: http.StatusBadRequest, reason: "Invalid email or password."},
		{name: "unknown identity", err: accounts.ErrIdentityNotFound, status: http.StatusBadRequest, reason: "Invalid email or password."},
		{name: "not confirmed", err: accounts.ErrNotConfirmed, status: http.StatusBadRequest, reason: "User not activated."},
		{name: "already confirmed", err: accounts.ErrAlreadyConfirmed, status: http.StatusBadRequest, reason: "User already activated."},
		{name: "email taken", err: accounts.ErrEmailTaken, status: http.StatusBadRequest, reason: "This email is already registered."},
		{name: "throttled", err: accounts.ErrTooManyLoginAttempts, status: http.StatusTooManyRequests, reason: accounts.ErrTooManyLoginAttempts.Message},
		{name: "configuration", err: accounts.ErrConfiguration, status: http.StatusInternalServerError, reason: "Something went wrong, please try again later."},
		{name: "plain error", err: fmt.Errorf("db exploded"), status: http.StatusInternalServerError, reason: "Something went wrong, please try again later."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, reason := accounts.PublicReason(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestPublicReasonHidesProviderDetails(t *testing.T) {
	err := goerrors.Wrap(errors.New("secret upstream detail"), goerrors.CategoryOperation, "wrapped").
		WithTextCode(accounts.TextCodeClaimProvider)

	status, reason := accounts.PublicReason(err)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.NotContains(t, reason, "secret")
}
