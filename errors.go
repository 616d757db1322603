package accounts

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeConfiguration      = "CONFIGURATION_ERROR"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeTokenSignature     = "TOKEN_SIGNATURE_INVALID"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenAudience      = "TOKEN_AUDIENCE_MISMATCH"
	TextCodeClaimProvider      = "CLAIM_PROVIDER_FAILED"
	TextCodeClaimNotMergeable  = "CLAIM_NOT_MERGEABLE"
	TextCodeNotConfirmed       = "ACCOUNT_NOT_CONFIRMED"
	TextCodeAlreadyConfirmed   = "ACCOUNT_ALREADY_CONFIRMED"
	TextCodeForbidden          = "REGISTRATION_FORBIDDEN"
	TextCodeIdentityNotFound   = "IDENTITY_NOT_FOUND"
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeTooManyAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeEmailTaken         = "EMAIL_TAKEN"
	TextCodeActivationNotFound = "ACTIVATION_CODE_NOT_FOUND"
	TextCodeActivationMismatch = "ACTIVATION_CODE_MISMATCH"
	TextCodeInvalidRequest     = "INVALID_REQUEST"
	TextCodeUnknownTier        = "UNKNOWN_TIER"
)

const (
	genericTokenReason           = "Invalid or expired token."
	genericCredentialsReason     = "Invalid email or password."
	genericInternalReason        = "Something went wrong, please try again later."
	genericProviderFailureReason = "Unable to build the account token, please try again later."
)

// ErrConfiguration is returned when key material or settings required at
// startup are missing or invalid.
var ErrConfiguration = goerrors.New("invalid configuration", goerrors.CategoryInternal).
	WithTextCode(TextCodeConfiguration).
	WithCode(goerrors.CodeInternal)

// ErrTokenMalformed is returned when a token cannot be decoded into its segments.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenSignature is returned when the signature does not match the key.
var ErrTokenSignature = goerrors.New("token signature is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenSignature).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired is returned for tokens used at or after their expiry.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenAudience is returned when the audience claim does not match the
// expected token namespace.
var ErrTokenAudience = goerrors.New("token audience mismatch", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenAudience).
	WithCode(goerrors.CodeBadRequest)

// ErrClaimProvider wraps a failure of a registered claim provider.
var ErrClaimProvider = goerrors.New("claim provider failed", goerrors.CategoryOperation).
	WithTextCode(TextCodeClaimProvider).
	WithCode(goerrors.CodeInternal)

// ErrClaimNotMergeable is returned when a fragment carries a key outside the
// configured allow-list.
var ErrClaimNotMergeable = goerrors.New("claim fragment contains a key that is not mergeable", goerrors.CategoryInternal).
	WithTextCode(TextCodeClaimNotMergeable).
	WithCode(goerrors.CodeInternal)

var ErrNotConfirmed = goerrors.New("User not activated.", goerrors.CategoryAuthz).
	WithTextCode(TextCodeNotConfirmed).
	WithCode(goerrors.CodeBadRequest)

var ErrAlreadyConfirmed = goerrors.New("User already activated.", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyConfirmed).
	WithCode(goerrors.CodeBadRequest)

var ErrForbidden = goerrors.New("Registration is restricted to administrators.", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeBadRequest)

var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeBadRequest)

var ErrTooManyLoginAttempts = goerrors.New("too many login attempts, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(http.StatusTooManyRequests)

var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

var ErrEmailTaken = goerrors.New("This email is already registered.", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(goerrors.CodeBadRequest)

var ErrActivationCodeNotFound = goerrors.New("No user found with the given activation code.", goerrors.CategoryNotFound).
	WithTextCode(TextCodeActivationNotFound).
	WithCode(goerrors.CodeBadRequest)

var ErrActivationCodeMismatch = goerrors.New("The activation code does not match.", goerrors.CategoryBadInput).
	WithTextCode(TextCodeActivationMismatch).
	WithCode(goerrors.CodeBadRequest)

var ErrInvalidRequest = goerrors.New("Invalid request.", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidRequest).
	WithCode(goerrors.CodeBadRequest)

var ErrUnknownTier = goerrors.New("unknown permission tier", goerrors.CategoryBadInput).
	WithTextCode(TextCodeUnknownTier).
	WithCode(goerrors.CodeBadRequest)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsSignatureError reports a token whose signature did not verify.
func IsSignatureError(err error) bool {
	return hasTextCode(err, TextCodeTokenSignature)
}

// IsAudienceError reports a token presented to the wrong namespace.
func IsAudienceError(err error) bool {
	return hasTextCode(err, TextCodeTokenAudience)
}

func IsProviderError(err error) bool {
	return hasTextCode(err, TextCodeClaimProvider)
}

func IsConfigurationError(err error) bool {
	return hasTextCode(err, TextCodeConfiguration)
}

func IsNotConfirmedError(err error) bool {
	return hasTextCode(err, TextCodeNotConfirmed)
}

func IsAlreadyConfirmedError(err error) bool {
	return hasTextCode(err, TextCodeAlreadyConfirmed)
}

func IsForbiddenError(err error) bool {
	return hasTextCode(err, TextCodeForbidden)
}

// IsTokenError reports whether err belongs to the token verification family.
func IsTokenError(err error) bool {
	return IsMalformedError(err) ||
		IsSignatureError(err) ||
		IsTokenExpiredError(err) ||
		IsAudienceError(err)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return false
	}
	return rich.TextCode == code
}

// withCause returns a copy of base carrying err as its source. Sentinels are
// never mutated.
func withCause(base *goerrors.Error, err error, meta map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if err != nil {
		clone.Source = err
	}
	if len(meta) > 0 {
		clone = clone.WithMetadata(meta)
	}
	return clone
}

// PublicReason maps err to an HTTP status and a message that is safe to show
// to a client. Token failures collapse into one generic reason.
func PublicReason(err error) (int, string) {
	if err == nil {
		return http.StatusOK, ""
	}

	switch {
	case IsTokenError(err):
		return http.StatusBadRequest, genericTokenReason
	case hasTextCode(err, TextCodeInvalidCreds), hasTextCode(err, TextCodeIdentityNotFound):
		return http.StatusBadRequest, genericCredentialsReason
	case IsProviderError(err), hasTextCode(err, TextCodeClaimNotMergeable):
		return http.StatusInternalServerError, genericProviderFailureReason
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return http.StatusInternalServerError, genericInternalReason
	}

	switch rich.Category {
	case goerrors.CategoryInternal, goerrors.CategoryOperation:
		return http.StatusInternalServerError, genericInternalReason
	}

	code := rich.Code
	if code == 0 {
		code = http.StatusBadRequest
	}
	return code, rich.Message
}
