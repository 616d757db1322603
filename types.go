package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// IdentityRef is the stable account identifier carried in every token.
type IdentityRef string

func (r IdentityRef) String() string {
	return string(r)
}

// IsZero reports an unset reference.
func (r IdentityRef) IsZero() bool {
	return r == ""
}

// AccountState is the read only view of an account the guard needs.
type AccountState interface {
	IsConfirmed() bool
	PermissionTier() Tier
}

// AccountStore resolves accounts for the token lifecycle
type AccountStore interface {
	FindByCredentials(ctx context.Context, email, password string) (*User, error)
	FindByID(ctx context.Context, id IdentityRef) (*User, error)
	CurrentTier(ctx context.Context, id IdentityRef) (Tier, error)
}

// AuthClaims is the verified view of an access token handed to middleware
// and handlers.
type AuthClaims interface {
	Subject() string
	UserID() string
	Role() string
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// Authenticator exposes the account flows served over HTTP.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
	Register(ctx context.Context, requester AuthClaims, req RegisterRequest) (*User, error)
	Activate(ctx context.Context, req ActivationRequest) (*User, error)
	RegeneratePassword(ctx context.Context, email string) (*User, error)
	Status(ctx context.Context, claims AuthClaims) (*User, error)
}

// Notifier delivers account messages. Delivery and templating live outside
// this package.
type Notifier interface {
	SendActivation(ctx context.Context, user *User, code string) error
	SendPassword(ctx context.Context, user *User, password string) error
}

// TokenMetrics observes issuance and verification outcomes.
type TokenMetrics interface {
	TokenIssued(kind string)
	VerificationFailed(kind, reason string)
}

type noopMetrics struct{}

func (noopMetrics) TokenIssued(string)                {}
func (noopMetrics) VerificationFailed(string, string) {}

func normalizeMetrics(m TokenMetrics) TokenMetrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

type logNotifier struct {
	logger Logger
}

func (n logNotifier) SendActivation(_ context.Context, user *User, code string) error {
	n.logger.Info("activation code issued", "user_id", user.ID, "email", user.Email, "code_len", len(code))
	return nil
}

func (n logNotifier) SendPassword(_ context.Context, user *User, _ string) error {
	n.logger.Info("password regenerated", "user_id", user.ID, "email", user.Email)
	return nil
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Print("[ERR] ACCOUNTS " + render(format, args))
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Print("[WRN] ACCOUNTS " + render(format, args))
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Print("[INF] ACCOUNTS " + render(format, args))
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Print("[DBG] ACCOUNTS " + render(format, args))
}

// render accepts both printf style and key/value style arguments
func render(format string, args []any) string {
	if len(args) == 0 {
		return newline(format)
	}

	if strings.Contains(format, "%") {
		return newline(fmt.Sprintf(format, args...))
	}

	var b strings.Builder
	b.WriteString(format)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	return newline(b.String())
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
