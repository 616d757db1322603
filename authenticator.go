package accounts

import (
	"context"
	"errors"
	"time"
)

// LoginResult is returned by a successful login
type LoginResult struct {
	Tokens TokenPair
	User   *User
}

// Auther implements Authenticator. Login and refresh only need the account
// store, the remaining flows need a RepositoryManager.
type Auther struct {
	store     AccountStore
	repo      RepositoryManager
	guard     AccountStateGuard
	issuer    *TokenIssuer
	verifier  *TokenVerifier
	limiter   LoginLimiter
	notifier  Notifier
	activity  ActivitySink
	logger    Logger
	useHashid bool
	now       func() time.Time
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(store AccountStore, issuer *TokenIssuer, verifier *TokenVerifier, guard AccountStateGuard) *Auther {
	return &Auther{
		store:    store,
		guard:    guard,
		issuer:   issuer,
		verifier: verifier,
		limiter:  unlimited{},
		notifier: logNotifier{logger: defLogger{}},
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	if n, ok := s.notifier.(logNotifier); ok {
		n.logger = s.logger
		s.notifier = n
	}
	return s
}

// WithRepositoryManager enables registration, activation and password
// regeneration.
func (s *Auther) WithRepositoryManager(repo RepositoryManager) *Auther {
	s.repo = repo
	return s
}

// WithLoginLimiter throttles login attempts per email
func (s *Auther) WithLoginLimiter(l LoginLimiter) *Auther {
	if l != nil {
		s.limiter = l
	}
	return s
}

func (s *Auther) WithNotifier(n Notifier) *Auther {
	if n != nil {
		s.notifier = n
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithDeterministicIDs derives new account ids from the email address
func (s *Auther) WithDeterministicIDs(enabled bool) *Auther {
	s.useHashid = enabled
	return s
}

// Guard returns the account state guard
func (s *Auther) Guard() AccountStateGuard {
	return s.guard
}

// Verifier returns the token verifier used for access tokens
func (s *Auther) Verifier() *TokenVerifier {
	return s.verifier
}

func (s *Auther) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if !s.limiter.Allow(email) {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, "", "", map[string]any{
			"identifier": email,
			"error":      ErrTooManyLoginAttempts.Error(),
		})
		return nil, ErrTooManyLoginAttempts.Clone()
	}

	user, err := s.store.FindByCredentials(ctx, email, password)
	if err != nil {
		s.logger.Error("Login verify identity error", "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, "", "", map[string]any{
			"identifier": email,
			"error":      err.Error(),
		})
		return nil, err
	}

	if err := s.guard.AssertLoginAllowed(user); err != nil {
		s.logger.Warn("Login blocked by account state", "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, user.Identity().String(), "", map[string]any{
			"identifier": email,
			"error":      err.Error(),
		})
		return nil, err
	}

	pair, err := s.issuer.IssueForLogin(ctx, user.Identity(), user.PermissionTier())
	if err != nil {
		s.logger.Error("Login token issuance failed", "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, user.Identity().String(), user.PermissionTier(), map[string]any{
			"identifier": email,
			"error":      err.Error(),
		})
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, user.Identity().String(), user.PermissionTier(), map[string]any{
		"identifier": email,
	})

	return &LoginResult{Tokens: pair, User: user}, nil
}

// Refresh verifies refreshToken and issues a new pair. The tier is read
// from the store, never from the presented token.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	payload, err := s.verifier.VerifyRefresh(refreshToken)
	if err != nil {
		s.logger.Warn("Refresh token rejected", "error", err)
		return TokenPair{}, err
	}

	user, err := s.store.FindByID(ctx, payload.Identity)
	if err != nil {
		s.logger.Error("Refresh identity lookup failed", "identity", payload.Identity, "error", err)
		return TokenPair{}, err
	}

	if err := s.guard.AssertLoginAllowed(user); err != nil {
		return TokenPair{}, err
	}

	tier, err := s.store.CurrentTier(ctx, payload.Identity)
	if err != nil {
		return TokenPair{}, err
	}

	pair, err := s.issuer.IssueForRefresh(ctx, payload, tier)
	if err != nil {
		s.logger.Error("Refresh token issuance failed", "identity", payload.Identity, "error", err)
		return TokenPair{}, err
	}

	s.emitAuthEvent(ctx, ActivityEventTokenRefreshed, payload.Identity.String(), tier, nil)

	return pair, nil
}

func (s *Auther) Register(ctx context.Context, requester AuthClaims, req RegisterRequest) (*User, error) {
	if err := s.requireRepo(); err != nil {
		return nil, err
	}

	var user *User
	handler := NewRegisterUserHandler(s.repo, s.guard).
		WithNotifier(s.notifier).
		WithActivitySink(s.activity).
		WithLogger(s.logger).
		WithHashid(s.useHashid)

	err := handler.Execute(ctx, RegisterUserMessage{
		Request:    req,
		Requester:  requester,
		OnResponse: func(u *User) { user = u },
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Auther) Activate(ctx context.Context, req ActivationRequest) (*User, error) {
	if err := s.requireRepo(); err != nil {
		return nil, err
	}

	var user *User
	handler := NewActivateAccountHandler(s.repo, s.guard).
		WithActivitySink(s.activity).
		WithLogger(s.logger)

	err := handler.Execute(ctx, ActivateAccountMessage{
		Request:    req,
		OnResponse: func(u *User) { user = u },
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Auther) RegeneratePassword(ctx context.Context, email string) (*User, error) {
	if err := s.requireRepo(); err != nil {
		return nil, err
	}

	var user *User
	handler := NewRegeneratePasswordHandler(s.repo, s.guard).
		WithNotifier(s.notifier).
		WithActivitySink(s.activity).
		WithLogger(s.logger)

	err := handler.Execute(ctx, RegeneratePasswordMessage{
		Email:      email,
		OnResponse: func(u *User) { user = u },
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Status returns the account behind verified access claims
func (s *Auther) Status(ctx context.Context, claims AuthClaims) (*User, error) {
	if claims == nil {
		return nil, ErrTokenMalformed.Clone()
	}
	return s.store.FindByID(ctx, IdentityRef(claims.UserID()))
}

func (s *Auther) requireRepo() error {
	if s.repo == nil {
		return withCause(ErrConfiguration, errors.New("repository manager is not configured"), nil)
	}
	return nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, userID string, tier Tier, metadata map[string]any) {
	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Tier:       tier,
		Metadata:   metadata,
		OccurredAt: s.now(),
	})
}
