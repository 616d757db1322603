package accounts

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
)

// UserTracker is a store we can use to retrieve users
type UserTracker interface {
	GetByIdentifier(ctx context.Context, identifier string) (*User, error)
	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

// NewUserTracker adapts the users repository to UserTracker
func NewUserTracker(users Users) UserTracker {
	return userTracker{users: users}
}

type userTracker struct {
	users Users
}

func (a userTracker) GetByIdentifier(ctx context.Context, identifier string) (*User, error) {
	return a.users.GetByIdentifier(ctx, identifier)
}

func (a userTracker) TrackAttemptedLogin(ctx context.Context, user *User) error {
	return a.users.TrackAttemptedLogin(ctx, user)
}

func (a userTracker) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.users.TrackSuccessfulLogin(ctx, user)
}

// UserProvider implements AccountStore on top of the users repository
type UserProvider struct {
	store     UserTracker
	Validator func(*User) error
	logger    Logger
	now       func() time.Time
}

var _ AccountStore = (*UserProvider)(nil)

// MaxLoginAttempts is the maximun number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is how long failed attempts count against MaxLoginAttempts
var CoolDownPeriod = 24 * time.Hour

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserTracker) *UserProvider {
	return &UserProvider{
		store:     store,
		logger:    defLogger{},
		Validator: defaultValidator,
		now:       time.Now,
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	u.logger = normalizeLogger(l)
	return u
}

// WithClock overrides the clock used for the login cool down
func (u *UserProvider) WithClock(now func() time.Time) *UserProvider {
	if now != nil {
		u.now = now
	}
	return u
}

func (u *UserProvider) validate(user *User) error {
	if u.Validator != nil {
		return u.Validator(user)
	}
	return defaultValidator(user)
}

// FindByCredentials will find the user and compare the password. Unknown
// emails and wrong passwords return the same error.
func (u *UserProvider) FindByCredentials(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrMismatchedHashAndPassword
	}

	user, err := u.store.GetByIdentifier(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if user == nil {
		return nil, ErrMismatchedHashAndPassword
	}

	if user.LoginAttemptAt != nil && u.now().Sub(*user.LoginAttemptAt) >= CoolDownPeriod {
		user.LoginAttempts = 0
	}

	//if we have too many attempts in the given window, cool off!
	if user.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		// increment login_attempts and login_attempt_at
		if err2 := u.store.TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}

		return nil, ErrMismatchedHashAndPassword
	}

	// reset the login_attempts counter and login_attempt_at
	if err := u.store.TrackSuccessfulLogin(ctx, user); err != nil {
		u.logger.Error("failed to track successful login", "error", err)
	}

	if err := u.validate(user); err != nil {
		return nil, err
	}

	return user, nil
}

// FindByID returns the user for id
func (u *UserProvider) FindByID(ctx context.Context, id IdentityRef) (*User, error) {
	if id.IsZero() {
		return nil, ErrIdentityNotFound
	}

	user, err := u.store.GetByIdentifier(ctx, id.String())
	if err != nil {
		if isNotFound(err) {
			return nil, withCause(ErrIdentityNotFound, err, map[string]any{"identity": id.String()})
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user")
	}

	if user == nil {
		return nil, ErrIdentityNotFound
	}

	if err := u.validate(user); err != nil {
		return nil, err
	}

	return user, nil
}

// CurrentTier reads the tier from the store on every call
func (u *UserProvider) CurrentTier(ctx context.Context, id IdentityRef) (Tier, error) {
	user, err := u.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	return user.PermissionTier(), nil
}

func defaultValidator(u *User) error {
	if u.Tier == "" || u.Tier.IsValid() {
		return nil
	}
	return errors.New("user has an unknown or invalid tier", errors.CategoryAuth).
		WithTextCode(TextCodeUnknownTier).
		WithMetadata(map[string]any{"tier": u.Tier.String(), "user_id": u.ID.String()})
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.IsNotFound(err) || hasTextCode(err, TextCodeIdentityNotFound) {
		return true
	}
	return isRecordNotFound(err)
}
