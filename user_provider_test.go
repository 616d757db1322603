package accounts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func hashedUser(t *testing.T, password string) *accounts.User {
	t.Helper()
	hash, err := accounts.HashPassword(password)
	require.NoError(t, err)
	return &accounts.User{
		ID:           uuid.New(),
		Email:        "test@example.com",
		PasswordHash: hash,
		Tier:         accounts.TierStandard,
		Confirmed:    true,
	}
}

func TestUserProviderFindByCredentials(t *testing.T) {
	ctx := context.Background()

	t.Run("Successful verification", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := accounts.NewUserProvider(tracker)
		user := hashedUser(t, "password123")

		tracker.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil).Once()
		tracker.On("TrackSuccessfulLogin", ctx, user).Return(nil).Once()

		got, err := provider.FindByCredentials(ctx, " Test@Example.com ", "password123")
		require.NoError(t, err)
		assert.Same(t, user, got)
		tracker.AssertExpectations(t)
	})

	t.Run("Invalid password", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := accounts.NewUserProvider(tracker)
		user := hashedUser(t, "correct_password")

		tracker.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil).Once()
		tracker.On("TrackAttemptedLogin", ctx, user).Return(nil).Once()

		got, err := provider.FindByCredentials(ctx, "test@example.com", "wrong_password")
		require.Error(t, err)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, accounts.ErrMismatchedHashAndPassword)
		tracker.AssertExpectations(t)
	})

	t.Run("Unknown email looks like a wrong password", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := accounts.NewUserProvider(tracker)

		tracker.On("GetByIdentifier", ctx, "ghost@example.com").
			Return(nil, repository.NewRecordNotFound()).Once()

		_, err := provider.FindByCredentials(ctx, "ghost@example.com", "password123")
		require.Error(t, err)
		assert.ErrorIs(t, err, accounts.ErrMismatchedHashAndPassword)
	})

	t.Run("Store failure", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := accounts.NewUserProvider(tracker)

		tracker.On("GetByIdentifier", ctx, "test@example.com").
			Return(nil, errors.New("connection reset")).Once()

		_, err := provider.FindByCredentials(ctx, "test@example.com", "password123")
		require.Error(t, err)
		status, _ := accounts.PublicReason(err)
		assert.Equal(t, 500, status)
	})

	t.Run("Empty input", func(t *testing.T) {
		provider := accounts.NewUserProvider(new(MockUserTracker))

		_, err := provider.FindByCredentials(ctx, "", "password123")
		assert.ErrorIs(t, err, accounts.ErrMismatchedHashAndPassword)

		_, err = provider.FindByCredentials(ctx, "test@example.com", "")
		assert.ErrorIs(t, err, accounts.ErrMismatchedHashAndPassword)
	})
}

func TestUserProviderThrottling(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Too many attempts inside the cool down", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := accounts.NewUserProvider(tracker).WithClock(func() time.Time { return now })

		user := hashedUser(t, "password123")
		last := now.Add(-time.Hour)
		user.LoginAttempts = accounts.MaxLoginAttempts + 1
		user.LoginAttemptAt = &last

		tracker.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil).Once()

		_, err := provider.FindByCredentials(ctx, "test@example.com", "password123")
		require.Error(t, err)
		assert.ErrorIs(t, err, accounts.ErrTooManyLoginAttempts)
		tracker.AssertNotCalled(t, "TrackSuccessfulLogin", mock.Anything, mock.Anything)
	})

	t.Run("Counter resets after the cool down", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := accounts.NewUserProvider(tracker).WithClock(func() time.Time { return now })

		user := hashedUser(t, "password123")
		last := now.Add(-48 * time.Hour)
		user.LoginAttempts = accounts.MaxLoginAttempts + 1
		user.LoginAttemptAt = &last

		tracker.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil).Once()
		tracker.On("TrackSuccessfulLogin", ctx, user).Return(nil).Once()

		_, err := provider.FindByCredentials(ctx, "test@example.com", "password123")
		require.NoError(t, err)
		tracker.AssertExpectations(t)
	})
}

func TestUserProviderFindByID(t *testing.T) {
	ctx := context.Background()
	user := hashedUser(t, "password123")
	user.Tier = accounts.TierModerator
	id := accounts.IdentityRef(user.ID.String())

	tracker := new(MockUserTracker)
	tracker.On("GetByIdentifier", ctx, user.ID.String()).Return(user, nil)

	provider := accounts.NewUserProvider(tracker)

	got, err := provider.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Same(t, user, got)

	tier, err := provider.CurrentTier(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, accounts.TierModerator, tier)

	_, err = provider.FindByID(ctx, "")
	assert.ErrorIs(t, err, accounts.ErrIdentityNotFound)
}

func TestUserProviderFindByIDNotFound(t *testing.T) {
	ctx := context.Background()
	tracker := new(MockUserTracker)
	tracker.On("GetByIdentifier", ctx, "missing").Return(nil, repository.NewRecordNotFound())

	_, err := accounts.NewUserProvider(tracker).FindByID(ctx, "missing")
	require.Error(t, err)

	_, reason := accounts.PublicReason(err)
	assert.Equal(t, "Invalid email or password.", reason)
}

func TestUserProviderRejectsUnknownTier(t *testing.T) {
	ctx := context.Background()
	user := hashedUser(t, "password123")
	user.Tier = accounts.Tier("root")

	tracker := new(MockUserTracker)
	tracker.On("GetByIdentifier", ctx, user.ID.String()).Return(user, nil)

	_, err := accounts.NewUserProvider(tracker).FindByID(ctx, accounts.IdentityRef(user.ID.String()))
	assert.Error(t, err)
}
