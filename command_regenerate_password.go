package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type RegeneratePasswordMessage struct {
	Email      string `json:"email"`
	OnResponse func(user *User)
}

func (e RegeneratePasswordMessage) Type() string { return "user.password.regenerate" }

// RegeneratePasswordHandler replaces the password of a confirmed account
// with a random one and hands the cleartext to the notifier.
type RegeneratePasswordHandler struct {
	repo     RepositoryManager
	guard    AccountStateGuard
	notifier Notifier
	activity ActivitySink
	logger   Logger
}

func NewRegeneratePasswordHandler(repo RepositoryManager, guard AccountStateGuard) *RegeneratePasswordHandler {
	return &RegeneratePasswordHandler{
		repo:     repo,
		guard:    guard,
		notifier: logNotifier{logger: defLogger{}},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *RegeneratePasswordHandler) WithNotifier(n Notifier) *RegeneratePasswordHandler {
	if n != nil {
		h.notifier = n
	}
	return h
}

func (h *RegeneratePasswordHandler) WithActivitySink(sink ActivitySink) *RegeneratePasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RegeneratePasswordHandler) WithLogger(logger Logger) *RegeneratePasswordHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *RegeneratePasswordHandler) Execute(ctx context.Context, event RegeneratePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password regeneration")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegeneratePasswordHandler) execute(ctx context.Context, event RegeneratePasswordMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var user *User
	var password string

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if isNotFound(err) {
				return withCause(ErrIdentityNotFound, err, nil)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user")
		}

		if err := h.guard.AssertLoginAllowed(user); err != nil {
			return err
		}

		if password, err = RandomPassword(RandomPasswordLength); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate password")
		}

		hash, err := HashPassword(password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		if err := h.repo.Users().UpdatePasswordTx(ctx, tx, user.ID, hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password in database")
		}
		user.PasswordHash = hash

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to regenerate password")
	}

	if err := h.notifier.SendPassword(ctx, user, password); err != nil {
		h.logger.Error("failed to deliver regenerated password", "user_id", user.ID, "error", err)
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordRegenerated,
		UserID:    user.ID.String(),
		Tier:      user.PermissionTier(),
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
