package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// ActivationRequest identifies the account to confirm. Email is optional,
// when present the code must belong to that account.
type ActivationRequest struct {
	Code  string `json:"code" query:"code"`
	Email string `json:"email" query:"email"`
}

type ActivateAccountMessage struct {
	Request    ActivationRequest
	OnResponse func(user *User)
}

func (e ActivateAccountMessage) Type() string { return "user.activate" }

type ActivateAccountHandler struct {
	repo     RepositoryManager
	guard    AccountStateGuard
	activity ActivitySink
	logger   Logger
}

// NewActivateAccountHandler creates a handler with sane defaults.
func NewActivateAccountHandler(repo RepositoryManager, guard AccountStateGuard) *ActivateAccountHandler {
	return &ActivateAccountHandler{
		repo:     repo,
		guard:    guard,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *ActivateAccountHandler) WithActivitySink(sink ActivitySink) *ActivateAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ActivateAccountHandler) WithLogger(logger Logger) *ActivateAccountHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *ActivateAccountHandler) Execute(ctx context.Context, event ActivateAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account activation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateAccountHandler) execute(ctx context.Context, event ActivateAccountMessage) error {
	if event.Request.Code == "" {
		return ErrActivationCodeNotFound.Clone()
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var user *User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if event.Request.Email != "" {
			user, err = h.repo.Users().GetByEmailTx(ctx, tx, event.Request.Email)
		} else {
			user, err = h.repo.Users().GetByActivationCodeTx(ctx, tx, event.Request.Code)
		}

		if err != nil {
			// not found is part of the expected flow
			if isNotFound(err) {
				return withCause(ErrActivationCodeNotFound, err, nil)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for activation")
		}

		if err := h.guard.Confirm(user, event.Request.Code); err != nil {
			return err
		}

		if err := h.repo.Users().ConfirmTx(ctx, tx, user.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to confirm user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate account")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventUserActivated,
		UserID:    user.ID.String(),
		Tier:      user.PermissionTier(),
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
