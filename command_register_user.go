package accounts

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RegisterRequest is the registration payload
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Language  string `json:"language"`
	Tier      Tier   `json:"tier"`
}

// Validate will validate the payload
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(0, 200)),
		validation.Field(&r.LastName, validation.Length(0, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&r.Language, validation.Length(0, 10)),
	)
}

type RegisterUserMessage struct {
	Request    RegisterRequest
	Requester  AuthClaims
	OnResponse func(user *User)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserHandler struct {
	repo      RepositoryManager
	guard     AccountStateGuard
	notifier  Notifier
	activity  ActivitySink
	logger    Logger
	useHashid bool
}

// NewRegisterUserHandler creates a handler with sane defaults.
func NewRegisterUserHandler(repo RepositoryManager, guard AccountStateGuard) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		guard:    guard,
		notifier: logNotifier{logger: defLogger{}},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *RegisterUserHandler) WithNotifier(n Notifier) *RegisterUserHandler {
	if n != nil {
		h.notifier = n
	}
	return h
}

func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	h.logger = normalizeLogger(logger)
	return h
}

// WithHashid derives account ids from the email address
func (h *RegisterUserHandler) WithHashid(enabled bool) *RegisterUserHandler {
	h.useHashid = enabled
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	req := event.Request
	req.Email = normalizeEmail(req.Email)

	if err := req.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
			WithTextCode(TextCodeInvalidRequest).
			WithCode(goerrors.CodeBadRequest)
	}

	if err := h.guard.AssertRegistrationAllowed(event.Requester, req.Tier); err != nil {
		return err
	}

	user := &User{}
	var code string

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(req.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return richErr
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = req.Email
		user.FirstName = strings.TrimSpace(req.FirstName)
		user.LastName = strings.TrimSpace(req.LastName)
		user.Username = getUsername(req.Username, req.Email)
		user.Language = req.Language
		user.Tier = req.Tier

		if h.guard.InitialConfirmation() == StateConfirmed {
			user.Confirmed = true
		} else {
			code = newActivationCode()
			user.EmailCode = &code
		}

		if h.useHashid {
			if id, err := hashid.NewUUID(req.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeEmailTaken {
				return richErr
			}
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	if code != "" {
		if err := h.notifier.SendActivation(ctx, user, code); err != nil {
			h.logger.Error("failed to send activation code", "user_id", user.ID, "error", err)
		}
	}

	h.recordActivity(ctx, event.Requester, user)

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

func (h *RegisterUserHandler) recordActivity(ctx context.Context, requester AuthClaims, user *User) {
	actor := user.ID.String()
	if requester != nil {
		actor = requester.UserID()
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventUserRegistered,
		ActorID:   actor,
		UserID:    user.ID.String(),
		Tier:      user.PermissionTier(),
		Metadata:  map[string]any{"confirmed": user.Confirmed},
	})
}

func newActivationCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
