package accounts

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-accounts/middleware/jwtware"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

const statusSuccess = "success"

// RegisterAccountRoutes mounts the account endpoints on app
func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountsControllerOption) *AccountsController {
	controller := NewAccountsController(opts...)

	app.Post(controller.Routes.Login, controller.Login).
		SetName("accounts.login")
	app.Post(controller.Routes.AccessToken, controller.AccessToken).
		SetName("accounts.access-token")
	app.Post(controller.Routes.Register, controller.Register).
		SetName("accounts.register")
	app.Get(controller.Routes.Activate, controller.Activate).
		SetName("accounts.activate")
	app.Post(controller.Routes.NewPassword, controller.NewPassword).
		SetName("accounts.new-password")
	app.Get(controller.Routes.Status, controller.Status, controller.Protected()).
		SetName("accounts.status")
	app.Get(controller.Routes.JWKS, controller.JWKS).
		SetName("accounts.jwks")

	return controller
}

type AccountsControllerRoutes struct {
	Login       string
	AccessToken string
	Register    string
	Activate    string
	NewPassword string
	Status      string
	JWKS        string
}

// AccountsController serves the JSON account API
type AccountsController struct {
	Debug      bool
	Logger     Logger
	Auther     *Auther
	Signer     *RSASigner
	Routes     *AccountsControllerRoutes
	ContextKey string

	// ValidationListeners run on every protected route, e.g. to reject
	// revoked sessions
	ValidationListeners []ValidationListener
}

type AccountsControllerOption func(*AccountsController) *AccountsController

func NewAccountsController(opts ...AccountsControllerOption) *AccountsController {
	c := &AccountsController{
		Logger:     defLogger{},
		ContextKey: DefaultContextKey,
		Routes: &AccountsControllerRoutes{
			Login:       "/login",
			AccessToken: "/accessToken",
			Register:    "/register",
			Activate:    "/activate",
			NewPassword: "/newPassword",
			Status:      "/status",
			JWKS:        "/.well-known/jwks.json",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Auther in accounts controller...")
	}

	return c
}

func (a *AccountsController) WithLogger(logger Logger) *AccountsController {
	a.Logger = normalizeLogger(logger)
	return a
}

// Protected verifies access tokens for the routes it guards
func (a *AccountsController) Protected() router.MiddlewareFunc {
	return ProtectedRoute(a.Auther.Verifier(), a.ContextKey, a.HandleError, a.ValidationListeners...)
}

// UserResponse is the public representation of an account
type UserResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username,omitempty"`
	FirstName string     `json:"firstName,omitempty"`
	LastName  string     `json:"lastName,omitempty"`
	Tier      Tier       `json:"tier"`
	Confirmed bool       `json:"confirmed"`
	Language  string     `json:"language,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// NewUserResponse maps user to its response
func NewUserResponse(user *User) *UserResponse {
	if user == nil {
		return nil
	}
	return &UserResponse{
		ID:        user.ID.String(),
		Email:     user.Email,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Tier:      user.PermissionTier(),
		Confirmed: user.Confirmed,
		Language:  user.Language,
		CreatedAt: user.CreatedAt,
	}
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AccountsController) Login(ctx router.Context) error {
	payload := new(LoginRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.HandleError(ctx, withCause(ErrInvalidRequest, err, nil))
	}

	if err := payload.Validate(); err != nil {
		return a.HandleError(ctx, ErrMismatchedHashAndPassword)
	}

	result, err := a.Auther.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return a.HandleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status":       statusSuccess,
		"accessToken":  result.Tokens.AccessToken,
		"refreshToken": result.Tokens.RefreshToken,
		"user":         NewUserResponse(result.User),
	})
}

// AccessTokenRequest payload
type AccessTokenRequest struct {
	RefreshToken string `form:"refreshToken" json:"refreshToken"`
}

func (a *AccountsController) AccessToken(ctx router.Context) error {
	payload := new(AccessTokenRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.HandleError(ctx, withCause(ErrInvalidRequest, err, nil))
	}

	if strings.TrimSpace(payload.RefreshToken) == "" {
		return a.HandleError(ctx, ErrTokenMalformed)
	}

	pair, err := a.Auther.Refresh(ctx.Context(), payload.RefreshToken)
	if err != nil {
		return a.HandleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status":      statusSuccess,
		"accessToken": pair.AccessToken,
	})
}

func (a *AccountsController) Register(ctx router.Context) error {
	payload := new(RegisterRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.HandleError(ctx, withCause(ErrInvalidRequest, err, nil))
	}

	if payload.Language == "" {
		payload.Language = strings.TrimSpace(ctx.GetString("Language", ""))
	}

	requester, err := a.requester(ctx)
	if err != nil {
		return a.HandleError(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= ACCOUNTS REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(map[string]any{
			"email":    payload.Email,
			"tier":     payload.Tier,
			"language": payload.Language,
		}))
		fmt.Println("================================")
	}

	user, err := a.Auther.Register(ctx.Context(), requester, *payload)
	if err != nil {
		return a.HandleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status": statusSuccess,
		"user":   NewUserResponse(user),
	})
}

// requester returns the claims of an optional bearer token. A token that
// is present but invalid is an error.
func (a *AccountsController) requester(ctx router.Context) (AuthClaims, error) {
	extractors := jwtware.GetExtractors("header:"+router.HeaderAuthorization, "Bearer")
	raw, err := jwtware.ExtractRawTokenFromContext(ctx, extractors)
	if err != nil || raw == "" {
		return nil, nil
	}
	return a.Auther.Verifier().Validate(raw)
}

func (a *AccountsController) Activate(ctx router.Context) error {
	req := ActivationRequest{
		Code:  strings.TrimSpace(ctx.Query("code")),
		Email: strings.TrimSpace(ctx.Query("email")),
	}

	user, err := a.Auther.Activate(ctx.Context(), req)
	if err != nil {
		return a.HandleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status": statusSuccess,
		"user":   NewUserResponse(user),
	})
}

// NewPasswordRequest payload
type NewPasswordRequest struct {
	Email string `form:"email" json:"email"`
}

func (r NewPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AccountsController) NewPassword(ctx router.Context) error {
	payload := new(NewPasswordRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.HandleError(ctx, withCause(ErrInvalidRequest, err, nil))
	}

	if err := payload.Validate(); err != nil {
		return a.HandleError(ctx, withCause(ErrInvalidRequest, err, nil))
	}

	if _, err := a.Auther.RegeneratePassword(ctx.Context(), payload.Email); err != nil {
		return a.HandleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status": statusSuccess,
	})
}

func (a *AccountsController) Status(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, a.ContextKey)
	if !ok {
		return a.HandleError(ctx, ErrTokenMalformed)
	}

	user, err := a.Auther.Status(ctx.Context(), claims)
	if err != nil {
		return a.HandleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"status": statusSuccess,
		"user":   NewUserResponse(user),
	})
}

// JWKS publishes the verification key
func (a *AccountsController) JWKS(ctx router.Context) error {
	if a.Signer == nil {
		return a.HandleError(ctx, withCause(ErrConfiguration, fmt.Errorf("signer not configured"), nil))
	}

	doc, err := JWKSDocument(a.Signer.PublicKey(), a.Signer.KeyID())
	if err != nil {
		return a.HandleError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, json.RawMessage(doc))
}

// HandleError renders err as {error, reason}. Details are logged, never
// returned.
func (a *AccountsController) HandleError(ctx router.Context, err error) error {
	code, reason := PublicReason(err)
	if code >= router.StatusInternalServerError {
		a.Logger.Error("accounts request failed", "error", err)
	} else {
		a.Logger.Debug("accounts request rejected", "error", err)
	}

	return ctx.JSON(code, map[string]any{
		"error":  true,
		"reason": reason,
	})
}
