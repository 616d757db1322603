package accounts

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the users repository
type Users interface {
	repository.Repository[*User]

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByActivationCode(ctx context.Context, code string) (*User, error)
	GetByActivationCodeTx(ctx context.Context, tx bun.IDB, code string) (*User, error)

	Confirm(ctx context.Context, id uuid.UUID) error
	ConfirmTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
}

type users struct {
	repository.Repository[*User]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// NewUsersRepository returns a bun backed Users repository
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	if user == nil {
		return nil, ErrInvalidRequest
	}

	if _, err := a.GetByEmailTx(ctx, tx, user.Email); err == nil {
		return nil, ErrEmailTaken.Clone().WithMetadata(map[string]any{"email": user.Email})
	} else if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	return a.CreateTx(ctx, tx, user)
}

func (a *users) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	options := resolveUserIdentifier(identifier)

	for _, opt := range options {
		record := &User{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, repository.NewRecordNotFound()
	}
	return a.findOneTx(ctx, tx, "email", email)
}

func (a *users) GetByActivationCode(ctx context.Context, code string) (*User, error) {
	return a.GetByActivationCodeTx(ctx, a.db, code)
}

func (a *users) GetByActivationCodeTx(ctx context.Context, tx bun.IDB, code string) (*User, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, repository.NewRecordNotFound()
	}
	return a.findOneTx(ctx, tx, "email_code", code)
}

func (a *users) findOneTx(ctx context.Context, tx bun.IDB, column, value string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{column: value})
		}
		return nil, err
	}
	return record, nil
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) Confirm(ctx context.Context, id uuid.UUID) error {
	return a.ConfirmTx(ctx, a.db, id)
}

// ConfirmTx marks the account as confirmed and clears the activation code
func (a *users) ConfirmTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	return a.updateByID(ctx, tx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("confirmed = ?", true).
			Set("email_code = NULL").
			Set("updated_at = ?", a.now().UTC())
	})
}

func (a *users) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.UpdatePasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	return a.updateByID(ctx, tx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("password_hash = ?", passwordHash).
			Set("updated_at = ?", a.now().UTC())
	})
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

// TrackSuccessfulLoginTx stamps loggedin_at and resets the failed attempts.
// Set is used so the zero values are written.
func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	at := a.now().UTC()
	err := a.updateByID(ctx, tx, user.ID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("loggedin_at = ?", at).
			Set("login_attempt_at = NULL").
			Set("login_attempts = 0")
	})
	if err != nil {
		return err
	}
	user.LoggedInAt = &at
	user.LoginAttempts = 0
	user.LoginAttemptAt = nil
	return nil
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, user)
}

func (a *users) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	at := a.now().UTC()
	attempts := user.LoginAttempts + 1
	err := a.updateByID(ctx, tx, user.ID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("login_attempt_at = ?", at).
			Set("login_attempts = ?", attempts)
	})
	if err != nil {
		return err
	}
	user.LoginAttempts = attempts
	user.LoginAttemptAt = &at
	return nil
}

// updateByID runs a partial update on a live user row. Soft deleted rows
// are skipped by bun and reported as not found.
func (a *users) updateByID(ctx context.Context, tx bun.IDB, id uuid.UUID, set func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	q := tx.NewUpdate().
		Model((*User)(nil)).
		Where("id = ?", id.String())

	res, err := set(q).Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}
	return nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = normalizeEmail(record.Email)

	if record.Tier == "" {
		record.Tier = TierStandard
	}

	if record.Username == "" {
		record.Username = getUsername(record.Username, record.Email)
	}

	if record.Language == "" {
		record.Language = DefaultLanguage
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

type identifierOption struct {
	column string
	value  string
}

// resolveUserIdentifier lists the columns an identifier may match, most
// specific first. Username is always tried last.
func resolveUserIdentifier(identifier string) []identifierOption {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return nil
	}

	var out []identifierOption
	if _, err := uuid.Parse(id); err == nil {
		out = append(out, identifierOption{"id", id})
	}
	if _, err := mail.ParseAddress(id); err == nil {
		out = append(out, identifierOption{"email", normalizeEmail(id)})
	}
	return append(out, identifierOption{"username", id})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// getUsername falls back to the local part of email
func getUsername(username, email string) string {
	if username != "" {
		return username
	}
	local, _, _ := strings.Cut(email, "@")
	if local == email {
		return ""
	}
	return local
}

func isRecordNotFound(err error) bool {
	return repository.IsRecordNotFound(err)
}
