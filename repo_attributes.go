package accounts

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Attributes is the user attributes repository
type Attributes interface {
	repository.Repository[*Attribute]

	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Attribute, error)
	ListByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*Attribute, error)
	Set(ctx context.Context, userID uuid.UUID, key, text string) (*Attribute, error)
	SetTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, key, text string) (*Attribute, error)
}

type attributes struct {
	repository.Repository[*Attribute]
	db *bun.DB
}

var _ Attributes = (*attributes)(nil)

// NewAttributesRepository returns a bun backed Attributes repository
func NewAttributesRepository(db *bun.DB) Attributes {
	repo := repository.NewRepository[*Attribute](db, repository.ModelHandlers[*Attribute]{
		NewRecord: func() *Attribute { return &Attribute{} },
		GetID: func(a *Attribute) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Attribute, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "attribute_key"
		},
	})

	return &attributes{
		Repository: repo,
		db:         db,
	}
}

func (a *attributes) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Attribute, error) {
	return a.ListByUserTx(ctx, a.db, userID)
}

// ListByUserTx returns attributes in merge order
func (a *attributes) ListByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) ([]*Attribute, error) {
	records := []*Attribute{}
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID.String()).
		OrderExpr("?TableAlias.position ASC, ?TableAlias.attribute_key ASC").
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}
	return records, nil
}

func (a *attributes) Set(ctx context.Context, userID uuid.UUID, key, text string) (*Attribute, error) {
	return a.SetTx(ctx, a.db, userID, key, text)
}

// SetTx creates the attribute or replaces the text of an existing one
func (a *attributes) SetTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, key, text string) (*Attribute, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalidRequest
	}

	existing := &Attribute{}
	err := tx.NewSelect().
		Model(existing).
		Where("?TableAlias.user_id = ?", userID.String()).
		Where("?TableAlias.attribute_key = ?", key).
		Limit(1).
		Scan(ctx)

	switch {
	case err == nil:
		existing.Text = text
		return a.Repository.UpdateTx(ctx, tx, existing, repository.UpdateByID(existing.ID.String()))
	case repository.IsRecordNotFound(err):
		position, err := tx.NewSelect().
			Model((*Attribute)(nil)).
			Where("?TableAlias.user_id = ?", userID.String()).
			Count(ctx)
		if err != nil {
			return nil, err
		}
		return a.Repository.CreateTx(ctx, tx, &Attribute{
			ID:       uuid.New(),
			UserID:   userID,
			Key:      key,
			Text:     text,
			Position: position,
		})
	default:
		return nil, err
	}
}
