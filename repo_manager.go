package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager groups the account repositories over one database so
// commands can run them in a single transaction
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Attributes() Attributes
}

type repositories struct {
	db         *bun.DB
	users      Users
	attributes Attributes
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &repositories{
		db:         db,
		users:      NewUsersRepository(db),
		attributes: NewAttributesRepository(db),
	}
}

func (r *repositories) Validate() error {
	var errs []error
	if r.db == nil {
		errs = append(errs, errors.New("database handle is nil"))
	}
	if r.users == nil {
		errs = append(errs, errors.New("users repository is nil"))
	}
	if r.attributes == nil {
		errs = append(errs, errors.New("attributes repository is nil"))
	}
	return errors.Join(errs...)
}

func (r *repositories) MustValidate() {
	if err := r.Validate(); err != nil {
		panic(fmt.Sprintf("accounts: invalid repository manager: %v", err))
	}
}

// RunInTx does not open a transaction for an already cancelled ctx
func (r *repositories) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx bun.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.RunInTx(ctx, opts, fn)
}

func (r *repositories) Users() Users           { return r.users }
func (r *repositories) Attributes() Attributes { return r.attributes }
