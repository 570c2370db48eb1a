package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Concrete repositories detect the
// underlying type (pgx.Tx for Postgres) and MUST gracefully accept nil for
// the non-transactional path.
type Tx interface{}

// TransactionManager executes fn inside a storage transaction, passing the
// handle via tx. Rolls back when fn errors, commits otherwise. The ledger's
// compound operations (debit+record, settle+credit) all run through this.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
