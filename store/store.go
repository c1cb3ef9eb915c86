package store

import (
	"context"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/transaction"
)

// Store is the unified storage interface for all Tally entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Account methods
	GetAccount(ctx context.Context, email string) (*account.Account, error)
	UpsertAccount(ctx context.Context, a *account.Account) error
	CreditAccount(ctx context.Context, email string, grant account.CreditGrant) (*account.Account, error)
	UpdateAccount(ctx context.Context, email string, patch account.Patch) error

	// Transaction methods
	AppendTransaction(ctx context.Context, r *transaction.Record) error
	TransactionByReference(ctx context.Context, reference string) (*transaction.Record, error)
	ListTransactions(ctx context.Context, email string, opts transaction.ListOpts) ([]*transaction.Record, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
