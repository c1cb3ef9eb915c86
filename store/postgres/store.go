package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	tally "github.com/xraph/tally"
	"github.com/xraph/tally/account"
	tallystore "github.com/xraph/tally/store"
	"github.com/xraph/tally/transaction"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("tally/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tally/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) GetAccount(ctx context.Context, email string) (*account.Account, error) {
	m := new(accountModel)
	err := s.pg.NewSelect(m).
		Where("email = $1", email).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m)
}

func (s *Store) UpsertAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	m.UpdatedAt = now()
	_, err := s.pg.NewInsert(m).
		OnConflict("(email) DO UPDATE").
		Set("credits = EXCLUDED.credits").
		Set("tier = EXCLUDED.tier").
		Set("subscription_ref = EXCLUDED.subscription_ref").
		Set("subscription_active = EXCLUDED.subscription_active").
		Set("total_spent_cents = EXCLUDED.total_spent_cents").
		Set("total_spent_currency = EXCLUDED.total_spent_currency").
		Set("last_purchase_at = EXCLUDED.last_purchase_at").
		Set("last_payment_at = EXCLUDED.last_payment_at").
		Set("cancelled_at = EXCLUDED.cancelled_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// CreditAccount applies the grant with an arithmetic update so concurrent
// grants against the same row serialize inside the database. Accounts are
// never deleted, so insert-after-miss converges in at most one retry.
func (s *Store) CreditAccount(ctx context.Context, email string, grant account.CreditGrant) (*account.Account, error) {
	applied, err := s.applyGrant(ctx, email, grant)
	if err != nil {
		return nil, err
	}
	if applied {
		return s.GetAccount(ctx, email)
	}

	// No row yet: insert a fresh account carrying the grant. A concurrent
	// insert may win the unique email index; ours is then skipped.
	a := account.New(email)
	a.Credits = grant.Credits
	a.TotalSpent = grant.Spend
	at := grant.PurchasedAt
	a.LastPurchaseAt = &at

	res, err := s.pg.NewInsert(toAccountModel(a)).
		OnConflict("(email) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows > 0 {
		return a, nil
	}

	// Lost the insert race. The row exists now; the grant still has to land.
	applied, err = s.applyGrant(ctx, email, grant)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: credit %s: row vanished between insert and update", tally.ErrStore, email)
	}
	return s.GetAccount(ctx, email)
}

func (s *Store) applyGrant(ctx context.Context, email string, grant account.CreditGrant) (bool, error) {
	res, err := s.pg.NewUpdate((*accountModel)(nil)).
		Set("credits = credits + $1", grant.Credits).
		Set("total_spent_cents = total_spent_cents + $2", grant.Spend.Amount).
		Set("total_spent_currency = $3", grant.Spend.Currency).
		Set("last_purchase_at = $4", grant.PurchasedAt).
		Set("updated_at = $5", now()).
		Where("email = $6", email).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *Store) UpdateAccount(ctx context.Context, email string, patch account.Patch) error {
	if patch.Empty() {
		return nil
	}

	q := s.pg.NewUpdate((*accountModel)(nil))
	argIdx := 0
	if patch.Tier != nil {
		argIdx++
		q = q.Set(fmt.Sprintf("tier = $%d", argIdx), string(*patch.Tier))
	}
	if patch.SubscriptionRef != nil {
		argIdx++
		q = q.Set(fmt.Sprintf("subscription_ref = $%d", argIdx), *patch.SubscriptionRef)
	}
	if patch.SubscriptionActive != nil {
		argIdx++
		q = q.Set(fmt.Sprintf("subscription_active = $%d", argIdx), *patch.SubscriptionActive)
	}
	if patch.LastPaymentAt != nil {
		argIdx++
		q = q.Set(fmt.Sprintf("last_payment_at = $%d", argIdx), *patch.LastPaymentAt)
	}
	if patch.CancelledAt != nil {
		argIdx++
		q = q.Set(fmt.Sprintf("cancelled_at = $%d", argIdx), *patch.CancelledAt)
	}
	argIdx++
	q = q.Set(fmt.Sprintf("updated_at = $%d", argIdx), now())
	argIdx++
	q = q.Where(fmt.Sprintf("email = $%d", argIdx), email)

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tally.ErrAccountNotFound
	}
	return nil
}

// ==================== Transaction Store ====================

func (s *Store) AppendTransaction(ctx context.Context, r *transaction.Record) error {
	res, err := s.pg.NewInsert(toTransactionModel(r)).
		OnConflict("(reference) WHERE reference != '' DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tally.ErrDuplicateTransaction
	}
	return nil
}

func (s *Store) TransactionByReference(ctx context.Context, reference string) (*transaction.Record, error) {
	if reference == "" {
		return nil, tally.ErrTransactionNotFound
	}
	m := new(transactionModel)
	err := s.pg.NewSelect(m).
		Where("reference = $1", reference).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrTransactionNotFound
		}
		return nil, err
	}
	return fromTransactionModel(m)
}

func (s *Store) ListTransactions(ctx context.Context, email string, opts transaction.ListOpts) ([]*transaction.Record, error) {
	var models []transactionModel
	q := s.pg.NewSelect(&models).Where("email = $1", email)

	argIdx := 1
	if opts.Kind != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("kind = $%d", argIdx), string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("occurred_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*transaction.Record, len(models))
	for i := range models {
		r, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
