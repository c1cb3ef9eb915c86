package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	tally "github.com/xraph/tally"
	"github.com/xraph/tally/account"
	tallystore "github.com/xraph/tally/store"
	"github.com/xraph/tally/transaction"
)

// Collection name constants.
const (
	colAccounts     = "tally_accounts"
	colTransactions = "tally_transactions"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tally collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("tally/mongo: migrate %s indexes: %w", col, err)
		}
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
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"email": email}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrAccountNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) UpsertAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"email": m.Email}).
		SetUpdate(bson.M{"$set": bson.M{
			"credits":              m.Credits,
			"tier":                 m.Tier,
			"subscription_ref":     m.SubscriptionRef,
			"subscription_active":  m.SubscriptionActive,
			"total_spent_cents":    m.TotalSpentCents,
			"total_spent_currency": m.TotalSpentCurrency,
			"last_purchase_at":     m.LastPurchaseAt,
			"last_payment_at":      m.LastPaymentAt,
			"cancelled_at":         m.CancelledAt,
			"updated_at":           m.UpdatedAt,
		}}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: upsert account: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}

	_, err = s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// A concurrent writer created the document; land the state on it.
			_, err = s.mdb.NewUpdate((*accountModel)(nil)).
				Filter(bson.M{"email": m.Email}).
				SetUpdate(bson.M{"$set": bson.M{
					"credits":              m.Credits,
					"tier":                 m.Tier,
					"subscription_ref":     m.SubscriptionRef,
					"subscription_active":  m.SubscriptionActive,
					"total_spent_cents":    m.TotalSpentCents,
					"total_spent_currency": m.TotalSpentCurrency,
					"last_purchase_at":     m.LastPurchaseAt,
					"last_payment_at":      m.LastPaymentAt,
					"cancelled_at":         m.CancelledAt,
					"updated_at":           m.UpdatedAt,
				}}).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("tally/mongo: upsert account: %w", err)
			}
			return nil
		}
		return fmt.Errorf("tally/mongo: upsert account: %w", err)
	}
	return nil
}

// CreditAccount applies the grant with a $inc update so concurrent grants
// against the same document serialize inside the database. Accounts are
// never deleted, so insert-after-miss converges in at most one retry.
func (s *Store) CreditAccount(ctx context.Context, email string, grant account.CreditGrant) (*account.Account, error) {
	applied, err := s.applyGrant(ctx, email, grant)
	if err != nil {
		return nil, err
	}
	if applied {
		return s.GetAccount(ctx, email)
	}

	// No document yet: insert a fresh account carrying the grant. A
	// concurrent insert may win the unique email index; ours is then skipped.
	a := account.New(email)
	a.Credits = grant.Credits
	a.TotalSpent = grant.Spend
	at := grant.PurchasedAt
	a.LastPurchaseAt = &at

	_, err = s.mdb.NewInsert(toAccountModel(a)).Exec(ctx)
	if err == nil {
		return a, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("tally/mongo: credit account: %w", err)
	}

	// Lost the insert race. The document exists now; the grant still has to land.
	applied, err = s.applyGrant(ctx, email, grant)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: credit %s: document vanished between insert and update", tally.ErrStore, email)
	}
	return s.GetAccount(ctx, email)
}

func (s *Store) applyGrant(ctx context.Context, email string, grant account.CreditGrant) (bool, error) {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"email": email}).
		SetUpdate(bson.M{
			"$inc": bson.M{
				"credits":           grant.Credits,
				"total_spent_cents": grant.Spend.Amount,
			},
			"$set": bson.M{
				"total_spent_currency": grant.Spend.Currency,
				"last_purchase_at":     grant.PurchasedAt,
				"updated_at":           now(),
			},
		}).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("tally/mongo: apply grant: %w", err)
	}
	return res.MatchedCount() > 0, nil
}

func (s *Store) UpdateAccount(ctx context.Context, email string, patch account.Patch) error {
	if patch.Empty() {
		return nil
	}

	update := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"email": email}).
		Set("updated_at", now())

	if patch.Tier != nil {
		update = update.Set("tier", string(*patch.Tier))
	}
	if patch.SubscriptionRef != nil {
		update = update.Set("subscription_ref", *patch.SubscriptionRef)
	}
	if patch.SubscriptionActive != nil {
		update = update.Set("subscription_active", *patch.SubscriptionActive)
	}
	if patch.LastPaymentAt != nil {
		update = update.Set("last_payment_at", *patch.LastPaymentAt)
	}
	if patch.CancelledAt != nil {
		update = update.Set("cancelled_at", *patch.CancelledAt)
	}

	res, err := update.Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: update account: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tally.ErrAccountNotFound
	}
	return nil
}

// ==================== Transaction Store ====================

func (s *Store) AppendTransaction(ctx context.Context, r *transaction.Record) error {
	_, err := s.mdb.NewInsert(toTransactionModel(r)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrDuplicateTransaction
		}
		return fmt.Errorf("tally/mongo: append transaction: %w", err)
	}
	return nil
}

func (s *Store) TransactionByReference(ctx context.Context, reference string) (*transaction.Record, error) {
	if reference == "" {
		return nil, tally.ErrTransactionNotFound
	}
	var m transactionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"reference": reference}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("tally/mongo: transaction by reference: %w", err)
	}
	return fromTransactionModel(&m)
}

func (s *Store) ListTransactions(ctx context.Context, email string, opts transaction.ListOpts) ([]*transaction.Record, error) {
	var models []transactionModel

	filter := bson.M{"email": email}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "occurred_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list transactions: %w", err)
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tally collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colTransactions: {
			{
				// Empty references are omitted from documents, so the sparse
				// unique index never collides on them.
				Keys:    bson.D{{Key: "reference", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
			{Keys: bson.D{{Key: "email", Value: 1}, {Key: "occurred_at", Value: -1}}},
		},
	}
}
