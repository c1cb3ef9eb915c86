package memory

import (
	"context"
	"sync"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/transaction"
)

type Store struct {
	mu sync.RWMutex

	// Account storage, keyed by email
	accounts map[string]*account.Account

	// Transaction log in append order, with a reference index for
	// idempotency lookups
	transactions []*transaction.Record
	byReference  map[string]*transaction.Record
}

func New() *Store {
	return &Store{
		accounts:     make(map[string]*account.Account),
		transactions: make([]*transaction.Record, 0),
		byReference:  make(map[string]*transaction.Record),
	}
}

// Account Store implementation. Returned accounts are copies; the live
// record never escapes the lock.

func (s *Store) GetAccount(_ context.Context, email string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[email]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, tally.ErrAccountNotFound
}

func (s *Store) UpsertAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	s.accounts[a.Email] = &cp
	return nil
}

func (s *Store) CreditAccount(_ context.Context, email string, grant account.CreditGrant) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[email]
	if !ok {
		a = account.New(email)
		s.accounts[email] = a
	}

	a.Credits += grant.Credits
	a.TotalSpent = a.TotalSpent.Add(grant.Spend)
	at := grant.PurchasedAt
	a.LastPurchaseAt = &at
	a.Touch()

	cp := *a
	return &cp, nil
}

func (s *Store) UpdateAccount(_ context.Context, email string, patch account.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[email]
	if !ok {
		return tally.ErrAccountNotFound
	}
	patch.Apply(a)
	return nil
}

// Transaction Store implementation

func (s *Store) AppendTransaction(_ context.Context, r *transaction.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Reference != "" {
		if _, exists := s.byReference[r.Reference]; exists {
			return tally.ErrDuplicateTransaction
		}
	}

	cp := *r
	s.transactions = append(s.transactions, &cp)
	if cp.Reference != "" {
		s.byReference[cp.Reference] = &cp
	}
	return nil
}

func (s *Store) TransactionByReference(_ context.Context, reference string) (*transaction.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if reference != "" {
		if r, ok := s.byReference[reference]; ok {
			cp := *r
			return &cp, nil
		}
	}
	return nil, tally.ErrTransactionNotFound
}

func (s *Store) ListTransactions(_ context.Context, email string, opts transaction.ListOpts) ([]*transaction.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest first
	result := make([]*transaction.Record, 0)
	for i := len(s.transactions) - 1; i >= 0; i-- {
		r := s.transactions[i]
		if r.Email == email {
			if opts.Kind == "" || r.Kind == opts.Kind {
				cp := *r
				result = append(result, &cp)
			}
		}
	}

	// Apply limit/offset
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

// Store management

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}
