package account

import "context"

type Store interface {
	// Get returns the account for an email, or a not-found error.
	Get(ctx context.Context, email string) (*Account, error)
	// Upsert writes the full account record, creating it if absent.
	Upsert(ctx context.Context, a *Account) error
	// Credit applies a grant atomically, creating the account with tier
	// "free" when it does not exist yet. Returns the post-grant record.
	Credit(ctx context.Context, email string, grant CreditGrant) (*Account, error)
	// Update applies a partial update to an existing account.
	Update(ctx context.Context, email string, patch Patch) error
}
