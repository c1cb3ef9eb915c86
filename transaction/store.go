package transaction

import "context"

type Store interface {
	// Append writes a new record. Appending a second record with the same
	// non-empty reference returns a duplicate error.
	Append(ctx context.Context, r *Record) error
	// ByReference returns the record holding a provider reference, or a
	// not-found error. This is the idempotency lookup.
	ByReference(ctx context.Context, ref string) (*Record, error)
	// List returns records for an email, newest first.
	List(ctx context.Context, email string, opts ListOpts) ([]*Record, error)
}

type ListOpts struct {
	Kind   Kind
	Limit  int
	Offset int
}
