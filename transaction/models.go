package transaction

import (
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

type Kind string

const (
	KindCreditPurchase        Kind = "credit_purchase"
	KindSubscriptionPayment   Kind = "subscription_payment"
	KindSubscriptionCancelled Kind = "subscription_cancelled"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
)

// Record is an append-only audit entry for a processed event. Reference
// carries the provider's session or subscription identifier and is the
// replay-detection key: at most one record exists per reference.
type Record struct {
	types.Entity
	ID           id.TransactionID `json:"id"`
	Email        string           `json:"email"`
	Reference    string           `json:"reference,omitempty"`
	Amount       types.Money      `json:"amount"`
	CreditsAdded int64            `json:"credits_added"`
	Kind         Kind             `json:"kind"`
	Status       Status           `json:"status"`
	OccurredAt   time.Time        `json:"occurred_at"`
}
