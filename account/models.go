package account

import (
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

type Tier string

const (
	TierFree       Tier = "free"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPremium, TierEnterprise:
		return true
	}
	return false
}

// New returns a fresh account for an email: zero credits, free tier, no
// subscription. Every backend creates accounts through this so that
// upsert-on-first-event starts from the same state.
func New(email string) *Account {
	return &Account{
		Entity: types.NewEntity(),
		ID:     id.NewAccountID(),
		Email:  email,
		Tier:   TierFree,
	}
}

type Account struct {
	types.Entity
	ID                 id.AccountID `json:"id"`
	Email              string       `json:"email"`
	Credits            int64        `json:"credits"`
	Tier               Tier         `json:"tier"`
	SubscriptionRef    string       `json:"subscription_ref,omitempty"`
	SubscriptionActive bool         `json:"subscription_active"`
	TotalSpent         types.Money  `json:"total_spent"`
	LastPurchaseAt     *time.Time   `json:"last_purchase_at,omitempty"`
	LastPaymentAt      *time.Time   `json:"last_payment_at,omitempty"`
	CancelledAt        *time.Time   `json:"cancelled_at,omitempty"`
}

// CreditGrant is the delta applied to an account by a completed purchase.
// The store applies it as a single atomic merge so that concurrent grants
// for the same account never lose an update.
type CreditGrant struct {
	Credits     int64
	Spend       types.Money
	PurchasedAt time.Time
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Tier               *Tier
	SubscriptionRef    *string
	SubscriptionActive *bool
	LastPaymentAt      *time.Time
	CancelledAt        *time.Time
}

func (p Patch) Empty() bool {
	return p.Tier == nil && p.SubscriptionRef == nil && p.SubscriptionActive == nil &&
		p.LastPaymentAt == nil && p.CancelledAt == nil
}

// Apply copies the non-nil patch fields onto the account.
func (p Patch) Apply(a *Account) {
	if p.Tier != nil {
		a.Tier = *p.Tier
	}
	if p.SubscriptionRef != nil {
		a.SubscriptionRef = *p.SubscriptionRef
	}
	if p.SubscriptionActive != nil {
		a.SubscriptionActive = *p.SubscriptionActive
	}
	if p.LastPaymentAt != nil {
		a.LastPaymentAt = p.LastPaymentAt
	}
	if p.CancelledAt != nil {
		a.CancelledAt = p.CancelledAt
	}
	a.Touch()
}
