package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/transaction"
	"github.com/xraph/tally/types"
)

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:tally_accounts"`

	ID                 string     `grove:"id,pk"`
	Email              string     `grove:"email"`
	Credits            int64      `grove:"credits"`
	Tier               string     `grove:"tier"`
	SubscriptionRef    string     `grove:"subscription_ref"`
	SubscriptionActive bool       `grove:"subscription_active"`
	TotalSpentCents    int64      `grove:"total_spent_cents"`
	TotalSpentCurrency string     `grove:"total_spent_currency"`
	LastPurchaseAt     *time.Time `grove:"last_purchase_at"`
	LastPaymentAt      *time.Time `grove:"last_payment_at"`
	CancelledAt        *time.Time `grove:"cancelled_at"`
	CreatedAt          time.Time  `grove:"created_at"`
	UpdatedAt          time.Time  `grove:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:                 a.ID.String(),
		Email:              a.Email,
		Credits:            a.Credits,
		Tier:               string(a.Tier),
		SubscriptionRef:    a.SubscriptionRef,
		SubscriptionActive: a.SubscriptionActive,
		TotalSpentCents:    a.TotalSpent.Amount,
		TotalSpentCurrency: a.TotalSpent.Currency,
		LastPurchaseAt:     a.LastPurchaseAt,
		LastPaymentAt:      a.LastPaymentAt,
		CancelledAt:        a.CancelledAt,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	acctID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}

	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                 acctID,
		Email:              m.Email,
		Credits:            m.Credits,
		Tier:               account.Tier(m.Tier),
		SubscriptionRef:    m.SubscriptionRef,
		SubscriptionActive: m.SubscriptionActive,
		TotalSpent:         types.Money{Amount: m.TotalSpentCents, Currency: m.TotalSpentCurrency},
		LastPurchaseAt:     m.LastPurchaseAt,
		LastPaymentAt:      m.LastPaymentAt,
		CancelledAt:        m.CancelledAt,
	}, nil
}

// ==================== Transaction models ====================

type transactionModel struct {
	grove.BaseModel `grove:"table:tally_transactions"`

	ID             string    `grove:"id,pk"`
	Email          string    `grove:"email"`
	Reference      string    `grove:"reference"`
	AmountCents    int64     `grove:"amount_cents"`
	AmountCurrency string    `grove:"amount_currency"`
	CreditsAdded   int64     `grove:"credits_added"`
	Kind           string    `grove:"kind"`
	Status         string    `grove:"status"`
	OccurredAt     time.Time `grove:"occurred_at"`
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toTransactionModel(r *transaction.Record) *transactionModel {
	return &transactionModel{
		ID:             r.ID.String(),
		Email:          r.Email,
		Reference:      r.Reference,
		AmountCents:    r.Amount.Amount,
		AmountCurrency: r.Amount.Currency,
		CreditsAdded:   r.CreditsAdded,
		Kind:           string(r.Kind),
		Status:         string(r.Status),
		OccurredAt:     r.OccurredAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func fromTransactionModel(m *transactionModel) (*transaction.Record, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}

	return &transaction.Record{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           txnID,
		Email:        m.Email,
		Reference:    m.Reference,
		Amount:       types.Money{Amount: m.AmountCents, Currency: m.AmountCurrency},
		CreditsAdded: m.CreditsAdded,
		Kind:         transaction.Kind(m.Kind),
		Status:       transaction.Status(m.Status),
		OccurredAt:   m.OccurredAt,
	}, nil
}
