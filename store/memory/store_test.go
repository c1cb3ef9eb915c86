package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/transaction"
	"github.com/xraph/tally/types"
)

func TestCreditAccountCreatesOnFirstGrant(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	got, err := s.CreditAccount(ctx, "new@example.com", account.CreditGrant{
		Credits:     100,
		Spend:       types.USD(1000),
		PurchasedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreditAccount() error = %v", err)
	}

	if got.Email != "new@example.com" {
		t.Errorf("Email = %q", got.Email)
	}
	if got.Credits != 100 {
		t.Errorf("Credits = %d, want 100", got.Credits)
	}
	if got.Tier != account.TierFree {
		t.Errorf("Tier = %q, want free", got.Tier)
	}
	if got.TotalSpent.Amount != 1000 {
		t.Errorf("TotalSpent = %d, want 1000", got.TotalSpent.Amount)
	}
	if got.LastPurchaseAt == nil {
		t.Error("LastPurchaseAt not set")
	}
	if got.ID.IsNil() {
		t.Error("ID not assigned")
	}
}

func TestCreditAccountAccumulates(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if _, err := s.CreditAccount(ctx, "u@example.com", account.CreditGrant{Credits: 5, Spend: types.USD(50), PurchasedAt: time.Now()}); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	got, err := s.CreditAccount(ctx, "u@example.com", account.CreditGrant{Credits: 100, Spend: types.USD(1000), PurchasedAt: time.Now()})
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}

	if got.Credits != 105 {
		t.Errorf("Credits = %d, want 105", got.Credits)
	}
	if got.TotalSpent.Amount != 1050 {
		t.Errorf("TotalSpent = %d, want 1050", got.TotalSpent.Amount)
	}
}

func TestCreditAccountConcurrent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, _ = s.CreditAccount(ctx, "hot@example.com", account.CreditGrant{
				Credits:     10,
				Spend:       types.USD(100),
				PurchasedAt: time.Now(),
			})
		}()
	}
	wg.Wait()

	got, err := s.GetAccount(ctx, "hot@example.com")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if got.Credits != workers*10 {
		t.Errorf("Credits = %d, want %d", got.Credits, workers*10)
	}
	if got.TotalSpent.Amount != workers*100 {
		t.Errorf("TotalSpent = %d, want %d", got.TotalSpent.Amount, workers*100)
	}
}

func TestGetAccountReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if _, err := s.CreditAccount(ctx, "u@example.com", account.CreditGrant{Credits: 10, Spend: types.USD(100), PurchasedAt: time.Now()}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	first, err := s.GetAccount(ctx, "u@example.com")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	first.Credits = 9999

	second, err := s.GetAccount(ctx, "u@example.com")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if second.Credits != 10 {
		t.Errorf("stored Credits = %d after caller mutation, want 10", second.Credits)
	}
}

func TestGetAccountMissing(t *testing.T) {
	s := memory.New()

	_, err := s.GetAccount(context.Background(), "nobody@example.com")
	if !errors.Is(err, tally.ErrAccountNotFound) {
		t.Errorf("GetAccount() error = %v, want ErrAccountNotFound", err)
	}
}

func TestUpdateAccount(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	a := account.New("sub@example.com")
	if err := s.UpsertAccount(ctx, a); err != nil {
		t.Fatalf("UpsertAccount() error = %v", err)
	}

	tier := account.TierPremium
	ref := "sub_123"
	active := true
	now := time.Now()
	err := s.UpdateAccount(ctx, "sub@example.com", account.Patch{
		Tier:               &tier,
		SubscriptionRef:    &ref,
		SubscriptionActive: &active,
		LastPaymentAt:      &now,
	})
	if err != nil {
		t.Fatalf("UpdateAccount() error = %v", err)
	}

	got, err := s.GetAccount(ctx, "sub@example.com")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if got.Tier != account.TierPremium || got.SubscriptionRef != "sub_123" || !got.SubscriptionActive {
		t.Errorf("patched account = %+v", got)
	}
	if got.LastPaymentAt == nil {
		t.Error("LastPaymentAt not set")
	}

	err = s.UpdateAccount(ctx, "nobody@example.com", account.Patch{Tier: &tier})
	if !errors.Is(err, tally.ErrAccountNotFound) {
		t.Errorf("UpdateAccount(missing) error = %v, want ErrAccountNotFound", err)
	}
}

func TestAppendTransactionDuplicateReference(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	rec := &transaction.Record{
		Email:     "u@example.com",
		Reference: "cs_test_1",
		Amount:    types.USD(1000),
		Kind:      transaction.KindCreditPurchase,
		Status:    transaction.StatusCompleted,
	}
	if err := s.AppendTransaction(ctx, rec); err != nil {
		t.Fatalf("AppendTransaction() error = %v", err)
	}

	err := s.AppendTransaction(ctx, &transaction.Record{Email: "u@example.com", Reference: "cs_test_1"})
	if !errors.Is(err, tally.ErrDuplicateTransaction) {
		t.Errorf("duplicate reference error = %v, want ErrDuplicateTransaction", err)
	}

	// Empty references never collide.
	if err := s.AppendTransaction(ctx, &transaction.Record{Email: "u@example.com"}); err != nil {
		t.Errorf("append with empty reference: %v", err)
	}
	if err := s.AppendTransaction(ctx, &transaction.Record{Email: "u@example.com"}); err != nil {
		t.Errorf("second append with empty reference: %v", err)
	}
}

func TestTransactionByReference(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.AppendTransaction(ctx, &transaction.Record{
		Email:        "u@example.com",
		Reference:    "cs_test_9",
		CreditsAdded: 42,
		Kind:         transaction.KindCreditPurchase,
	}); err != nil {
		t.Fatalf("AppendTransaction() error = %v", err)
	}

	got, err := s.TransactionByReference(ctx, "cs_test_9")
	if err != nil {
		t.Fatalf("TransactionByReference() error = %v", err)
	}
	if got.CreditsAdded != 42 {
		t.Errorf("CreditsAdded = %d, want 42", got.CreditsAdded)
	}

	if _, err := s.TransactionByReference(ctx, "cs_missing"); !errors.Is(err, tally.ErrTransactionNotFound) {
		t.Errorf("missing reference error = %v, want ErrTransactionNotFound", err)
	}
	if _, err := s.TransactionByReference(ctx, ""); !errors.Is(err, tally.ErrTransactionNotFound) {
		t.Errorf("empty reference error = %v, want ErrTransactionNotFound", err)
	}
}

func TestListTransactions(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	for i, ref := range []string{"a", "b", "c"} {
		kind := transaction.KindCreditPurchase
		if i == 1 {
			kind = transaction.KindSubscriptionPayment
		}
		if err := s.AppendTransaction(ctx, &transaction.Record{
			Email:     "u@example.com",
			Reference: ref,
			Kind:      kind,
		}); err != nil {
			t.Fatalf("AppendTransaction(%s) error = %v", ref, err)
		}
	}
	if err := s.AppendTransaction(ctx, &transaction.Record{Email: "other@example.com", Reference: "d"}); err != nil {
		t.Fatalf("AppendTransaction(d) error = %v", err)
	}

	all, err := s.ListTransactions(ctx, "u@example.com", transaction.ListOpts{})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	// Newest first
	if all[0].Reference != "c" || all[2].Reference != "a" {
		t.Errorf("order = [%s %s %s], want [c b a]", all[0].Reference, all[1].Reference, all[2].Reference)
	}

	purchases, err := s.ListTransactions(ctx, "u@example.com", transaction.ListOpts{Kind: transaction.KindCreditPurchase})
	if err != nil {
		t.Fatalf("ListTransactions(kind) error = %v", err)
	}
	if len(purchases) != 2 {
		t.Errorf("kind-filtered len = %d, want 2", len(purchases))
	}

	paged, err := s.ListTransactions(ctx, "u@example.com", transaction.ListOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListTransactions(paged) error = %v", err)
	}
	if len(paged) != 1 || paged[0].Reference != "b" {
		t.Errorf("paged = %v", paged)
	}
}
