// Package tally reconciles payment provider webhook events into a user
// account ledger.
//
// Tally is designed as a library, not a service. Import it directly into
// your Go application and mount the webhook endpoint on your own mux. It
// provides:
//
//   - HMAC-SHA256 webhook signature verification with a replay window
//   - Event dispatch for purchases, subscription payments and cancellations
//   - An idempotent account ledger: credit balances, cumulative spend,
//     subscription state
//   - An append-only transaction log keyed by provider references
//   - Pluggable storage (memory, PostgreSQL, SQLite, MongoDB)
//   - Hosted checkout session creation (Stripe built-in)
//
// # Quick Start
//
// Create a Tally instance with your preferred store and mount the webhook
// endpoint:
//
//	import (
//	    "github.com/xraph/tally"
//	    "github.com/xraph/tally/store/memory"
//	)
//
//	t := tally.New(memory.New(),
//	    tally.WithSecret(os.Getenv("WEBHOOK_SECRET")),
//	    tally.WithProvider(stripeClient),
//	)
//
//	if err := t.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Stop()
//
//	http.Handle("/webhooks/payments", t.WebhookHandler())
//
// # Core Concepts
//
// Every delivery is verified against the signing secret before anything
// else; a tampered or replayed payload never reaches the ledger. Verified
// events route by kind:
//
//   - a completed checkout grants credits (amount / credit rate) and
//     accumulates spend
//   - a successful subscription invoice activates the subscription and
//     classifies its tier
//   - a subscription deletion deactivates it
//
// Each application is keyed by a provider reference in the transaction
// log, so redelivered events acknowledge without mutating. Unrecognized
// event kinds acknowledge without touching storage at all.
//
// Account state is queried through the read API:
//
//	acct, err := t.Account(ctx, "user@example.com")
//	status, err := t.SubscriptionStatus(ctx, "user@example.com")
//	history, err := t.Transactions(ctx, "user@example.com", transaction.ListOpts{})
//
// # Money
//
// All monetary amounts use integer arithmetic in minor units (cents for
// USD, pence for GBP). The Money type carries the amount and its lowercase
// currency code; provider payload amounts convert via FromMinor.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	txn_01h455vb4pex5vsknk084sn02q   // Transaction ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package tally
