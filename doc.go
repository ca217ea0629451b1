// Package subvault provides a prepaid subscription billing vault for Go
// applications.
//
// A subscription is a recurring agreement between a subscriber and a
// merchant. The subscriber deposits credit into the subscription's prepaid
// balance; the vault debits a fixed amount once per interval and, when usage
// billing is enabled, metered amounts on demand. Subvault is a library, not a
// service: import it and pick a store.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/subvault"
//	    "github.com/xraph/subvault/store/postgres"
//	)
//
//	store, err := postgres.Open(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	v := subvault.New(store,
//	    subvault.WithAuthorizer(auth.NewJWTAuthorizer(key)),
//	)
//	if err := v.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer v.Stop()
//
//	_ = v.Init(ctx, subvault.InitParams{Token: "usdc", Admin: "admin", MinTopup: 1_0000000})
//
//	subID, err := v.CreateSubscription(ctx, subvault.CreateParams{
//	    Subscriber:      "alice",
//	    Merchant:        "acme",
//	    Amount:          10_0000000,
//	    IntervalSeconds: 30 * 24 * 3600,
//	})
//
// # Lifecycle
//
// Subscriptions move through active, paused, insufficient_balance and the
// terminal cancelled status. Only the edges in subscription.AllowedTransitions
// are legal. A deposit never changes the status; a subscription that ran out
// of funds stays in insufficient_balance until it is resumed.
//
// # Charging
//
// ChargeInterval succeeds at most once per interval. If the balance cannot
// cover the amount, the subscription is marked insufficient_balance and the
// call returns ErrInsufficientBalance. BatchCharge applies ChargeInterval to
// many ids and reports a Code per item. The scheduler package runs
// BatchCharge for due subscriptions on a timer.
//
// # Errors
//
// Every failure is a sentinel error with a stable numeric Code (see CodeOf).
// All balance arithmetic is overflow-checked and reports ErrOverflow instead
// of wrapping.
//
// # Concurrency
//
// Operations on one subscription are serialized through a lock.Locker. The
// in-process locker is the default; use lock.RedisLocker when several
// processes share a store.
package subvault
