// Package ledger provides the in-memory object store the protocol's
// move-call style operations execute against.
//
// # Call Model
//
// Every protocol operation (register, submit, destroy, config management)
// runs as one atomic ledger call:
//
//	err := led.Atomic(func(st *ledger.State) error {
//		// validate, then mutate
//		return st.CreateOwned(record, caller)
//	})
//
// Atomic holds the single writer lock for the duration of the callback, View
// the reader lock. Callbacks validate before they mutate, so an aborted call
// leaves nothing observable behind.
//
// # Objects and Ownership
//
// Objects are keyed by a derived 32-byte id and mutated only inside atomic
// calls; most protocol objects never change after creation. An object is
// either owned by exactly one account or shared. Owner-gated operations
// (Destroy, capability checks) fail with ErrNotOwner for anyone but the
// holder; shared objects have no holder and cannot pass those checks.
//
// # One-Time Witness
//
// Install issues a ModuleCap for a module name exactly once. The capability
// is an ordinary owned object: presenting it means owning it, and the
// registry checks that ownership before any administrative mutation.
package ledger
