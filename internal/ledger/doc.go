// Package ledger holds the primitives shared by every lumi state machine
// component: caller identities, chain heights, the closed set of ledger
// error codes, and the single authorization check.
//
// # Error Codes
//
// Every rejected operation carries exactly one *Error. The numeric codes are
// part of the wire contract and never change once published; code 100 is
// reserved for NOT_AUTHORIZED across all operations.
//
//	if errors.Is(err, ledger.ErrNotAuthorized) {
//	    // caller is neither the administrator nor the resource owner
//	}
//
// The three not-found codes (device, group, schedule) all match
// ErrNotFound so callers can branch on the kind without caring which table
// missed.
//
// # Determinism
//
// Nothing in this package reads the clock, the environment or any random
// source. Components built on it must keep that property: the same ordered
// operations must produce the same results on every executor.
package ledger
