package chain

import "errors"

var (
	// ErrMalformedBlock is returned for block payloads that cannot be decoded.
	ErrMalformedBlock = errors.New("chain: malformed block")

	// ErrStopped is returned when a block arrives after Stop.
	ErrStopped = errors.New("chain: follower stopped")

	// ErrBlockIncomplete is returned when a block arrives above one that
	// has not been fully applied. The block is held, not dropped, unless
	// too many are already held.
	ErrBlockIncomplete = errors.New("chain: previous block incomplete")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("chain: follower already started")
)
