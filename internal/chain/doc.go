// Package chain connects the ledger to the block stream.
//
// The Follower subscribes to lumi/chain/blocks and applies every
// transaction of every block, in order, through the dispatcher. Blocks are
// processed by a single goroutine so that MQTT delivery order never
// interleaves two blocks. A block at or below the last applied height is a
// duplicate and is skipped; a block whose processing failed part way is
// resumed from the first unapplied transaction when it is delivered again.
//
// After each block the follower publishes a BlockReceipt to
// lumi/receipts/{height}. The StatePublisher observer publishes every
// changed device to its retained lumi/state/device/{id} topic.
//
// The Keeper watches for schedules that have become due and submits
// execute-schedule transactions to lumi/chain/submit. It never applies
// them itself: execution only happens when the transaction comes back in a
// block, so every executor sees it at the same height.
package chain
