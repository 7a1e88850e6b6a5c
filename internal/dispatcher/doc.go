// Package dispatcher is the single entry point for lumi ledger operations.
//
// Every operation arrives as (Operation, caller, height) in the order fixed
// by the external chain and runs to completion under an exclusive lock:
//
//	Apply
//	  1. capture pre-images of every record the operation can touch
//	  2. route to the registry, group manager or schedule engine
//	  3. build the journal entry and post-images, hash the state root
//	  4. Store.Commit (one database transaction)
//	  5. on commit failure restore the pre-images
//	  6. notify observers with a Receipt
//
// Ledger rejections are values in Result.Err and are journaled like
// successes, so the journal is a complete replay log. Replay re-executes a
// journal on a fresh dispatcher and reports the first Divergence.
//
// Read operations (get-device-status, list-members, get-group, get-schedule)
// go through Query, take a shared lock and are never journaled.
package dispatcher
