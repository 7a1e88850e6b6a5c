// Package schedule holds block-height-triggered device actions.
//
// A schedule names a target (one device or one group), an action and a
// trigger height. It moves through three states:
//
//	Pending ──(height ≥ trigger)──▶ Due ──(execute-schedule)──▶ Executed
//
// Nothing fires automatically. Execution is pulled by a caller that knows
// the current height (in lumid, the chain keeper submits the request through
// the block stream), and a schedule executes at most once.
//
// # Authority
//
// Only the owner of the target may create a schedule for it. Execution may be
// requested by anyone; the action is applied through the device registry
// with the schedule owner as caller, so ownership rules still hold.
//
// # Policies
//
// Whether trigger heights must lie in the future, and whether group
// executions are best-effort or all-or-nothing, is configured via Policy.
package schedule
