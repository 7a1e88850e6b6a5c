package schedule

import "fmt"

// TriggerPolicy decides which trigger heights create-schedule accepts.
type TriggerPolicy string

const (
	// TriggerFuture requires trigger_height to be strictly greater than the
	// height the schedule is created at.
	TriggerFuture TriggerPolicy = "future"

	// TriggerImmediate accepts any trigger height, so a schedule may be due
	// as soon as it is created.
	TriggerImmediate TriggerPolicy = "immediate"
)

// ParseTriggerPolicy parses a configured trigger policy. An empty string
// selects TriggerFuture.
func ParseTriggerPolicy(s string) (TriggerPolicy, error) {
	switch TriggerPolicy(s) {
	case "", TriggerFuture:
		return TriggerFuture, nil
	case TriggerImmediate:
		return TriggerImmediate, nil
	default:
		return "", fmt.Errorf("unknown trigger policy %q", s)
	}
}

// GroupPolicy decides how group-targeted executions handle member failures.
type GroupPolicy string

const (
	// GroupBestEffort applies the action to every member it can, collects
	// per-member failures in the report and marks the schedule executed.
	GroupBestEffort GroupPolicy = "best-effort"

	// GroupAllOrNothing pre-validates every member and rejects the whole
	// execution, leaving state unchanged, if any member would fail.
	GroupAllOrNothing GroupPolicy = "all-or-nothing"
)

// ParseGroupPolicy parses a configured group execution policy. An empty
// string selects GroupBestEffort.
func ParseGroupPolicy(s string) (GroupPolicy, error) {
	switch GroupPolicy(s) {
	case "", GroupBestEffort:
		return GroupBestEffort, nil
	case GroupAllOrNothing:
		return GroupAllOrNothing, nil
	default:
		return "", fmt.Errorf("unknown group execution policy %q", s)
	}
}

// Policy bundles the engine's configurable behaviour.
type Policy struct {
	Trigger TriggerPolicy
	Group   GroupPolicy
}

// DefaultPolicy returns the future-trigger, best-effort policy.
func DefaultPolicy() Policy {
	return Policy{Trigger: TriggerFuture, Group: GroupBestEffort}
}
