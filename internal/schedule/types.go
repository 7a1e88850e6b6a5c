package schedule

import "github.com/nerrad567/lumi-core/internal/ledger"

// TargetKind identifies what a schedule's target id refers to.
type TargetKind string

const (
	TargetDevice TargetKind = "device"
	TargetGroup  TargetKind = "group"
)

// ParseTargetKind returns the kind named by s.
func ParseTargetKind(s string) (TargetKind, bool) {
	switch TargetKind(s) {
	case TargetDevice, TargetGroup:
		return TargetKind(s), true
	default:
		return "", false
	}
}

// TargetRef is a plain id reference to a device or a group. It is resolved
// against the registry or group manager at execution time.
type TargetRef struct {
	Kind TargetKind `json:"kind"`
	ID   uint64     `json:"id"`
}

// Action is the device command a schedule applies when executed.
type Action string

const (
	ActionToggle        Action = "toggle"
	ActionSetBrightness Action = "set-brightness"
	ActionTurnOn        Action = "turn-on"
	ActionTurnOff       Action = "turn-off"
)

// AllActions returns all valid schedule actions.
func AllActions() []Action {
	return []Action{
		ActionToggle,
		ActionSetBrightness,
		ActionTurnOn,
		ActionTurnOff,
	}
}

// ParseAction returns the action named by s.
func ParseAction(s string) (Action, bool) {
	for _, a := range AllActions() {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// operation returns the device operation the action is applied through.
func (a Action) operation() string {
	switch a {
	case ActionToggle:
		return ledger.OpToggleLight
	case ActionSetBrightness:
		return ledger.OpSetBrightness
	default:
		return ledger.OpSetPower
	}
}

// State is the lifecycle state of a schedule at a given height.
type State string

const (
	StatePending  State = "pending"
	StateDue      State = "due"
	StateExecuted State = "executed"
)

// Schedule is a pending device action keyed by trigger height.
type Schedule struct {
	ID            uint64          `json:"id"`
	Owner         ledger.Identity `json:"owner"`
	Target        TargetRef       `json:"target"`
	Action        Action          `json:"action"`
	Value         uint64          `json:"value"` // brightness level; ignored by other actions
	TriggerHeight ledger.Height   `json:"trigger_height"`
	CreatedHeight ledger.Height   `json:"created_height"`

	// Execution outcome. Executed only ever moves from false to true.
	Executed       bool            `json:"executed"`
	ExecutedHeight ledger.Height   `json:"executed_height,omitempty"`
	ExecutedBy     ledger.Identity `json:"executed_by,omitempty"`
	Report         *Report         `json:"report,omitempty"`
}

// StateAt returns the lifecycle state of the schedule at height.
func (s *Schedule) StateAt(height ledger.Height) State {
	switch {
	case s.Executed:
		return StateExecuted
	case height >= s.TriggerHeight:
		return StateDue
	default:
		return StatePending
	}
}

// DeepCopy creates an independent copy of the schedule including its report.
func (s *Schedule) DeepCopy() *Schedule {
	if s == nil {
		return nil
	}
	cpy := *s
	cpy.Report = s.Report.clone()
	return &cpy
}

// Report is the outcome of executing a schedule: devices the action was
// applied to and per-device failures, both in ascending device id order.
type Report struct {
	Applied  []uint64        `json:"applied"`
	Failures []MemberFailure `json:"failures,omitempty"`
}

// MemberFailure records a device the action could not be applied to.
type MemberFailure struct {
	DeviceID uint64      `json:"device_id"`
	Code     ledger.Code `json:"code"`
}

// Partial reports whether at least one target device failed.
func (r *Report) Partial() bool {
	return r != nil && len(r.Failures) > 0
}

func (r *Report) clone() *Report {
	if r == nil {
		return nil
	}
	cpy := &Report{Applied: append([]uint64{}, r.Applied...)}
	if r.Failures != nil {
		cpy.Failures = append([]MemberFailure{}, r.Failures...)
	}
	return cpy
}
