package schedule

import (
	"fmt"
	"slices"

	"github.com/nerrad567/lumi-core/internal/device"
	"github.com/nerrad567/lumi-core/internal/ledger"
)

// Devices is the interface the engine needs from the device registry.
type Devices interface {
	Exists(id uint64) bool
	Owner(id uint64) (ledger.Identity, bool)
	CanMutate(op string, id uint64, caller ledger.Identity) error
	ToggleLight(id uint64, caller ledger.Identity) (bool, error)
	SetBrightness(id, level uint64, caller ledger.Identity) (uint8, error)
	SetPower(id uint64, on bool, caller ledger.Identity) (bool, error)
}

// Groups is the interface the engine needs from the group manager.
type Groups interface {
	Owner(id uint64) (ledger.Identity, bool)
	Members(id uint64) ([]uint64, error)
}

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CreateRequest carries the parameters of create-schedule. Target type and
// action arrive as wire strings so unknown values map to INVALID_TARGET and
// INVALID_ACTION respectively.
type CreateRequest struct {
	ID            uint64
	TargetID      uint64
	TargetType    string
	Action        string
	Value         uint64
	TriggerHeight ledger.Height
}

// Engine owns the schedule table. It never fires on its own: a height-aware
// caller submits execute-schedule once a schedule is due.
//
// Thread Safety: not safe for concurrent use; the dispatcher serialises access.
type Engine struct {
	devices   Devices
	groups    Groups
	policy    Policy
	schedules map[uint64]*Schedule
	logger    Logger
}

// NewEngine creates an empty schedule engine.
//
// Parameters:
//   - devices: device registry used to resolve and mutate device targets
//   - groups: group manager used to resolve group targets
//   - policy: trigger and group execution policy
func NewEngine(devices Devices, groups Groups, policy Policy) *Engine {
	if policy.Trigger == "" {
		policy.Trigger = TriggerFuture
	}
	if policy.Group == "" {
		policy.Group = GroupBestEffort
	}
	return &Engine{
		devices:   devices,
		groups:    groups,
		policy:    policy,
		schedules: make(map[uint64]*Schedule),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// Policy returns the engine's configured policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Create validates req and stores a new pending schedule owned by caller.
// Validation order: id, duplicate, target, ownership, action, value, trigger.
//
// Returns:
//   - uint64: the created schedule id
//   - error: INVALID_ID, ALREADY_EXISTS, INVALID_TARGET, NOT_AUTHORIZED,
//     INVALID_ACTION, INVALID_RANGE, or INVALID_TRIGGER
func (e *Engine) Create(req CreateRequest, caller ledger.Identity, height ledger.Height) (uint64, error) {
	const op = ledger.OpCreateSchedule

	if err := device.ValidateID(op, req.ID); err != nil {
		return 0, err
	}
	if _, exists := e.schedules[req.ID]; exists {
		return 0, ledger.Reject(op, ledger.CodeAlreadyExists, "")
	}

	target, owner, err := e.resolveTarget(req.TargetType, req.TargetID)
	if err != nil {
		return 0, err
	}
	if err := ledger.Authorize(op, owner, caller); err != nil {
		return 0, err
	}

	action, ok := ParseAction(req.Action)
	if !ok {
		return 0, ledger.Reject(op, ledger.CodeInvalidAction, fmt.Sprintf("unknown action %q", req.Action))
	}
	if action == ActionSetBrightness {
		if err := device.ValidateBrightness(op, req.Value); err != nil {
			return 0, err
		}
	}

	if e.policy.Trigger == TriggerFuture && req.TriggerHeight <= height {
		return 0, ledger.Reject(op, ledger.CodeInvalidTrigger,
			fmt.Sprintf("trigger height %d not after current height %d", req.TriggerHeight, height))
	}

	e.schedules[req.ID] = &Schedule{
		ID:            req.ID,
		Owner:         caller,
		Target:        target,
		Action:        action,
		Value:         req.Value,
		TriggerHeight: req.TriggerHeight,
		CreatedHeight: height,
	}

	e.logger.Debug("schedule created",
		"id", req.ID,
		"target_kind", target.Kind,
		"target_id", target.ID,
		"action", action,
		"trigger_height", req.TriggerHeight,
	)
	return req.ID, nil
}

// resolveTarget maps a wire target to a TargetRef and the owner whose
// authority the schedule will act with.
func (e *Engine) resolveTarget(kind string, id uint64) (TargetRef, ledger.Identity, error) {
	const op = ledger.OpCreateSchedule

	k, ok := ParseTargetKind(kind)
	if !ok {
		return TargetRef{}, "", ledger.Reject(op, ledger.CodeInvalidTarget, fmt.Sprintf("unknown target type %q", kind))
	}

	var (
		owner  ledger.Identity
		exists bool
	)
	switch k {
	case TargetDevice:
		owner, exists = e.devices.Owner(id)
	case TargetGroup:
		owner, exists = e.groups.Owner(id)
	}
	if !exists {
		return TargetRef{}, "", ledger.Reject(op, ledger.CodeInvalidTarget, fmt.Sprintf("%s %d not found", k, id))
	}
	return TargetRef{Kind: k, ID: id}, owner, nil
}

// Execute applies a due schedule's action with the schedule owner's
// authority and marks it executed. Any caller may execute.
//
// A device target is all-or-nothing. A group target follows the configured
// GroupPolicy; members are processed in ascending id order.
//
// Returns:
//   - Report: devices applied and per-device failures
//   - error: SCHEDULE_NOT_FOUND, ALREADY_EXECUTED, NOT_DUE, or under the
//     all-or-nothing policy the first failing member's error
func (e *Engine) Execute(id uint64, height ledger.Height, caller ledger.Identity) (Report, error) {
	const op = ledger.OpExecuteSchedule

	s, ok := e.schedules[id]
	if !ok {
		return Report{}, ledger.Reject(op, ledger.CodeScheduleNotFound, "")
	}
	if s.Executed {
		return Report{}, ledger.Reject(op, ledger.CodeAlreadyExecuted, "")
	}
	if height < s.TriggerHeight {
		return Report{}, ledger.Reject(op, ledger.CodeNotDue,
			fmt.Sprintf("due at %d, current height %d", s.TriggerHeight, height))
	}

	targets, err := e.targetDevices(s)
	if err != nil {
		return Report{}, err
	}

	if s.Target.Kind == TargetDevice || e.policy.Group == GroupAllOrNothing {
		for _, did := range targets {
			if err := e.devices.CanMutate(s.Action.operation(), did, s.Owner); err != nil {
				code, _ := ledger.CodeOf(err)
				return Report{}, ledger.Reject(op, code, fmt.Sprintf("device %d", did))
			}
		}
	}

	report := Report{Applied: make([]uint64, 0, len(targets))}
	for _, did := range targets {
		if err := e.apply(s, did); err != nil {
			code, _ := ledger.CodeOf(err)
			report.Failures = append(report.Failures, MemberFailure{DeviceID: did, Code: code})
			e.logger.Warn("schedule action failed for device",
				"schedule_id", id,
				"device_id", did,
				"code", code,
			)
			continue
		}
		report.Applied = append(report.Applied, did)
	}

	s.Executed = true
	s.ExecutedHeight = height
	s.ExecutedBy = caller
	s.Report = report.clone()

	e.logger.Info("schedule executed",
		"id", id,
		"height", height,
		"applied", len(report.Applied),
		"failed", len(report.Failures),
	)
	return report, nil
}

// apply runs the schedule's action on one device as the schedule owner.
func (e *Engine) apply(s *Schedule, deviceID uint64) error {
	var err error
	switch s.Action {
	case ActionToggle:
		_, err = e.devices.ToggleLight(deviceID, s.Owner)
	case ActionSetBrightness:
		_, err = e.devices.SetBrightness(deviceID, s.Value, s.Owner)
	case ActionTurnOn:
		_, err = e.devices.SetPower(deviceID, true, s.Owner)
	case ActionTurnOff:
		_, err = e.devices.SetPower(deviceID, false, s.Owner)
	default:
		err = ledger.Reject(ledger.OpExecuteSchedule, ledger.CodeInvalidAction, string(s.Action))
	}
	return err
}

// targetDevices resolves the devices a schedule currently applies to.
func (e *Engine) targetDevices(s *Schedule) ([]uint64, error) {
	if s.Target.Kind == TargetGroup {
		members, err := e.groups.Members(s.Target.ID)
		if err != nil {
			code, _ := ledger.CodeOf(err)
			return nil, ledger.Reject(ledger.OpExecuteSchedule, code, fmt.Sprintf("group %d", s.Target.ID))
		}
		return members, nil
	}
	return []uint64{s.Target.ID}, nil
}

// TargetDevices returns the device ids an execution of schedule id would
// touch right now, or nil if the schedule does not exist.
func (e *Engine) TargetDevices(id uint64) []uint64 {
	s, ok := e.schedules[id]
	if !ok {
		return nil
	}
	ids, err := e.targetDevices(s)
	if err != nil {
		return nil
	}
	return ids
}

// Get returns a copy of schedule id.
func (e *Engine) Get(id uint64) (Schedule, error) {
	s, ok := e.schedules[id]
	if !ok {
		return Schedule{}, ledger.Reject(ledger.OpGetSchedule, ledger.CodeScheduleNotFound, "")
	}
	return *s.DeepCopy(), nil
}

// Lookup returns a deep copy of the stored schedule.
func (e *Engine) Lookup(id uint64) (*Schedule, bool) {
	s, ok := e.schedules[id]
	if !ok {
		return nil, false
	}
	return s.DeepCopy(), true
}

// Due returns the ids of unexecuted schedules whose trigger height has been
// reached at height, in ascending order.
func (e *Engine) Due(height ledger.Height) []uint64 {
	var ids []uint64
	for id, s := range e.schedules {
		if s.StateAt(height) == StateDue {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Put stores a deep copy of s, replacing any existing record. Used only to
// load persisted state and restore pre-images.
func (e *Engine) Put(s *Schedule) {
	e.schedules[s.ID] = s.DeepCopy()
}

// Remove deletes schedule id. Used only for state restoration.
func (e *Engine) Remove(id uint64) {
	delete(e.schedules, id)
}

// IDs returns all schedule ids in ascending order.
func (e *Engine) IDs() []uint64 {
	ids := make([]uint64, 0, len(e.schedules))
	for id := range e.schedules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Count returns the number of schedules.
func (e *Engine) Count() int {
	return len(e.schedules)
}
