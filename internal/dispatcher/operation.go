package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/lumi-core/internal/ledger"
)

// Operation is one ledger operation in its wire form. Op selects the
// operation; the remaining fields are its parameters and are zero when the
// operation does not use them.
type Operation struct {
	Op string `json:"op"`

	ID       uint64 `json:"id,omitempty"` // device, group or schedule id
	GroupID  uint64 `json:"group_id,omitempty"`
	DeviceID uint64 `json:"device_id,omitempty"`

	Level uint64 `json:"level,omitempty"`
	On    bool   `json:"on,omitempty"`
	Name  string `json:"name,omitempty"`

	TargetID      uint64        `json:"target_id,omitempty"`
	TargetType    string        `json:"target_type,omitempty"`
	Action        string        `json:"action,omitempty"`
	Value         uint64        `json:"value,omitempty"`
	TriggerHeight ledger.Height `json:"trigger_height,omitempty"`
}

// RegisterDevice builds a register-device operation.
func RegisterDevice(id uint64) Operation {
	return Operation{Op: ledger.OpRegisterDevice, ID: id}
}

// ToggleLight builds a toggle-light operation.
func ToggleLight(id uint64) Operation {
	return Operation{Op: ledger.OpToggleLight, ID: id}
}

// SetBrightness builds a set-brightness operation.
func SetBrightness(id, level uint64) Operation {
	return Operation{Op: ledger.OpSetBrightness, ID: id, Level: level}
}

// SetPower builds a set-power operation.
func SetPower(id uint64, on bool) Operation {
	return Operation{Op: ledger.OpSetPower, ID: id, On: on}
}

// GetDeviceStatus builds a get-device-status read.
func GetDeviceStatus(id uint64) Operation {
	return Operation{Op: ledger.OpGetDeviceStatus, ID: id}
}

// CreateGroup builds a create-group operation.
func CreateGroup(id uint64, name string) Operation {
	return Operation{Op: ledger.OpCreateGroup, ID: id, Name: name}
}

// AddToGroup builds an add-to-group operation.
func AddToGroup(groupID, deviceID uint64) Operation {
	return Operation{Op: ledger.OpAddToGroup, GroupID: groupID, DeviceID: deviceID}
}

// RemoveFromGroup builds a remove-from-group operation.
func RemoveFromGroup(groupID, deviceID uint64) Operation {
	return Operation{Op: ledger.OpRemoveFromGroup, GroupID: groupID, DeviceID: deviceID}
}

// ListMembers builds a list-members read.
func ListMembers(groupID uint64) Operation {
	return Operation{Op: ledger.OpListMembers, GroupID: groupID}
}

// GetGroup builds a get-group read.
func GetGroup(groupID uint64) Operation {
	return Operation{Op: ledger.OpGetGroup, GroupID: groupID}
}

// CreateSchedule builds a create-schedule operation.
func CreateSchedule(id, targetID uint64, targetType, action string, value uint64, trigger ledger.Height) Operation {
	return Operation{
		Op:            ledger.OpCreateSchedule,
		ID:            id,
		TargetID:      targetID,
		TargetType:    targetType,
		Action:        action,
		Value:         value,
		TriggerHeight: trigger,
	}
}

// ExecuteSchedule builds an execute-schedule operation.
func ExecuteSchedule(id uint64) Operation {
	return Operation{Op: ledger.OpExecuteSchedule, ID: id}
}

// GetSchedule builds a get-schedule read.
func GetSchedule(id uint64) Operation {
	return Operation{Op: ledger.OpGetSchedule, ID: id}
}

// readOps are operations that never change state.
var readOps = map[string]bool{
	ledger.OpGetDeviceStatus: true,
	ledger.OpListMembers:     true,
	ledger.OpGetGroup:        true,
	ledger.OpGetSchedule:     true,
}

// writeOps are operations that may change state and are journaled.
var writeOps = map[string]bool{
	ledger.OpRegisterDevice:  true,
	ledger.OpToggleLight:     true,
	ledger.OpSetBrightness:   true,
	ledger.OpSetPower:        true,
	ledger.OpCreateGroup:     true,
	ledger.OpAddToGroup:      true,
	ledger.OpRemoveFromGroup: true,
	ledger.OpCreateSchedule:  true,
	ledger.OpExecuteSchedule: true,
}

// IsRead reports whether op is a read-only operation.
func (op Operation) IsRead() bool {
	return readOps[op.Op]
}

// Known reports whether op names a supported operation.
func (op Operation) Known() bool {
	return readOps[op.Op] || writeOps[op.Op]
}

// Encode returns the canonical JSON encoding of op.
func Encode(op Operation) ([]byte, error) {
	data, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("encoding operation %s: %w", op.Op, err)
	}
	return data, nil
}

// Decode parses a JSON operation. Malformed JSON is an ordinary error; a
// well-formed payload naming an unsupported operation is an
// UNKNOWN_OPERATION ledger error so it can be journaled as a rejection.
func Decode(data []byte) (Operation, error) {
	var op Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return Operation{}, fmt.Errorf("decoding operation: %w", err)
	}
	if !op.Known() {
		return op, ledger.Reject(op.Op, ledger.CodeUnknownOperation, fmt.Sprintf("unsupported operation %q", op.Op))
	}
	return op, nil
}
