package dispatcher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/lumi-core/internal/device"
	"github.com/nerrad567/lumi-core/internal/ledger"
)

// Result is the tagged outcome of one operation: either a success Value
// whose type depends on Op, or exactly one ledger error.
//
// Value types per operation:
//   - register-device, create-group, create-schedule: uint64 id
//   - toggle-light, set-power: bool
//   - set-brightness: uint8
//   - get-device-status: device.Status
//   - list-members: []uint64
//   - get-group: device.GroupView
//   - get-schedule: schedule.Schedule
//   - execute-schedule: schedule.Report
//   - add-to-group, remove-from-group: nil
type Result struct {
	Op    string
	Value any
	Err   *ledger.Error
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Code returns the result's ledger code, CodeOK on success.
func (r Result) Code() ledger.Code {
	if r.Err == nil {
		return ledger.CodeOK
	}
	return r.Err.Code
}

// EncodeValue returns the canonical JSON encoding of the success value, or
// nil for failed and unit results.
func (r Result) EncodeValue() (json.RawMessage, error) {
	if r.Err != nil || r.Value == nil {
		return nil, nil
	}
	data, err := json.Marshal(r.Value)
	if err != nil {
		return nil, fmt.Errorf("encoding %s result: %w", r.Op, err)
	}
	return data, nil
}

// Entry is one journaled operation. Seq is assigned by the store.
type Entry struct {
	Seq       int64           `json:"seq"`
	Height    ledger.Height   `json:"height"`
	Caller    ledger.Identity `json:"caller"`
	Operation Operation       `json:"operation"`
	Code      ledger.Code     `json:"code"`
	Result    json.RawMessage `json:"result,omitempty"`
	StateRoot string          `json:"state_root"`
	CreatedAt time.Time       `json:"created_at"`
}

// Receipt is delivered to observers after an operation is committed.
type Receipt struct {
	Entry

	// Devices holds post-images of every device the operation changed,
	// in ascending id order. Empty for rejected operations.
	Devices []device.Device `json:"devices,omitempty"`
}
