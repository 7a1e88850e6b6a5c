package device

import "github.com/nerrad567/lumi-core/internal/ledger"

// MaxBrightness is the upper bound of the brightness range [0, MaxBrightness].
const MaxBrightness = 100

// Device is a registered light.
//
// Brightness persists independently of IsOn: switching a light off keeps its
// level for the next time it is switched on.
type Device struct {
	ID         uint64          `json:"id"`
	Owner      ledger.Identity `json:"owner"` // immutable after registration
	IsOn       bool            `json:"is_on"`
	Brightness uint8           `json:"brightness"`
}

// Status is the public read model returned by get-device-status.
type Status struct {
	Owner      ledger.Identity `json:"owner"`
	IsOn       bool            `json:"is_on"`
	Brightness uint8           `json:"brightness"`
}

// Status returns the public view of the device.
func (d Device) Status() Status {
	return Status{
		Owner:      d.Owner,
		IsOn:       d.IsOn,
		Brightness: d.Brightness,
	}
}
