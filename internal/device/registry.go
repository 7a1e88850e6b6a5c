package device

import (
	"slices"

	"github.com/nerrad567/lumi-core/internal/ledger"
)

// Logger defines the logging interface used by the Registry and GroupManager.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry owns the device table and enforces the two-tier authorization
// rule: the administrator registers, the device owner mutates.
type Registry struct {
	admin   ledger.Identity
	devices map[uint64]*Device
	logger  Logger
}

// NewRegistry creates an empty registry whose devices may only be registered
// by admin.
func NewRegistry(admin ledger.Identity) *Registry {
	return &Registry{
		admin:   admin,
		devices: make(map[uint64]*Device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Admin returns the identity allowed to register devices.
func (r *Registry) Admin() ledger.Identity {
	return r.admin
}

// Register inserts a new device owned by caller.
//
// Returns:
//   - uint64: the registered id
//   - error: NOT_AUTHORIZED if caller is not the administrator, INVALID_ID
//     for id 0, ALREADY_EXISTS if the id is taken
func (r *Registry) Register(id uint64, caller ledger.Identity) (uint64, error) {
	const op = ledger.OpRegisterDevice

	if err := ledger.Authorize(op, r.admin, caller); err != nil {
		return 0, err
	}
	if err := ValidateID(op, id); err != nil {
		return 0, err
	}
	if _, exists := r.devices[id]; exists {
		return 0, ledger.Reject(op, ledger.CodeAlreadyExists, "")
	}

	r.devices[id] = &Device{ID: id, Owner: caller}

	r.logger.Debug("device registered", "id", id, "owner", caller)
	return id, nil
}

// ToggleLight flips the on/off state of a device and returns the new state.
func (r *Registry) ToggleLight(id uint64, caller ledger.Identity) (bool, error) {
	d, err := r.mutable(ledger.OpToggleLight, id, caller)
	if err != nil {
		return false, err
	}

	d.IsOn = !d.IsOn

	r.logger.Debug("device toggled", "id", id, "is_on", d.IsOn)
	return d.IsOn, nil
}

// SetPower switches a device on or off and returns the resulting state.
// Setting the state a device already has is not an error.
func (r *Registry) SetPower(id uint64, on bool, caller ledger.Identity) (bool, error) {
	d, err := r.mutable(ledger.OpSetPower, id, caller)
	if err != nil {
		return false, err
	}

	d.IsOn = on

	r.logger.Debug("device power set", "id", id, "is_on", on)
	return on, nil
}

// SetBrightness sets the brightness of a device without touching IsOn.
//
// Returns:
//   - uint8: the stored level
//   - error: DEVICE_NOT_FOUND, NOT_AUTHORIZED, or INVALID_RANGE
func (r *Registry) SetBrightness(id, level uint64, caller ledger.Identity) (uint8, error) {
	const op = ledger.OpSetBrightness

	d, err := r.mutable(op, id, caller)
	if err != nil {
		return 0, err
	}
	if err := ValidateBrightness(op, level); err != nil {
		return 0, err
	}

	d.Brightness = uint8(level)

	r.logger.Debug("device brightness set", "id", id, "brightness", level)
	return d.Brightness, nil
}

// CanMutate reports whether caller could mutate device id, returning the
// error the mutation would fail with. It never changes state.
func (r *Registry) CanMutate(op string, id uint64, caller ledger.Identity) error {
	_, err := r.mutable(op, id, caller)
	return err
}

// mutable returns the stored device after the existence and ownership checks
// shared by every per-device mutation.
func (r *Registry) mutable(op string, id uint64, caller ledger.Identity) (*Device, error) {
	d, ok := r.devices[id]
	if !ok {
		return nil, ledger.Reject(op, ledger.CodeDeviceNotFound, "")
	}
	if err := ledger.Authorize(op, d.Owner, caller); err != nil {
		return nil, err
	}
	return d, nil
}

// Status returns the public status of a device. It is authorization-free.
func (r *Registry) Status(id uint64) (Status, error) {
	d, ok := r.devices[id]
	if !ok {
		return Status{}, ledger.Reject(ledger.OpGetDeviceStatus, ledger.CodeDeviceNotFound, "")
	}
	return d.Status(), nil
}

// Exists reports whether a device with id is registered.
func (r *Registry) Exists(id uint64) bool {
	_, ok := r.devices[id]
	return ok
}

// Owner returns the owner of device id.
func (r *Registry) Owner(id uint64) (ledger.Identity, bool) {
	d, ok := r.devices[id]
	if !ok {
		return "", false
	}
	return d.Owner, true
}

// Get returns a copy of the stored device.
func (r *Registry) Get(id uint64) (Device, bool) {
	d, ok := r.devices[id]
	if !ok {
		return Device{}, false
	}
	return *d, true
}

// Put stores d verbatim, replacing any existing record. It bypasses
// authorization and is used only to load persisted state and to restore
// pre-images when a commit is discarded.
func (r *Registry) Put(d Device) {
	cpy := d
	r.devices[d.ID] = &cpy
}

// Remove deletes device id. Like Put it exists only for state restoration;
// devices are never deleted by ledger operations.
func (r *Registry) Remove(id uint64) {
	delete(r.devices, id)
}

// IDs returns all registered device ids in ascending order.
func (r *Registry) IDs() []uint64 {
	ids := make([]uint64, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	return len(r.devices)
}
