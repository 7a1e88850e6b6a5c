package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/lumi-core/internal/device"
	"github.com/nerrad567/lumi-core/internal/ledger"
	"github.com/nerrad567/lumi-core/internal/schedule"
)

// Logger defines the logging interface used by the Dispatcher. It is passed
// through to the registry, group manager and schedule engine.
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

// Config configures a Dispatcher.
type Config struct {
	// Admin is the only identity allowed to register devices.
	Admin ledger.Identity

	// Policy selects schedule trigger and group execution behaviour.
	Policy schedule.Policy
}

// Dispatcher is the single entry point for ledger operations. It owns the
// device registry, group manager and schedule engine and applies operations
// one at a time.
//
// Thread Safety: Apply takes an exclusive lock for the whole operation
// including the store commit; Query and the read accessors take a shared
// lock and observe a consistent snapshot. notifyMu is taken before mu is
// released so observers see receipts in commit order.
type Dispatcher struct {
	mu        sync.RWMutex
	notifyMu  sync.Mutex
	devices   *device.Registry
	groups    *device.GroupManager
	schedules *schedule.Engine
	height    ledger.Height
	cursor    Cursor

	store     Store
	observers []Observer
	logger    Logger
	now       func() time.Time
}

// New creates a dispatcher with empty state. store may be nil, in which case
// operations are applied in memory only (used by replay verification).
func New(cfg Config, store Store) *Dispatcher {
	devices := device.NewRegistry(cfg.Admin)
	groups := device.NewGroupManager(devices)
	return &Dispatcher{
		devices:   devices,
		groups:    groups,
		schedules: schedule.NewEngine(devices, groups, cfg.Policy),
		store:     store,
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger for the dispatcher and its components.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = logger
	d.devices.SetLogger(logger)
	d.groups.SetLogger(logger)
	d.schedules.SetLogger(logger)
}

// AddObserver registers o to receive a receipt for every committed operation.
// Observers must be added before the first Apply.
func (d *Dispatcher) AddObserver(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// Apply runs op for caller at height.
//
// Read operations are answered from a snapshot and not journaled. Every
// other operation is journaled, including rejected ones. The returned error
// is non-nil only for infrastructure failures (the context was cancelled or
// the store rejected the commit); in that case all in-memory changes made by
// op have been undone. Ledger rejections are reported in Result.Err.
func (d *Dispatcher) Apply(ctx context.Context, op Operation, caller ledger.Identity, height ledger.Height) (Result, error) {
	return d.apply(ctx, op, caller, height, nil)
}

// ApplyAt is Apply for a transaction taken from a block. A committed write
// also persists the cursor past ref, so a restarted follower resumes a
// partially applied block at the first uncommitted transaction.
func (d *Dispatcher) ApplyAt(ctx context.Context, op Operation, caller ledger.Identity, ref TxRef) (Result, error) {
	return d.apply(ctx, op, caller, ref.Height, &ref)
}

func (d *Dispatcher) apply(ctx context.Context, op Operation, caller ledger.Identity, height ledger.Height, ref *TxRef) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if op.IsRead() {
		return d.Query(op), nil
	}

	d.mu.Lock()
	res, receipt, err := d.applyLocked(ctx, op, caller, height, ref)
	if err != nil {
		d.mu.Unlock()
		return Result{}, err
	}
	observers := d.observers
	d.notifyMu.Lock()
	d.mu.Unlock()

	defer d.notifyMu.Unlock()
	for _, o := range observers {
		o.OnReceipt(ctx, receipt)
	}
	return res, nil
}

func (d *Dispatcher) applyLocked(ctx context.Context, op Operation, caller ledger.Identity, height ledger.Height, ref *TxRef) (Result, Receipt, error) {
	pre := d.capture(op)

	res, err := d.execute(op, caller, height)
	if err != nil {
		d.restore(pre)
		return Result{}, Receipt{}, err
	}

	value, err := res.EncodeValue()
	if err != nil {
		d.restore(pre)
		return Result{}, Receipt{}, err
	}

	entry := &Entry{
		Height:    height,
		Caller:    caller,
		Operation: op,
		Code:      res.Code(),
		Result:    value,
		CreatedAt: d.now().UTC(),
	}
	cs := &Changeset{Entry: entry}
	if ref != nil {
		cs.Cursor = &Cursor{Height: ref.Height, Next: ref.Index + 1, End: ref.End}
	}
	var changed []device.Device
	if res.OK() {
		changed = d.postImages(pre, cs)
	}
	entry.StateRoot = d.stateRoot()

	if d.store != nil {
		if err := d.store.Commit(ctx, cs); err != nil {
			d.restore(pre)
			d.logger.Error("commit failed, operation discarded",
				"operation", op.Op,
				"height", height,
				"error", err,
			)
			return Result{}, Receipt{}, fmt.Errorf("committing %s: %w", op.Op, err)
		}
	}
	if height > d.height {
		d.height = height
	}
	if cs.Cursor != nil {
		d.cursor = *cs.Cursor
	}

	if res.OK() {
		d.logger.Debug("operation applied", "operation", op.Op, "caller", caller, "height", height)
	} else {
		d.logger.Debug("operation rejected",
			"operation", op.Op,
			"caller", caller,
			"height", height,
			"code", res.Err.Code,
		)
	}
	return res, Receipt{Entry: *entry, Devices: changed}, nil
}

// execute routes op to its component. A non-nil error means a component
// returned something other than a ledger rejection.
func (d *Dispatcher) execute(op Operation, caller ledger.Identity, height ledger.Height) (Result, error) {
	var (
		value any
		err   error
	)
	switch op.Op {
	case ledger.OpRegisterDevice:
		value, err = d.devices.Register(op.ID, caller)
	case ledger.OpToggleLight:
		value, err = d.devices.ToggleLight(op.ID, caller)
	case ledger.OpSetBrightness:
		value, err = d.devices.SetBrightness(op.ID, op.Level, caller)
	case ledger.OpSetPower:
		value, err = d.devices.SetPower(op.ID, op.On, caller)
	case ledger.OpCreateGroup:
		value, err = d.groups.CreateGroup(op.ID, op.Name, caller)
	case ledger.OpAddToGroup:
		err = d.groups.AddMember(op.GroupID, op.DeviceID, caller)
	case ledger.OpRemoveFromGroup:
		err = d.groups.RemoveMember(op.GroupID, op.DeviceID, caller)
	case ledger.OpCreateSchedule:
		value, err = d.schedules.Create(schedule.CreateRequest{
			ID:            op.ID,
			TargetID:      op.TargetID,
			TargetType:    op.TargetType,
			Action:        op.Action,
			Value:         op.Value,
			TriggerHeight: op.TriggerHeight,
		}, caller, height)
	case ledger.OpExecuteSchedule:
		value, err = d.schedules.Execute(op.ID, height, caller)
	default:
		err = ledger.Reject(op.Op, ledger.CodeUnknownOperation, fmt.Sprintf("unsupported operation %q", op.Op))
	}
	return toResult(op.Op, value, err)
}

func toResult(op string, value any, err error) (Result, error) {
	if err == nil {
		return Result{Op: op, Value: value}, nil
	}
	var le *ledger.Error
	if errors.As(err, &le) {
		return Result{Op: op, Err: le}, nil
	}
	return Result{}, fmt.Errorf("%s: %w", op, err)
}

// Query answers a read operation from the current state. Non-read
// operations are rejected with UNKNOWN_OPERATION.
func (d *Dispatcher) Query(op Operation) Result {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var (
		value any
		err   error
	)
	switch op.Op {
	case ledger.OpGetDeviceStatus:
		value, err = d.devices.Status(op.ID)
	case ledger.OpListMembers:
		value, err = d.groups.Members(op.GroupID)
	case ledger.OpGetGroup:
		value, err = d.groups.View(op.GroupID)
	case ledger.OpGetSchedule:
		value, err = d.schedules.Get(op.ID)
	default:
		err = ledger.Reject(op.Op, ledger.CodeUnknownOperation, "not a read operation")
	}
	res, _ := toResult(op.Op, value, err)
	return res
}

// Due returns the ids of schedules due at height in ascending order.
func (d *Dispatcher) Due(height ledger.Height) []uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.schedules.Due(height)
}

// StateRoot returns the hex SHA-256 digest of the current state.
func (d *Dispatcher) StateRoot() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stateRoot()
}

// Height returns the highest height an operation has been applied at.
func (d *Dispatcher) Height() ledger.Height {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.height
}

// Cursor returns the chain position after the last operation applied with
// ApplyAt.
func (d *Dispatcher) Cursor() Cursor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cursor
}

// Counts returns the number of devices, groups and schedules.
func (d *Dispatcher) Counts() (devices, groups, schedules int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.devices.Count(), d.groups.Count(), d.schedules.Count()
}

// Restore loads a persisted snapshot into the dispatcher. It is meant to be
// called once at startup before any Apply.
func (d *Dispatcher) Restore(snap Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, dev := range snap.Devices {
		d.devices.Put(dev)
	}
	for _, g := range snap.Groups {
		d.groups.Put(g)
	}
	for _, s := range snap.Schedules {
		d.schedules.Put(s)
	}
	d.height = snap.Height
	d.cursor = snap.Cursor

	d.logger.Info("ledger state restored",
		"devices", len(snap.Devices),
		"groups", len(snap.Groups),
		"schedules", len(snap.Schedules),
		"height", snap.Height,
		"cursor_next", snap.Cursor.Next,
	)
}

// preImage holds the records an operation may touch as they were before it
// ran. A nil value means the record did not exist.
type preImage struct {
	devices   map[uint64]*device.Device
	groups    map[uint64]*device.Group
	schedules map[uint64]*schedule.Schedule
}

// capture records the pre-image of every record op can touch.
func (d *Dispatcher) capture(op Operation) preImage {
	pre := preImage{
		devices:   make(map[uint64]*device.Device),
		groups:    make(map[uint64]*device.Group),
		schedules: make(map[uint64]*schedule.Schedule),
	}
	addDevice := func(id uint64) {
		if dev, ok := d.devices.Get(id); ok {
			pre.devices[id] = &dev
		} else {
			pre.devices[id] = nil
		}
	}

	switch op.Op {
	case ledger.OpRegisterDevice, ledger.OpToggleLight, ledger.OpSetBrightness, ledger.OpSetPower:
		addDevice(op.ID)
	case ledger.OpCreateGroup:
		pre.groups[op.ID], _ = d.groups.Get(op.ID)
	case ledger.OpAddToGroup, ledger.OpRemoveFromGroup:
		pre.groups[op.GroupID], _ = d.groups.Get(op.GroupID)
	case ledger.OpCreateSchedule:
		pre.schedules[op.ID], _ = d.schedules.Lookup(op.ID)
	case ledger.OpExecuteSchedule:
		pre.schedules[op.ID], _ = d.schedules.Lookup(op.ID)
		for _, id := range d.schedules.TargetDevices(op.ID) {
			addDevice(id)
		}
	}
	return pre
}

// restore puts every captured record back to its pre-image.
func (d *Dispatcher) restore(pre preImage) {
	for id, dev := range pre.devices {
		if dev == nil {
			d.devices.Remove(id)
		} else {
			d.devices.Put(*dev)
		}
	}
	for id, g := range pre.groups {
		if g == nil {
			d.groups.Remove(id)
		} else {
			d.groups.Put(g)
		}
	}
	for id, s := range pre.schedules {
		if s == nil {
			d.schedules.Remove(id)
		} else {
			d.schedules.Put(s)
		}
	}
}

// postImages fills cs with the current state of every captured record and
// returns the devices whose state differs from their pre-image.
func (d *Dispatcher) postImages(pre preImage, cs *Changeset) []device.Device {
	var changed []device.Device
	for _, id := range sortedKeys(pre.devices) {
		dev, ok := d.devices.Get(id)
		if !ok {
			continue
		}
		cs.Devices = append(cs.Devices, dev)
		if before := pre.devices[id]; before == nil || *before != dev {
			changed = append(changed, dev)
		}
	}
	for _, id := range sortedKeys(pre.groups) {
		if g, ok := d.groups.Get(id); ok {
			cs.Groups = append(cs.Groups, g)
		}
	}
	for _, id := range sortedKeys(pre.schedules) {
		if s, ok := d.schedules.Lookup(id); ok {
			cs.Schedules = append(cs.Schedules, s)
		}
	}
	return changed
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
