package device

import (
	"slices"

	"github.com/nerrad567/lumi-core/internal/ledger"
)

// DeviceIndex is what the GroupManager needs from the device registry: an
// existence check. Ownership of member devices is deliberately not consulted.
type DeviceIndex interface {
	Exists(id uint64) bool
}

// GroupManager owns named groups and their membership sets.
type GroupManager struct {
	devices DeviceIndex
	groups  map[uint64]*Group
	logger  Logger
}

// NewGroupManager creates an empty group manager that validates member
// existence against devices.
func NewGroupManager(devices DeviceIndex) *GroupManager {
	return &GroupManager{
		devices: devices,
		groups:  make(map[uint64]*Group),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the group manager.
func (m *GroupManager) SetLogger(logger Logger) {
	m.logger = logger
}

// CreateGroup creates an empty group owned by caller. Any caller may create
// a group.
//
// Returns:
//   - uint64: the created group id
//   - error: INVALID_ID, ALREADY_EXISTS, or INVALID_NAME
func (m *GroupManager) CreateGroup(id uint64, name string, caller ledger.Identity) (uint64, error) {
	const op = ledger.OpCreateGroup

	if err := ValidateID(op, id); err != nil {
		return 0, err
	}
	if _, exists := m.groups[id]; exists {
		return 0, ledger.Reject(op, ledger.CodeAlreadyExists, "")
	}
	if err := ValidateGroupName(op, name); err != nil {
		return 0, err
	}

	m.groups[id] = &Group{
		ID:      id,
		Name:    name,
		Owner:   caller,
		Members: make(map[uint64]struct{}),
	}

	m.logger.Debug("group created", "id", id, "name", name, "owner", caller)
	return id, nil
}

// AddMember adds deviceID to the group. The device must exist in the
// registry; only the group owner may edit membership.
//
// Returns:
//   - error: GROUP_NOT_FOUND, DEVICE_NOT_FOUND, NOT_AUTHORIZED, or ALREADY_MEMBER
func (m *GroupManager) AddMember(groupID, deviceID uint64, caller ledger.Identity) error {
	const op = ledger.OpAddToGroup

	g, ok := m.groups[groupID]
	if !ok {
		return ledger.Reject(op, ledger.CodeGroupNotFound, "")
	}
	if !m.devices.Exists(deviceID) {
		return ledger.Reject(op, ledger.CodeDeviceNotFound, "")
	}
	if err := ledger.Authorize(op, g.Owner, caller); err != nil {
		return err
	}
	if _, member := g.Members[deviceID]; member {
		return ledger.Reject(op, ledger.CodeAlreadyMember, "")
	}

	g.Members[deviceID] = struct{}{}

	m.logger.Debug("group member added", "group_id", groupID, "device_id", deviceID)
	return nil
}

// RemoveMember removes deviceID from the group.
//
// Returns:
//   - error: GROUP_NOT_FOUND, NOT_AUTHORIZED, or NOT_MEMBER
func (m *GroupManager) RemoveMember(groupID, deviceID uint64, caller ledger.Identity) error {
	const op = ledger.OpRemoveFromGroup

	g, ok := m.groups[groupID]
	if !ok {
		return ledger.Reject(op, ledger.CodeGroupNotFound, "")
	}
	if err := ledger.Authorize(op, g.Owner, caller); err != nil {
		return err
	}
	if _, member := g.Members[deviceID]; !member {
		return ledger.Reject(op, ledger.CodeNotMember, "")
	}

	delete(g.Members, deviceID)

	m.logger.Debug("group member removed", "group_id", groupID, "device_id", deviceID)
	return nil
}

// Members returns the member device ids of a group in ascending order.
func (m *GroupManager) Members(groupID uint64) ([]uint64, error) {
	g, ok := m.groups[groupID]
	if !ok {
		return nil, ledger.Reject(ledger.OpListMembers, ledger.CodeGroupNotFound, "")
	}
	return g.MemberIDs(), nil
}

// View returns the read model of a group.
func (m *GroupManager) View(groupID uint64) (GroupView, error) {
	g, ok := m.groups[groupID]
	if !ok {
		return GroupView{}, ledger.Reject(ledger.OpGetGroup, ledger.CodeGroupNotFound, "")
	}
	return g.View(), nil
}

// Exists reports whether a group with id exists.
func (m *GroupManager) Exists(id uint64) bool {
	_, ok := m.groups[id]
	return ok
}

// Owner returns the owner of group id.
func (m *GroupManager) Owner(id uint64) (ledger.Identity, bool) {
	g, ok := m.groups[id]
	if !ok {
		return "", false
	}
	return g.Owner, true
}

// Get returns a deep copy of the stored group.
func (m *GroupManager) Get(id uint64) (*Group, bool) {
	g, ok := m.groups[id]
	if !ok {
		return nil, false
	}
	return g.DeepCopy(), true
}

// Put stores a deep copy of g, replacing any existing record. It bypasses
// validation and is used only to load persisted state and restore pre-images.
func (m *GroupManager) Put(g *Group) {
	m.groups[g.ID] = g.DeepCopy()
}

// Remove deletes group id. Used only for state restoration.
func (m *GroupManager) Remove(id uint64) {
	delete(m.groups, id)
}

// IDs returns all group ids in ascending order.
func (m *GroupManager) IDs() []uint64 {
	ids := make([]uint64, 0, len(m.groups))
	for id := range m.groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Count returns the number of groups.
func (m *GroupManager) Count() int {
	return len(m.groups)
}
