package dispatcher

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/nerrad567/lumi-core/internal/device"
	"github.com/nerrad567/lumi-core/internal/schedule"
)

// canonicalState is the serialisation hashed into the state root. Every
// table is listed in ascending id order and groups use their sorted view, so
// two executors with equal state produce byte-identical encodings.
type canonicalState struct {
	Devices   []device.Device     `json:"devices"`
	Groups    []device.GroupView  `json:"groups"`
	Schedules []schedule.Schedule `json:"schedules"`
}

// stateRoot hashes the full ledger state. Callers must hold at least a read
// lock.
func (d *Dispatcher) stateRoot() string {
	state := canonicalState{
		Devices:   make([]device.Device, 0, d.devices.Count()),
		Groups:    make([]device.GroupView, 0, d.groups.Count()),
		Schedules: make([]schedule.Schedule, 0, d.schedules.Count()),
	}
	for _, id := range d.devices.IDs() {
		dev, _ := d.devices.Get(id)
		state.Devices = append(state.Devices, dev)
	}
	for _, id := range d.groups.IDs() {
		view, _ := d.groups.View(id)
		state.Groups = append(state.Groups, view)
	}
	for _, id := range d.schedules.IDs() {
		s, _ := d.schedules.Get(id)
		state.Schedules = append(state.Schedules, s)
	}

	// Marshalling plain structs and slices cannot fail.
	data, _ := json.Marshal(state)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
