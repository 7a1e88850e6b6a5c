// Package device provides the Device Registry and Group Manager for lumi.
//
// The Registry is the catalogue of controllable lights: who owns each one,
// whether it is on, and its brightness. The Group Manager keeps named groups
// of registered devices and depends on the Registry only for existence
// checks, never for ownership.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                         device package                        │
//	│                                                               │
//	│  ┌──────────────────┐   Exists()   ┌──────────────────────┐   │
//	│  │     Registry     │◀─────────────│     GroupManager     │   │
//	│  │  (registry.go)   │              │  (group_manager.go)  │   │
//	│  │                  │              │                      │   │
//	│  │ • register       │              │ • create group       │   │
//	│  │ • toggle / power │              │ • add / remove member│   │
//	│  │ • brightness     │              │ • list members       │   │
//	│  └──────────────────┘              └──────────────────────┘   │
//	│           │                                  │                 │
//	│           └──────────┬───────────────────────┘                 │
//	│                      ▼                                         │
//	│            ┌──────────────────┐                                │
//	│            │    Validation    │                                │
//	│            │ (validation.go)  │                                │
//	│            └──────────────────┘                                │
//	└──────────────────────────────────────────────────────────────┘
//
// # Authorization
//
// Registration requires the configured administrator. Every later mutation
// of a device requires that device's owner, and every membership edit
// requires the group's owner. Both tiers go through ledger.Authorize so the
// failure is always code 100.
//
// # Rejection Safety
//
// Every mutating method validates existence, authorization and ranges before
// it writes anything. A method that returns an error has not changed state.
//
// # Thread Safety
//
// Registry and GroupManager are not safe for concurrent use. The dispatcher
// serialises all access to them.
package device
