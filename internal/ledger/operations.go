package ledger

// Operation names. They appear in journal entries, block payloads, receipts
// and error messages, and are therefore part of the wire contract.
const (
	OpRegisterDevice  = "register-device"
	OpToggleLight     = "toggle-light"
	OpSetBrightness   = "set-brightness"
	OpSetPower        = "set-power"
	OpGetDeviceStatus = "get-device-status"

	OpCreateGroup     = "create-group"
	OpAddToGroup      = "add-to-group"
	OpRemoveFromGroup = "remove-from-group"
	OpListMembers     = "list-members"
	OpGetGroup        = "get-group"

	OpCreateSchedule  = "create-schedule"
	OpExecuteSchedule = "execute-schedule"
	OpGetSchedule     = "get-schedule"
)
