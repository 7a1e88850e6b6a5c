package device

import (
	"fmt"

	"github.com/nerrad567/lumi-core/internal/ledger"
)

// Validation constants.
const (
	// MaxGroupNameLength is the maximum group name length in bytes.
	MaxGroupNameLength = 32

	// Printable ASCII bounds for group names.
	minNameByte = 0x20
	maxNameByte = 0x7e
)

// ValidateID rejects the zero id. Ids are caller-assigned positive integers.
func ValidateID(op string, id uint64) error {
	if id == 0 {
		return ledger.Reject(op, ledger.CodeInvalidID, "id must be positive")
	}
	return nil
}

// ValidateBrightness checks that level is within [0, MaxBrightness].
// The level is taken as uint64 so oversized wire values are rejected rather
// than truncated.
func ValidateBrightness(op string, level uint64) error {
	if level > MaxBrightness {
		return ledger.Reject(op, ledger.CodeInvalidRange,
			fmt.Sprintf("level %d outside 0-%d", level, MaxBrightness))
	}
	return nil
}

// ValidateGroupName checks that name is 1 to MaxGroupNameLength printable
// ASCII bytes.
func ValidateGroupName(op, name string) error {
	if name == "" {
		return ledger.Reject(op, ledger.CodeInvalidName, "name is required")
	}
	if len(name) > MaxGroupNameLength {
		return ledger.Reject(op, ledger.CodeInvalidName,
			fmt.Sprintf("name exceeds %d bytes", MaxGroupNameLength))
	}
	for i := 0; i < len(name); i++ {
		if name[i] < minNameByte || name[i] > maxNameByte {
			return ledger.Reject(op, ledger.CodeInvalidName, "name must be printable ASCII")
		}
	}
	return nil
}
