package device

import (
	"errors"
	"testing"

	"github.com/nerrad567/lumi-core/internal/ledger"
)

func TestValidateGroupName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "Kitchen", false},
		{"with punctuation", "Floor #2 (east)", false},
		{"tilde is printable", "~", false},
		{"single space", " ", false},
		{"empty", "", true},
		{"tab", "a\tb", true},
		{"delete byte", "a\x7fb", true},
		{"utf8", "Küche", true},
		{"33 bytes", "abcdefghijklmnopqrstuvwxyz0123456", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGroupName(ledger.OpCreateGroup, tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateGroupName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ledger.ErrInvalidName) {
				t.Errorf("ValidateGroupName(%q) error = %v, want INVALID_NAME", tt.input, err)
			}
		})
	}
}

func TestValidateBrightness(t *testing.T) {
	for _, level := range []uint64{0, 1, 99, 100} {
		if err := ValidateBrightness(ledger.OpSetBrightness, level); err != nil {
			t.Errorf("ValidateBrightness(%d) error = %v", level, err)
		}
	}
	for _, level := range []uint64{101, 255, 356, 1 << 63} {
		if err := ValidateBrightness(ledger.OpSetBrightness, level); !errors.Is(err, ledger.ErrInvalidRange) {
			t.Errorf("ValidateBrightness(%d) error = %v, want INVALID_RANGE", level, err)
		}
	}
}

func TestValidateID(t *testing.T) {
	if err := ValidateID(ledger.OpRegisterDevice, 0); !errors.Is(err, ledger.ErrInvalidID) {
		t.Errorf("ValidateID(0) error = %v, want INVALID_ID", err)
	}
	if err := ValidateID(ledger.OpRegisterDevice, 1); err != nil {
		t.Errorf("ValidateID(1) error = %v", err)
	}
}
