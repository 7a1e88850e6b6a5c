package device

import (
	"errors"
	"testing"

	"github.com/nerrad567/lumi-core/internal/ledger"
)

const (
	admin   ledger.Identity = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
	wallet1 ledger.Identity = "ST1SJ3DTE5DN7X54YDH5D64R3BCB6A2AG2ZQ8YPD5"
)

func TestRegister_AdminCreatesDefaultDevice(t *testing.T) {
	r := NewRegistry(admin)

	id, err := r.Register(1, admin)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if id != 1 {
		t.Errorf("Register() id = %d, want 1", id)
	}

	status, err := r.Status(1)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.IsOn {
		t.Error("new device IsOn = true, want false")
	}
	if status.Brightness != 0 {
		t.Errorf("new device Brightness = %d, want 0", status.Brightness)
	}
	if status.Owner != admin {
		t.Errorf("Owner = %q, want %q", status.Owner, admin)
	}
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *Registry)
		id       uint64
		caller   ledger.Identity
		wantCode ledger.Code
	}{
		{
			name:     "non-admin caller",
			id:       2,
			caller:   wallet1,
			wantCode: ledger.CodeNotAuthorized,
		},
		{
			name:     "non-admin caller with taken id still not authorized",
			setup:    func(r *Registry) { _, _ = r.Register(2, admin) },
			id:       2,
			caller:   wallet1,
			wantCode: ledger.CodeNotAuthorized,
		},
		{
			name:     "duplicate id",
			setup:    func(r *Registry) { _, _ = r.Register(2, admin) },
			id:       2,
			caller:   admin,
			wantCode: ledger.CodeAlreadyExists,
		},
		{
			name:     "zero id",
			id:       0,
			caller:   admin,
			wantCode: ledger.CodeInvalidID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(admin)
			if tt.setup != nil {
				tt.setup(r)
			}
			before := r.Count()

			_, err := r.Register(tt.id, tt.caller)
			code, ok := ledger.CodeOf(err)
			if !ok || code != tt.wantCode {
				t.Fatalf("Register() error = %v, want code %s", err, tt.wantCode)
			}
			if r.Count() != before {
				t.Errorf("Count() = %d after rejected register, want %d", r.Count(), before)
			}
		})
	}
}

func TestRegister_NonAdminLeavesNoRecord(t *testing.T) {
	r := NewRegistry(admin)

	_, err := r.Register(2, wallet1)
	if !errors.Is(err, ledger.ErrNotAuthorized) {
		t.Fatalf("Register() error = %v, want NOT_AUTHORIZED", err)
	}
	if r.Exists(2) {
		t.Error("device 2 exists after rejected registration")
	}
	if _, err := r.Status(2); !errors.Is(err, ledger.ErrDeviceNotFound) {
		t.Errorf("Status() error = %v, want DEVICE_NOT_FOUND", err)
	}
}

func TestToggleLight(t *testing.T) {
	r := NewRegistry(admin)
	if _, err := r.Register(1, admin); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	on, err := r.ToggleLight(1, admin)
	if err != nil {
		t.Fatalf("ToggleLight() error = %v", err)
	}
	if !on {
		t.Error("ToggleLight() = false, want true")
	}

	status, _ := r.Status(1)
	if !status.IsOn {
		t.Error("Status().IsOn = false after toggle")
	}

	on, err = r.ToggleLight(1, admin)
	if err != nil {
		t.Fatalf("second ToggleLight() error = %v", err)
	}
	if on {
		t.Error("second ToggleLight() = true, want false")
	}
}

func TestToggleLight_Errors(t *testing.T) {
	r := NewRegistry(admin)
	_, _ = r.Register(1, admin)

	if _, err := r.ToggleLight(9, admin); !errors.Is(err, ledger.ErrDeviceNotFound) {
		t.Errorf("ToggleLight(missing) error = %v, want DEVICE_NOT_FOUND", err)
	}
	if _, err := r.ToggleLight(1, wallet1); !errors.Is(err, ledger.ErrNotAuthorized) {
		t.Errorf("ToggleLight(non-owner) error = %v, want NOT_AUTHORIZED", err)
	}

	d, _ := r.Get(1)
	if d.IsOn {
		t.Error("rejected toggle changed IsOn")
	}
}

func TestSetBrightness(t *testing.T) {
	tests := []struct {
		name     string
		id       uint64
		level    uint64
		caller   ledger.Identity
		wantCode ledger.Code
		wantLvl  uint8
	}{
		{"minimum", 1, 0, admin, ledger.CodeOK, 0},
		{"mid range", 1, 55, admin, ledger.CodeOK, 55},
		{"maximum", 1, 100, admin, ledger.CodeOK, 100},
		{"just over", 1, 101, admin, ledger.CodeInvalidRange, 40},
		{"wraps to valid byte", 1, 256 + 50, admin, ledger.CodeInvalidRange, 40},
		{"not owner", 1, 10, wallet1, ledger.CodeNotAuthorized, 40},
		{"missing device", 7, 10, admin, ledger.CodeDeviceNotFound, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(admin)
			_, _ = r.Register(1, admin)
			_, _ = r.SetBrightness(1, 40, admin)

			got, err := r.SetBrightness(tt.id, tt.level, tt.caller)
			code, _ := ledger.CodeOf(err)
			if code != tt.wantCode {
				t.Fatalf("SetBrightness() error = %v, want code %s", err, tt.wantCode)
			}
			if err == nil && got != tt.wantLvl {
				t.Errorf("SetBrightness() = %d, want %d", got, tt.wantLvl)
			}

			d, _ := r.Get(1)
			if d.Brightness != tt.wantLvl {
				t.Errorf("stored Brightness = %d, want %d", d.Brightness, tt.wantLvl)
			}
			if d.IsOn {
				t.Error("SetBrightness changed IsOn")
			}
		})
	}
}

func TestSetPower(t *testing.T) {
	r := NewRegistry(admin)
	_, _ = r.Register(1, admin)

	for _, want := range []bool{true, true, false, false} {
		got, err := r.SetPower(1, want, admin)
		if err != nil {
			t.Fatalf("SetPower(%v) error = %v", want, err)
		}
		if got != want {
			t.Errorf("SetPower(%v) = %v", want, got)
		}
	}

	if _, err := r.SetPower(1, true, wallet1); !errors.Is(err, ledger.ErrNotAuthorized) {
		t.Errorf("SetPower(non-owner) error = %v", err)
	}
}

func TestStatus_ReadIsIdempotent(t *testing.T) {
	r := NewRegistry(admin)
	_, _ = r.Register(3, admin)
	_, _ = r.SetBrightness(3, 70, admin)

	first, err := r.Status(3)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Status(3)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if again != first {
			t.Errorf("Status() = %+v, want %+v", again, first)
		}
	}
}

func TestCanMutate(t *testing.T) {
	r := NewRegistry(admin)
	_, _ = r.Register(1, admin)

	if err := r.CanMutate(ledger.OpToggleLight, 1, admin); err != nil {
		t.Errorf("CanMutate(owner) error = %v", err)
	}
	if err := r.CanMutate(ledger.OpToggleLight, 1, wallet1); !errors.Is(err, ledger.ErrNotAuthorized) {
		t.Errorf("CanMutate(non-owner) error = %v", err)
	}
	if err := r.CanMutate(ledger.OpToggleLight, 2, admin); !errors.Is(err, ledger.ErrDeviceNotFound) {
		t.Errorf("CanMutate(missing) error = %v", err)
	}
}

func TestPutGetRemove(t *testing.T) {
	r := NewRegistry(admin)
	r.Put(Device{ID: 5, Owner: wallet1, IsOn: true, Brightness: 12})

	d, ok := r.Get(5)
	if !ok {
		t.Fatal("Get() ok = false after Put")
	}
	if d.Owner != wallet1 || !d.IsOn || d.Brightness != 12 {
		t.Errorf("Get() = %+v", d)
	}

	d.Brightness = 99
	stored, _ := r.Get(5)
	if stored.Brightness != 12 {
		t.Error("Get() returned an alias of the stored record")
	}

	r.Remove(5)
	if r.Exists(5) {
		t.Error("Exists() = true after Remove")
	}
}

func TestIDs_Sorted(t *testing.T) {
	r := NewRegistry(admin)
	for _, id := range []uint64{9, 3, 7, 1} {
		_, _ = r.Register(id, admin)
	}

	got := r.IDs()
	want := []uint64{1, 3, 7, 9}
	if len(got) != len(want) {
		t.Fatalf("IDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("IDs() = %v, want %v", got, want)
		}
	}
}
