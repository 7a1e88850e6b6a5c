package dispatcher

import (
	"context"
	"errors"
	"testing"

	"pgregory.net/rapid"

	"github.com/nerrad567/lumi-core/internal/ledger"
	"github.com/nerrad567/lumi-core/internal/schedule"
)

// drawOperation draws an operation over a small id space so that random
// streams hit duplicates, missing records and authorization failures.
func drawOperation(t *rapid.T) Operation {
	id := rapid.Uint64Range(0, 4).Draw(t, "id")
	other := rapid.Uint64Range(0, 4).Draw(t, "other")

	switch rapid.IntRange(0, 8).Draw(t, "kind") {
	case 0:
		return RegisterDevice(id)
	case 1:
		return ToggleLight(id)
	case 2:
		return SetBrightness(id, rapid.Uint64Range(0, 120).Draw(t, "level"))
	case 3:
		return SetPower(id, rapid.Bool().Draw(t, "on"))
	case 4:
		return CreateGroup(id, rapid.SampledFrom([]string{"", "Hall", "Kitchen"}).Draw(t, "name"))
	case 5:
		return AddToGroup(id, other)
	case 6:
		return RemoveFromGroup(id, other)
	case 7:
		return CreateSchedule(id, other,
			rapid.SampledFrom([]string{"device", "group", "room"}).Draw(t, "target_type"),
			rapid.SampledFrom([]string{"toggle", "set-brightness", "turn-on", "turn-off", "dim"}).Draw(t, "action"),
			rapid.Uint64Range(0, 120).Draw(t, "value"),
			ledger.Height(rapid.Uint64Range(0, 30).Draw(t, "trigger")),
		)
	default:
		return ExecuteSchedule(id)
	}
}

type step struct {
	op     Operation
	caller ledger.Identity
	height ledger.Height
}

func drawSteps(t *rapid.T) []step {
	n := rapid.IntRange(1, 60).Draw(t, "steps")
	steps := make([]step, n)
	var height ledger.Height
	for i := range steps {
		height += ledger.Height(rapid.Uint64Range(0, 3).Draw(t, "advance"))
		steps[i] = step{
			op:     drawOperation(t),
			caller: rapid.SampledFrom([]ledger.Identity{admin, admin, wallet1}).Draw(t, "caller"),
			height: height,
		}
	}
	return steps
}

func TestProperty_IndependentExecutorsAgree(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		policy := schedule.Policy{
			Trigger: rapid.SampledFrom([]schedule.TriggerPolicy{schedule.TriggerFuture, schedule.TriggerImmediate}).Draw(t, "trigger_policy"),
			Group:   rapid.SampledFrom([]schedule.GroupPolicy{schedule.GroupBestEffort, schedule.GroupAllOrNothing}).Draw(t, "group_policy"),
		}
		cfg := Config{Admin: admin, Policy: policy}
		a := New(cfg, nil)
		b := New(cfg, nil)

		ctx := context.Background()
		for i, s := range drawSteps(t) {
			ra, errA := a.Apply(ctx, s.op, s.caller, s.height)
			rb, errB := b.Apply(ctx, s.op, s.caller, s.height)
			if errA != nil || errB != nil {
				t.Fatalf("step %d infrastructure errors: %v, %v", i, errA, errB)
			}
			if ra.Code() != rb.Code() {
				t.Fatalf("step %d %s codes differ: %s vs %s", i, s.op.Op, ra.Code(), rb.Code())
			}
			va, _ := ra.EncodeValue()
			vb, _ := rb.EncodeValue()
			if string(va) != string(vb) {
				t.Fatalf("step %d %s values differ: %s vs %s", i, s.op.Op, va, vb)
			}
			if a.StateRoot() != b.StateRoot() {
				t.Fatalf("step %d state roots differ", i)
			}
		}
	})
}

func TestProperty_JournalReplays(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := &memStore{}
		cfg := Config{Admin: admin, Policy: schedule.DefaultPolicy()}
		live := New(cfg, store)

		for _, s := range drawSteps(t) {
			if _, err := live.Apply(context.Background(), s.op, s.caller, s.height); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
		}

		replayed, err := Replay(context.Background(), cfg, store.entries())
		if err != nil {
			t.Fatalf("Replay() error = %v", err)
		}
		if replayed.StateRoot() != live.StateRoot() {
			t.Fatal("replayed state root differs from live state root")
		}
	})
}

func TestProperty_ExecuteAtMostOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := New(Config{Admin: admin, Policy: schedule.DefaultPolicy()}, nil)
		ctx := context.Background()
		_, _ = d.Apply(ctx, RegisterDevice(1), admin, 1)
		trigger := ledger.Height(rapid.Uint64Range(2, 50).Draw(t, "trigger"))
		_, _ = d.Apply(ctx, CreateSchedule(1, 1, "device", "toggle", 0, trigger), admin, 1)

		heights := rapid.SliceOfN(rapid.Uint64Range(0, 100), 1, 20).Draw(t, "heights")
		executed := 0
		for _, h := range heights {
			res, _ := d.Apply(ctx, ExecuteSchedule(1), wallet1, ledger.Height(h))
			switch {
			case res.OK():
				executed++
				if ledger.Height(h) < trigger {
					t.Fatalf("executed at %d before trigger %d", h, trigger)
				}
			case executed > 0 && res.Code() != ledger.CodeAlreadyExecuted:
				t.Fatalf("after execution code = %s, want ALREADY_EXECUTED", res.Code())
			case executed == 0 && res.Code() != ledger.CodeNotDue:
				t.Fatalf("before execution code = %s, want NOT_DUE", res.Code())
			}
		}
		if executed > 1 {
			t.Fatalf("schedule executed %d times", executed)
		}
	})
}

func TestReplay_DetectsDivergence(t *testing.T) {
	store := &memStore{}
	cfg := Config{Admin: admin, Policy: schedule.DefaultPolicy()}
	live := New(cfg, store)
	ctx := context.Background()
	for _, op := range []Operation{RegisterDevice(1), ToggleLight(1), SetBrightness(1, 20)} {
		if _, err := live.Apply(ctx, op, admin, 1); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}

	entries := store.entries()
	entries[1].StateRoot = "tampered"

	_, err := Replay(ctx, cfg, entries)
	var div *Divergence
	if !errors.As(err, &div) {
		t.Fatalf("Replay() error = %v, want *Divergence", err)
	}
	if div.Seq != 2 || div.Field != "state_root" {
		t.Errorf("divergence = %+v, want seq 2 state_root", div)
	}

	entries = store.entries()
	entries[2].Code = ledger.CodeInvalidRange
	_, err = Replay(ctx, cfg, entries)
	if !errors.As(err, &div) || div.Field != "code" {
		t.Errorf("Replay() error = %v, want code divergence", err)
	}
}
