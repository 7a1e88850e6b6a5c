package chain

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/lumi-core/internal/dispatcher"
	"github.com/nerrad567/lumi-core/internal/ledger"
)

const keeperID ledger.Identity = "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG"

// staticDue reports the same due ids at every height.
type staticDue struct{ ids []uint64 }

func (s *staticDue) Due(ledger.Height) []uint64 { return s.ids }

func newTestKeeper(due DueSource, pub Publisher, retry ledger.Height) *Keeper {
	k := NewKeeper(KeeperOptions{Ledger: due, Publisher: pub, Identity: keeperID, RetryAfter: retry})
	k.now = func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }
	n := 0
	k.newID = func() string {
		n++
		return "msg-" + string(rune('0'+n))
	}
	return k
}

func TestKeeper_OnBlock(t *testing.T) {
	due := &staticDue{ids: []uint64{3, 9}}
	client := newFakeMQTT()
	k := newTestKeeper(due, client, 5)
	ctx := context.Background()

	tests := []struct {
		height ledger.Height
		due    []uint64
		want   []uint64
	}{
		{height: 10, due: []uint64{3, 9}, want: []uint64{3, 9}},
		{height: 11, due: []uint64{3, 9}, want: nil},
		{height: 14, due: []uint64{3, 9}, want: nil},
		{height: 15, due: []uint64{3, 9}, want: []uint64{3, 9}},
		{height: 16, due: []uint64{9}, want: nil},
		{height: 17, due: []uint64{3, 9}, want: []uint64{3}},
	}
	for _, tt := range tests {
		due.ids = tt.due
		got := k.OnBlock(ctx, tt.height)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("OnBlock(%d) (-want +got):\n%s", tt.height, diff)
		}
	}
	if k.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", k.Pending())
	}
	if n := len(client.messages("lumi/chain/submit")); n != 5 {
		t.Errorf("submissions = %d, want 5", n)
	}
}

func TestKeeper_SubmitRequestShape(t *testing.T) {
	client := newFakeMQTT()
	k := newTestKeeper(&staticDue{ids: []uint64{4}}, client, 0)

	k.OnBlock(context.Background(), 12)

	msgs := client.messages("lumi/chain/submit")
	if len(msgs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(msgs))
	}
	if msgs[0].retained {
		t.Error("submission should not be retained")
	}

	var got map[string]any
	if err := json.Unmarshal(msgs[0].payload, &got); err != nil {
		t.Fatalf("decoding submission: %v", err)
	}
	want := map[string]any{
		"message_id":      "msg-1",
		"caller":          string(keeperID),
		"operation":       map[string]any{"op": "execute-schedule", "id": float64(4)},
		"observed_height": float64(12),
		"submitted_at":    "2026-10-16T09:00:00Z",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("submission (-want +got):\n%s", diff)
	}
}

func TestKeeper_PublishFailureRetriesNextBlock(t *testing.T) {
	client := newFakeMQTT()
	client.pubErr = errors.New("broker unavailable")
	k := newTestKeeper(&staticDue{ids: []uint64{1}}, client, 10)
	ctx := context.Background()

	if got := k.OnBlock(ctx, 5); got != nil {
		t.Errorf("OnBlock() with failing publisher = %v, want nil", got)
	}
	if k.Pending() != 0 {
		t.Error("failed submission recorded as pending")
	}

	client.mu.Lock()
	client.pubErr = nil
	client.mu.Unlock()

	if diff := cmp.Diff([]uint64{1}, k.OnBlock(ctx, 6)); diff != "" {
		t.Errorf("OnBlock() after recovery (-want +got):\n%s", diff)
	}
}

func TestKeeper_CancelledContext(t *testing.T) {
	client := newFakeMQTT()
	k := newTestKeeper(&staticDue{ids: []uint64{1, 2}}, client, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := k.OnBlock(ctx, 1); got != nil {
		t.Errorf("OnBlock() = %v, want nil", got)
	}
}

// TestKeeper_SubmissionExecutesThroughChain follows a schedule from
// creation to execution: the keeper submits, the bridge includes the
// submission in a later block, and the follower applies it.
func TestKeeper_SubmissionExecutesThroughChain(t *testing.T) {
	l := newLedger()
	client := newFakeMQTT()
	k := newTestKeeper(l, client, 0)
	f := NewFollower(FollowerOptions{Ledger: l, MQTT: client, Keeper: k})
	ctx := context.Background()

	apply := func(b []byte) {
		t.Helper()
		if err := f.HandleBlock(ctx, b); err != nil {
			t.Fatalf("HandleBlock() error = %v", err)
		}
	}

	apply(blockJSON(t, 1,
		tx(admin, dispatcher.RegisterDevice(1)),
		tx(admin, dispatcher.CreateSchedule(1, 1, "device", "turn-on", 0, 3)),
	))
	apply(blockJSON(t, 2))
	if k.Pending() != 0 {
		t.Fatal("schedule submitted before its trigger height")
	}

	apply(blockJSON(t, 3))
	subs := client.messages("lumi/chain/submit")
	if len(subs) != 1 || k.Pending() != 1 {
		t.Fatalf("submissions = %d, pending = %d, want 1/1", len(subs), k.Pending())
	}

	var req SubmitRequest
	if err := json.Unmarshal(subs[0].payload, &req); err != nil {
		t.Fatalf("decoding submission: %v", err)
	}
	apply(blockJSON(t, 4, req.Transaction))

	if !deviceOn(t, l, 1) {
		t.Error("scheduled turn-on did not run")
	}
	if k.Pending() != 0 {
		t.Error("executed schedule still pending")
	}
	r := decodeReceipt(t, client.messages("lumi/receipts/4")[0])
	if r.Receipts[0].Code != ledger.CodeOK || r.Receipts[0].Caller != keeperID {
		t.Errorf("execution receipt = %+v", r.Receipts[0])
	}
}
