package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/lumi-core/internal/dispatcher"
	"github.com/nerrad567/lumi-core/internal/infrastructure/database"
	"github.com/nerrad567/lumi-core/internal/ledger"
	"github.com/nerrad567/lumi-core/internal/schedule"
	"github.com/nerrad567/lumi-core/internal/store"
	_ "github.com/nerrad567/lumi-core/migrations" // registers the embedded schema
)

const (
	admin   ledger.Identity = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
	wallet1 ledger.Identity = "ST1SJ3DTE5DN7X54YDH5D64R3BCB6A2AG2ZQ8YPD5"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	d := dispatcher.New(dispatcher.Config{Admin: admin, Policy: schedule.DefaultPolicy()}, store.New(db))
	steps := []struct {
		op     dispatcher.Operation
		caller ledger.Identity
		height ledger.Height
	}{
		{dispatcher.RegisterDevice(1), admin, 1},
		{dispatcher.RegisterDevice(2), wallet1, 1},
		{dispatcher.ToggleLight(1), admin, 2},
		{dispatcher.ToggleLight(1), wallet1, 3},
		{dispatcher.ToggleLight(1), admin, 4},
		{dispatcher.SetBrightness(1, 70), admin, 5},
	}
	for _, s := range steps {
		if _, err := d.Apply(context.Background(), s.op, s.caller, s.height); err != nil {
			t.Fatalf("Apply(%s) error = %v", s.op.Op, err)
		}
	}
	return NewSQLiteRepository(db.DB)
}

func TestList(t *testing.T) {
	repo := setupRepo(t)
	rejected := true
	accepted := false

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantSeqs  []int64
	}{
		{"all, newest first", Filter{}, 6, []int64{6, 5, 4, 3, 2, 1}},
		{"by operation", Filter{Operation: ledger.OpToggleLight}, 3, []int64{5, 4, 3}},
		{"by caller", Filter{Caller: wallet1}, 2, []int64{4, 2}},
		{"rejections only", Filter{Rejected: &rejected}, 2, []int64{4, 2}},
		{"successes only", Filter{Rejected: &accepted}, 4, []int64{6, 5, 3, 1}},
		{"height window", Filter{FromHeight: 2, ToHeight: 4}, 3, []int64{5, 4, 3}},
		{"paged", Filter{Limit: 2, Offset: 1}, 6, []int64{5, 4}},
		{"no match", Filter{Operation: ledger.OpCreateGroup}, 0, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
			if len(res.Entries) != len(tt.wantSeqs) {
				t.Fatalf("got %d entries, want %d", len(res.Entries), len(tt.wantSeqs))
			}
			for i, seq := range tt.wantSeqs {
				if res.Entries[i].Seq != seq {
					t.Errorf("entry %d seq = %d, want %d", i, res.Entries[i].Seq, seq)
				}
			}
		})
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := setupRepo(t)

	res, err := repo.List(context.Background(), Filter{Limit: 10_000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != maxLimit || res.Offset != 0 {
		t.Errorf("Limit/Offset = %d/%d, want %d/0", res.Limit, res.Offset, maxLimit)
	}
}

func TestGet(t *testing.T) {
	repo := setupRepo(t)

	e, err := repo.Get(context.Background(), 2)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.Caller != wallet1 || e.Code != ledger.CodeNotAuthorized || e.Operation.ID != 2 {
		t.Errorf("Get(2) = %+v", e)
	}

	if _, err := repo.Get(context.Background(), 99); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Get(99) error = %v, want ErrEntryNotFound", err)
	}
}
