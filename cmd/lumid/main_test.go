package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/lumi-core/internal/dispatcher"
	"github.com/nerrad567/lumi-core/internal/infrastructure/config"
	"github.com/nerrad567/lumi-core/internal/ledger"
	"github.com/nerrad567/lumi-core/internal/schedule"
	"github.com/nerrad567/lumi-core/internal/store"
)

const admin = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"

// writeConfig writes a config with the chain, API and InfluxDB disabled so
// no external service is needed.
func writeConfig(t *testing.T, dbPath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lumi.yaml")
	content := `
ledger:
  administrator: "` + admin + `"
  trigger_policy: future
  group_execution: best-effort
chain:
  enabled: false
database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5
api:
  enabled: false
  port: 8080
influxdb:
  enabled: false
logging:
  level: error
  format: text
  output: stderr
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// seedLedger journals a few operations into the database at dbPath.
func seedLedger(t *testing.T, dbPath string) string {
	t.Helper()
	db, err := openDatabase(context.Background(), config.DatabaseConfig{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("openDatabase() error = %v", err)
	}
	defer db.Close()

	d := dispatcher.New(dispatcher.Config{Admin: admin, Policy: schedule.DefaultPolicy()}, store.New(db))
	ops := []struct {
		op     dispatcher.Operation
		height ledger.Height
	}{
		{dispatcher.RegisterDevice(1), 1},
		{dispatcher.SetBrightness(1, 30), 2},
		{dispatcher.CreateGroup(5, "hall"), 2},
		{dispatcher.AddToGroup(5, 1), 3},
		{dispatcher.CreateSchedule(9, 5, "group", "turn-on", 0, 6), 3},
		{dispatcher.ExecuteSchedule(9), 4},
		{dispatcher.ExecuteSchedule(9), 6},
	}
	for _, o := range ops {
		if _, err := d.Apply(context.Background(), o.op, admin, o.height); err != nil {
			t.Fatalf("Apply(%s) error = %v", o.op.Op, err)
		}
	}
	return d.StateRoot()
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "lumid dev (commit unknown") {
		t.Errorf("version output = %q", out)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(configEnvVar, "/etc/lumi/env.yaml")

	tests := []struct {
		flag string
		want string
	}{
		{"", "/etc/lumi/env.yaml"},
		{"./flag.yaml", "./flag.yaml"},
	}
	for _, tt := range tests {
		if got := getConfigPath(tt.flag); got != tt.want {
			t.Errorf("getConfigPath(%q) = %q, want %q", tt.flag, got, tt.want)
		}
	}
}

func TestDispatcherConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LedgerConfig
		want    schedule.Policy
		wantErr bool
	}{
		{"defaults", config.LedgerConfig{Administrator: admin}, schedule.DefaultPolicy(), false},
		{"immediate all-or-nothing", config.LedgerConfig{Administrator: admin, TriggerPolicy: "immediate", GroupExecution: "all-or-nothing"},
			schedule.Policy{Trigger: schedule.TriggerImmediate, Group: schedule.GroupAllOrNothing}, false},
		{"bad trigger", config.LedgerConfig{TriggerPolicy: "eventually"}, schedule.Policy{}, true},
		{"bad group", config.LedgerConfig{GroupExecution: "most"}, schedule.Policy{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dispatcherConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (got.Policy != tt.want || got.Admin != admin) {
				t.Errorf("config = %+v", got)
			}
		})
	}
}

func TestServe_InvalidConfig(t *testing.T) {
	if _, err := execute(t, "serve", "--config", "/nonexistent/lumi.yaml"); err == nil {
		t.Fatal("serve with a missing config file succeeded")
	}
}

func TestServe_ReadsOnlyUntilCancelled(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "lumi.db")
	root := seedLedger(t, dbPath)
	cfgPath := writeConfig(t, dbPath)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfgPath) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not return after cancel")
	}

	// Serving must not change the ledger.
	out, err := execute(t, "replay", "--config", cfgPath)
	if err != nil {
		t.Fatalf("replay error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "state root "+root) {
		t.Errorf("replay output = %s, want state root %s", out, root)
	}
}

func TestReplay(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "lumi.db")
	root := seedLedger(t, dbPath)
	t.Setenv(configEnvVar, writeConfig(t, dbPath))

	out, err := execute(t, "replay")
	if err != nil {
		t.Fatalf("replay error = %v\n%s", err, out)
	}
	for _, want := range []string{
		"replayed 7 entries to height 6",
		"devices 1, groups 1, schedules 1",
		"state root " + root,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("replay output missing %q:\n%s", want, out)
		}
	}
}

func TestReplay_DetectsTamperedState(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "lumi.db")
	seedLedger(t, dbPath)
	cfgPath := writeConfig(t, dbPath)

	db, err := openDatabase(context.Background(), config.DatabaseConfig{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("openDatabase() error = %v", err)
	}
	if _, err := db.ExecContext(context.Background(), "UPDATE devices SET brightness = 99 WHERE id = 1"); err != nil {
		t.Fatalf("tampering: %v", err)
	}
	db.Close()

	out, err := execute(t, "replay", "--config", cfgPath)
	if err == nil {
		t.Fatalf("replay of tampered state succeeded:\n%s", out)
	}
	if !strings.Contains(out, "DIVERGED: persisted state root") {
		t.Errorf("replay output = %s", out)
	}
}

func TestReplay_DetectsTamperedJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "lumi.db")
	seedLedger(t, dbPath)
	cfgPath := writeConfig(t, dbPath)

	db, err := openDatabase(context.Background(), config.DatabaseConfig{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("openDatabase() error = %v", err)
	}
	if _, err := db.ExecContext(context.Background(), "UPDATE journal SET result_code = 113 WHERE seq = 7"); err != nil {
		t.Fatalf("tampering: %v", err)
	}
	db.Close()

	out, err := execute(t, "replay", "--config", cfgPath)
	var div *dispatcher.Divergence
	if !errors.As(err, &div) {
		t.Fatalf("replay error = %v, want *Divergence\n%s", err, out)
	}
	if div.Seq != 7 || div.Field != "code" || div.Want != "NOT_DUE" || div.Got != "OK" {
		t.Errorf("divergence = %+v", div)
	}
	if !strings.Contains(out, "DIVERGED at seq 7: code") {
		t.Errorf("replay output = %s", out)
	}
}
