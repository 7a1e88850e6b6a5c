package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nerrad567/lumi-core/internal/dispatcher"
	"github.com/nerrad567/lumi-core/internal/infrastructure/config"
	"github.com/nerrad567/lumi-core/internal/store"
)

// replayPageSize is the number of journal entries read per query.
const replayPageSize = 1000

// runReplay re-executes the journal and compares the replayed state with
// the persisted one.
func runReplay(ctx context.Context, configPath string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	dcfg, err := dispatcherConfig(cfg.Ledger)
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // read-only use

	st := store.New(db)
	var entries []dispatcher.Entry
	var after int64
	for {
		page, err := st.Entries(ctx, after, replayPageSize)
		if err != nil {
			return fmt.Errorf("reading journal: %w", err)
		}
		entries = append(entries, page...)
		if len(page) < replayPageSize {
			break
		}
		after = page[len(page)-1].Seq
	}

	replayed, err := dispatcher.Replay(ctx, dcfg, entries)
	var div *dispatcher.Divergence
	if errors.As(err, &div) {
		fmt.Fprintf(out, "DIVERGED at seq %d: %s\n  recorded: %s\n  replayed: %s\n", div.Seq, div.Field, div.Want, div.Got)
		return err
	}
	if err != nil {
		return err
	}

	snap, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading ledger state: %w", err)
	}
	persisted := dispatcher.New(dcfg, nil)
	persisted.Restore(snap)

	if persisted.StateRoot() != replayed.StateRoot() {
		fmt.Fprintf(out, "DIVERGED: persisted state root %s, replayed %s\n", persisted.StateRoot(), replayed.StateRoot())
		return fmt.Errorf("persisted state does not match the journal")
	}

	devices, groups, schedules := replayed.Counts()
	fmt.Fprintf(out, "replayed %d entries to height %d\n", len(entries), replayed.Height())
	fmt.Fprintf(out, "devices %d, groups %d, schedules %d\n", devices, groups, schedules)
	fmt.Fprintf(out, "state root %s\n", replayed.StateRoot())
	return nil
}
