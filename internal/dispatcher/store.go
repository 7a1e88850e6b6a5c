package dispatcher

import (
	"context"

	"github.com/nerrad567/lumi-core/internal/device"
	"github.com/nerrad567/lumi-core/internal/ledger"
	"github.com/nerrad567/lumi-core/internal/schedule"
)

// Changeset is everything one operation persists: its journal entry and the
// post-images of the records it changed. A rejected operation carries only
// the entry.
type Changeset struct {
	Entry     *Entry
	Devices   []device.Device
	Groups    []*device.Group
	Schedules []*schedule.Schedule

	// Cursor is the chain position after this operation. It is nil when
	// the operation was not applied from a block.
	Cursor *Cursor
}

// TxRef locates a transaction in a block. End is one past the index of the
// block's last journaled transaction; reads after it need no persistence.
type TxRef struct {
	Height ledger.Height
	Index  int
	End    int
}

// Cursor records how far the block at Height has been committed:
// transactions before Next are durable.
type Cursor struct {
	Height ledger.Height `json:"height"`
	Next   int           `json:"next"`
	End    int           `json:"end"`
}

// Complete reports whether every journaled transaction of the block is
// committed.
func (c Cursor) Complete() bool {
	return c.Next >= c.End
}

// Snapshot is the full persisted ledger state.
type Snapshot struct {
	Devices   []device.Device
	Groups    []*device.Group
	Schedules []*schedule.Schedule
	Height    ledger.Height // last applied height
	Cursor    Cursor        // position in the last block applied from the chain
}

// Store persists changesets. Commit must be atomic: either the entry and all
// records become durable or none do. On success Commit sets Entry.Seq.
type Store interface {
	Commit(ctx context.Context, cs *Changeset) error
}

// Observer receives a receipt after every committed operation. Observers are
// called synchronously in commit order, outside the state lock but under the
// notification lock, and must not call back into the Dispatcher.
type Observer interface {
	OnReceipt(ctx context.Context, r Receipt)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, r Receipt)

// OnReceipt calls f(ctx, r).
func (f ObserverFunc) OnReceipt(ctx context.Context, r Receipt) {
	f(ctx, r)
}
