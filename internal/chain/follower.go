package chain

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/lumi-core/internal/dispatcher"
	"github.com/nerrad567/lumi-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/lumi-core/internal/ledger"
)

// defaultQueueSize bounds the blocks waiting for the apply loop. When it is
// full the MQTT handler blocks, which applies backpressure to the broker.
const defaultQueueSize = 64

// defaultRetryDelay is how long the apply loop waits before retrying a
// block that failed on an infrastructure error.
const defaultRetryDelay = time.Second

// Ledger is the part of the dispatcher the follower and keeper use.
type Ledger interface {
	ApplyAt(ctx context.Context, op dispatcher.Operation, caller ledger.Identity, ref dispatcher.TxRef) (dispatcher.Result, error)
	Height() ledger.Height
	Cursor() dispatcher.Cursor
	StateRoot() string
	Due(height ledger.Height) []uint64
}

// MQTTClient is the part of *mqtt.Client the package uses.
type MQTTClient interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	PublishJSON(topic string, v any, retained bool) error
}

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// FollowerOptions configures a Follower.
type FollowerOptions struct {
	Ledger Ledger
	MQTT   MQTTClient

	// Keeper, if set, is told about every applied block.
	Keeper *Keeper

	QoS       byte
	QueueSize int

	// RetryDelay is the wait before a failed block is retried.
	RetryDelay time.Duration

	Logger Logger
}

// Follower applies blocks from the chain topic to the ledger.
//
// A block that fails part way is kept in memory and finished before any
// higher block is applied. Higher blocks that arrive meanwhile are held,
// up to QueueSize of them, and applied in height order once it completes.
//
// Thread Safety: HandleBlock may be called from any goroutine; blocks are
// applied one at a time in arrival order.
type Follower struct {
	ledger     Ledger
	mqtt       MQTTClient
	keeper     *Keeper
	qos        byte
	retryDelay time.Duration
	maxHeld    int
	logger     Logger

	queue chan []byte
	done  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex // guards the fields below; held while a block is applied
	pos     dispatcher.Cursor
	partial *Block                  // unfinished block at pos.Height, if delivered
	held    map[ledger.Height]Block // blocks above an unfinished one
	started bool

	stopOnce sync.Once
}

// NewFollower creates a follower positioned at the ledger's persisted
// cursor. A restarted follower skips blocks already applied and resumes a
// partially applied block at its first uncommitted transaction.
func NewFollower(opts FollowerOptions) *Follower {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Follower{
		ledger:     opts.Ledger,
		mqtt:       opts.MQTT,
		keeper:     opts.Keeper,
		qos:        opts.QoS,
		retryDelay: delay,
		maxHeld:    size,
		logger:     logger,
		queue:      make(chan []byte, size),
		done:       make(chan struct{}),
		pos:        startCursor(opts.Ledger),
		held:       make(map[ledger.Height]Block),
	}
}

// startCursor trusts the ledger's block cursor only when it belongs to the
// last applied height; otherwise that height is treated as complete.
func startCursor(l Ledger) dispatcher.Cursor {
	h := l.Height()
	if c := l.Cursor(); c.Height == h && h > 0 {
		return c
	}
	return dispatcher.Cursor{Height: h}
}

// Start subscribes to the block topic and runs the apply loop until ctx
// is cancelled or Stop is called.
func (f *Follower) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return ErrAlreadyStarted
	}
	f.started = true
	f.mu.Unlock()

	f.wg.Add(1)
	go f.run(ctx)

	topic := mqtt.Topics{}.ChainBlocks()
	if err := f.mqtt.Subscribe(topic, f.qos, f.enqueue); err != nil {
		f.Stop()
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	f.logger.Info("chain follower started", "topic", topic, "height", f.Position())
	return nil
}

// Stop unsubscribes and waits for the block in progress to finish.
func (f *Follower) Stop() {
	f.stopOnce.Do(func() {
		if err := f.mqtt.Unsubscribe(mqtt.Topics{}.ChainBlocks()); err != nil {
			f.logger.Debug("unsubscribe on stop failed", "error", err)
		}
		close(f.done)
		f.wg.Wait()
		f.logger.Info("chain follower stopped", "height", f.Position())
	})
}

// Position returns the height of the last block the follower has seen.
func (f *Follower) Position() ledger.Height {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos.Height
}

// Pending reports whether a partially applied block is waiting to be
// finished.
func (f *Follower) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.pos.Complete()
}

// enqueue is the MQTT handler. It copies the payload because paho may
// reuse the buffer.
func (f *Follower) enqueue(_ string, payload []byte) error {
	buf := append([]byte(nil), payload...)
	select {
	case f.queue <- buf:
		return nil
	case <-f.done:
		return ErrStopped
	}
}

func (f *Follower) run(ctx context.Context) {
	defer f.wg.Done()
	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case payload := <-f.queue:
			retry = f.afterAttempt(f.HandleBlock(ctx, payload))
		case <-retry:
			retry = f.afterAttempt(f.Resume(ctx))
		}
	}
}

// afterAttempt logs err and arms a retry while an unfinished block is in
// memory.
func (f *Follower) afterAttempt(err error) <-chan time.Time {
	if err != nil {
		f.logger.Error("block not applied", "error", err)
	}
	f.mu.Lock()
	waiting := f.partial != nil
	f.mu.Unlock()
	if !waiting {
		return nil
	}
	return time.After(f.retryDelay)
}

// HandleBlock decodes and applies one block synchronously. Duplicate
// blocks return nil without touching the ledger. A block above an
// unfinished one is held; ErrBlockIncomplete is returned if the unfinished
// block could not be completed first.
func (f *Follower) HandleBlock(ctx context.Context, payload []byte) error {
	block, err := DecodeBlock(payload)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if block.Height > f.pos.Height && !f.pos.Complete() {
		if err := f.resumeLocked(ctx); err != nil {
			return f.hold(block, err)
		}
		if !f.pos.Complete() {
			return f.hold(block, nil)
		}
	}
	if err := f.applyLocked(ctx, block); err != nil {
		return err
	}
	return f.drainLocked(ctx)
}

// Resume retries the unfinished block, if it is in memory, then applies
// any blocks held behind it.
func (f *Follower) Resume(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.resumeLocked(ctx); err != nil {
		return err
	}
	return f.drainLocked(ctx)
}

func (f *Follower) resumeLocked(ctx context.Context) error {
	if f.partial == nil {
		return nil
	}
	return f.applyLocked(ctx, *f.partial)
}

// hold parks b until the block at the cursor completes. cause is the
// error that kept it from completing, if any.
func (f *Follower) hold(b Block, cause error) error {
	if _, ok := f.held[b.Height]; !ok && len(f.held) >= f.maxHeld {
		return fmt.Errorf("%w: block %d incomplete, dropping block %d", ErrBlockIncomplete, f.pos.Height, b.Height)
	}
	f.held[b.Height] = b
	f.logger.Warn("block held until the unfinished block completes",
		"height", b.Height,
		"unfinished", f.pos.Height,
		"next_tx", f.pos.Next,
		"held", len(f.held))
	if cause != nil {
		return fmt.Errorf("%w: block %d: %w", ErrBlockIncomplete, f.pos.Height, cause)
	}
	return fmt.Errorf("%w: block %d awaits redelivery from transaction %d", ErrBlockIncomplete, f.pos.Height, f.pos.Next)
}

// drainLocked applies held blocks in height order while the cursor is on a
// complete block.
func (f *Follower) drainLocked(ctx context.Context) error {
	heights := make([]ledger.Height, 0, len(f.held))
	for h := range f.held {
		heights = append(heights, h)
	}
	slices.Sort(heights)
	for _, h := range heights {
		if !f.pos.Complete() {
			return nil
		}
		b := f.held[h]
		delete(f.held, h)
		if err := f.applyLocked(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// applyLocked applies the transactions of b not yet applied. On an
// infrastructure error b is kept as the unfinished block. Must be called
// with f.mu held.
func (f *Follower) applyLocked(ctx context.Context, b Block) error {
	start, ok := f.startIndex(b)
	if !ok {
		f.logger.Debug("duplicate block skipped", "height", b.Height, "position", f.pos.Height)
		return nil
	}
	end := journaledEnd(b)
	f.pos = dispatcher.Cursor{Height: b.Height, Next: start, End: end}
	f.partial = &b

	receipt := BlockReceipt{Height: b.Height, Receipts: make([]TxReceipt, 0, len(b.Transactions))}
	for i := start; i < len(b.Transactions); i++ {
		tx := b.Transactions[i]
		res, err := f.ledger.ApplyAt(ctx, tx.Operation, tx.Caller, dispatcher.TxRef{Height: b.Height, Index: i, End: end})
		if err != nil {
			return fmt.Errorf("block %d transaction %d (%s): %w", b.Height, i, tx.Operation.Op, err)
		}
		f.pos.Next = i + 1
		receipt.Receipts = append(receipt.Receipts, txReceipt(i, tx, res))
	}
	f.pos.Next = max(f.pos.Next, end)
	f.partial = nil
	receipt.StateRoot = f.ledger.StateRoot()

	f.logger.Info("block applied",
		"height", b.Height,
		"transactions", len(b.Transactions),
		"resumed_at", start,
		"state_root", receipt.StateRoot)

	if err := f.mqtt.PublishJSON(mqtt.Topics{}.Receipt(b.Height), receipt, false); err != nil {
		f.logger.Warn("publishing block receipt failed", "height", b.Height, "error", err)
	}
	if f.keeper != nil {
		f.keeper.OnBlock(ctx, b.Height)
	}
	return nil
}

// startIndex returns the first transaction of b to apply, or false if b
// has already been applied in full. Must be called with f.mu held.
func (f *Follower) startIndex(b Block) (int, bool) {
	switch {
	case b.Height < f.pos.Height:
		return 0, false
	case b.Height == f.pos.Height && f.pos.Complete():
		return 0, false
	case b.Height == f.pos.Height:
		return f.pos.Next, true
	default:
		return 0, true
	}
}

// journaledEnd returns one past the index of the last transaction of b the
// ledger journals. Trailing reads leave nothing to resume.
func journaledEnd(b Block) int {
	for i := len(b.Transactions) - 1; i >= 0; i-- {
		if !b.Transactions[i].Operation.IsRead() {
			return i + 1
		}
	}
	return 0
}
