package chain

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/lumi-core/internal/dispatcher"
	"github.com/nerrad567/lumi-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/lumi-core/internal/ledger"
)

// defaultRetryAfter is how many blocks a submitted execution may stay
// pending before it is submitted again.
const defaultRetryAfter ledger.Height = 10

// Publisher sends a JSON message.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// DueSource lists schedules due at a height.
type DueSource interface {
	Due(height ledger.Height) []uint64
}

// KeeperOptions configures a Keeper.
type KeeperOptions struct {
	Ledger    DueSource
	Publisher Publisher

	// Identity is the caller of submitted execute-schedule transactions.
	Identity ledger.Identity

	// RetryAfter is the resubmission interval in blocks.
	RetryAfter ledger.Height

	Logger Logger
}

// Keeper submits execute-schedule transactions for due schedules.
type Keeper struct {
	ledger     DueSource
	pub        Publisher
	identity   ledger.Identity
	retryAfter ledger.Height
	logger     Logger
	now        func() time.Time
	newID      func() string

	mu      sync.Mutex
	pending map[uint64]ledger.Height // schedule id -> height last submitted at
}

// NewKeeper creates a keeper.
func NewKeeper(opts KeeperOptions) *Keeper {
	retry := opts.RetryAfter
	if retry == 0 {
		retry = defaultRetryAfter
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Keeper{
		ledger:     opts.Ledger,
		pub:        opts.Publisher,
		identity:   opts.Identity,
		retryAfter: retry,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
		pending:    make(map[uint64]ledger.Height),
	}
}

// OnBlock submits every schedule due at height that has no recent
// submission outstanding. Schedules no longer due (executed, or removed by
// a restore) are forgotten. It returns the ids submitted.
func (k *Keeper) OnBlock(ctx context.Context, height ledger.Height) []uint64 {
	due := k.ledger.Due(height)

	k.mu.Lock()
	defer k.mu.Unlock()

	stillDue := make(map[uint64]struct{}, len(due))
	for _, id := range due {
		stillDue[id] = struct{}{}
	}
	for id := range k.pending {
		if _, ok := stillDue[id]; !ok {
			delete(k.pending, id)
		}
	}

	var submitted []uint64
	for _, id := range due {
		if ctx.Err() != nil {
			break
		}
		if last, ok := k.pending[id]; ok && height < last+k.retryAfter {
			continue
		}
		req := SubmitRequest{
			MessageID: k.newID(),
			Transaction: Transaction{
				Caller:    k.identity,
				Operation: dispatcher.ExecuteSchedule(id),
			},
			ObservedHeight: height,
			SubmittedAt:    k.now().UTC(),
		}
		if err := k.pub.PublishJSON(mqtt.Topics{}.ChainSubmit(), req, false); err != nil {
			k.logger.Warn("submitting schedule execution failed", "schedule_id", id, "height", height, "error", err)
			continue
		}
		k.pending[id] = height
		submitted = append(submitted, id)
		k.logger.Info("schedule execution submitted", "schedule_id", id, "height", height, "message_id", req.MessageID)
	}
	return submitted
}

// Pending returns the number of submissions awaiting inclusion.
func (k *Keeper) Pending() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.pending)
}
