package dispatcher

import (
	"bytes"
	"context"
	"fmt"
)

// Divergence reports the first journal entry whose replayed outcome differs
// from the recorded one.
type Divergence struct {
	Seq   int64
	Field string // "code", "result" or "state_root"
	Want  string
	Got   string
}

// Error implements the error interface.
func (e *Divergence) Error() string {
	return fmt.Sprintf("replay diverged at seq %d: %s recorded %s, replayed %s", e.Seq, e.Field, e.Want, e.Got)
}

// Replay re-applies journal entries in order on a fresh in-memory dispatcher
// and checks every recorded result code, result value and state root. It
// returns the replayed dispatcher, or a *Divergence for the first mismatch.
func Replay(ctx context.Context, cfg Config, entries []Entry) (*Dispatcher, error) {
	d := New(cfg, nil)

	for _, want := range entries {
		res, err := d.Apply(ctx, want.Operation, want.Caller, want.Height)
		if err != nil {
			return nil, fmt.Errorf("replaying seq %d: %w", want.Seq, err)
		}

		if res.Code() != want.Code {
			return d, &Divergence{Seq: want.Seq, Field: "code", Want: want.Code.String(), Got: res.Code().String()}
		}

		got, err := res.EncodeValue()
		if err != nil {
			return nil, fmt.Errorf("replaying seq %d: %w", want.Seq, err)
		}
		if !bytes.Equal(got, want.Result) {
			return d, &Divergence{Seq: want.Seq, Field: "result", Want: string(want.Result), Got: string(got)}
		}

		if root := d.StateRoot(); root != want.StateRoot {
			return d, &Divergence{Seq: want.Seq, Field: "state_root", Want: want.StateRoot, Got: root}
		}
	}
	return d, nil
}
