package chain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/lumi-core/internal/dispatcher"
	"github.com/nerrad567/lumi-core/internal/ledger"
)

// Transaction is one operation submitted by caller.
type Transaction struct {
	Caller    ledger.Identity      `json:"caller"`
	Operation dispatcher.Operation `json:"operation"`
}

// Block is an ordered batch of transactions at a chain height.
type Block struct {
	Height       ledger.Height `json:"height"`
	Transactions []Transaction `json:"transactions"`
}

// TxReceipt is the outcome of one transaction of a block.
type TxReceipt struct {
	Index  int             `json:"index"`
	Caller ledger.Identity `json:"caller"`
	Op     string          `json:"op"`
	Code   ledger.Code     `json:"code"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
}

// BlockReceipt is published once a block has been fully applied.
type BlockReceipt struct {
	Height    ledger.Height `json:"height"`
	Receipts  []TxReceipt   `json:"receipts"`
	StateRoot string        `json:"state_root"`
}

// SubmitRequest asks the chain bridge to include a transaction in a
// future block.
type SubmitRequest struct {
	MessageID      string        `json:"message_id"`
	Transaction                  // flattened: caller, operation
	ObservedHeight ledger.Height `json:"observed_height"`
	SubmittedAt    time.Time     `json:"submitted_at"`
}

// DecodeBlock parses a block payload. Transactions with an unknown
// operation name are kept; the dispatcher journals them as rejections.
func DecodeBlock(payload []byte) (Block, error) {
	var b Block
	if err := json.Unmarshal(payload, &b); err != nil {
		return Block{}, fmt.Errorf("%w: %w", ErrMalformedBlock, err)
	}
	for i, tx := range b.Transactions {
		if tx.Operation.Op == "" {
			return Block{}, fmt.Errorf("%w: transaction %d has no op", ErrMalformedBlock, i)
		}
	}
	return b, nil
}

func txReceipt(i int, tx Transaction, res dispatcher.Result) TxReceipt {
	r := TxReceipt{
		Index:  i,
		Caller: tx.Caller,
		Op:     tx.Operation.Op,
		Code:   res.Code(),
		Status: res.Code().String(),
	}
	// Encoding a committed result cannot fail: the dispatcher already
	// encoded it for the journal.
	r.Result, _ = res.EncodeValue() //nolint:errcheck // see above
	return r
}
