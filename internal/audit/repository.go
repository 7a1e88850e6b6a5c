// Package audit provides filtered, paginated reads of the ledger operation
// journal for operators and the query API.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/lumi-core/internal/dispatcher"
	"github.com/nerrad567/lumi-core/internal/ledger"
	"github.com/nerrad567/lumi-core/internal/store"
)

// Page size bounds.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// Filter controls which journal entries to return. Zero fields do not filter.
type Filter struct {
	Operation  string          // operation name, e.g. "toggle-light"
	Caller     ledger.Identity // submitting identity
	Rejected   *bool           // true: only rejections, false: only successes
	FromHeight ledger.Height   // inclusive
	ToHeight   ledger.Height   // inclusive, 0 means unbounded
	Limit      int             // default 50, max 200
	Offset     int             // pagination offset
}

// ListResult contains a page of journal entries, most recent first.
type ListResult struct {
	Entries []dispatcher.Entry `json:"entries"`
	Total   int                `json:"total"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

// Repository defines the journal read operations.
type Repository interface {
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Get(ctx context.Context, seq int64) (dispatcher.Entry, error)
}

// SQLiteRepository reads the journal table from SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new journal reader.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ErrEntryNotFound is returned by Get for an unknown sequence number.
var ErrEntryNotFound = errors.New("audit: journal entry not found")

const entryColumns = "seq, height, caller, payload, result_code, result, state_root, created_at"

// Get returns the journal entry with the given sequence number.
func (r *SQLiteRepository) Get(ctx context.Context, seq int64) (dispatcher.Entry, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM journal WHERE seq = ?", seq)
	e, err := store.ScanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dispatcher.Entry{}, ErrEntryNotFound
		}
		return dispatcher.Entry{}, err
	}
	return e, nil
}

// List returns journal entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) { //nolint:gocognit,gocyclo // dynamic query builder: WHERE clause assembly from filter fields
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Operation != "" {
		conditions = append(conditions, "operation = ?")
		args = append(args, filter.Operation)
	}
	if filter.Caller != "" {
		conditions = append(conditions, "caller = ?")
		args = append(args, string(filter.Caller))
	}
	if filter.Rejected != nil {
		if *filter.Rejected {
			conditions = append(conditions, "result_code <> 0")
		} else {
			conditions = append(conditions, "result_code = 0")
		}
	}
	if filter.FromHeight > 0 {
		conditions = append(conditions, "height >= ?")
		args = append(args, int64(filter.FromHeight)) //nolint:gosec // heights stored as int64 bit pattern
	}
	if filter.ToHeight > 0 {
		conditions = append(conditions, "height <= ?")
		args = append(args, int64(filter.ToHeight)) //nolint:gosec // heights stored as int64 bit pattern
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM journal %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT %s FROM journal %s ORDER BY seq DESC LIMIT ? OFFSET ?",
		entryColumns, where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := []dispatcher.Entry{}
	for rows.Next() {
		e, err := store.ScanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
