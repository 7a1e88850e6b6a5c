package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/lumi-core/internal/device"
	"github.com/nerrad567/lumi-core/internal/dispatcher"
	"github.com/nerrad567/lumi-core/internal/infrastructure/database"
	"github.com/nerrad567/lumi-core/internal/ledger"
	"github.com/nerrad567/lumi-core/internal/schedule"
)

// Store errors.
var (
	// ErrCorruptRecord is returned when a persisted row cannot be decoded
	// into a ledger record.
	ErrCorruptRecord = errors.New("store: corrupt record")

	// ErrNilEntry is returned when a changeset has no journal entry.
	ErrNilEntry = errors.New("store: changeset has no journal entry")
)

// ledger_meta keys.
const (
	// metaLastHeight holds the highest applied height.
	metaLastHeight = "last_height"

	// metaCursor holds the JSON-encoded dispatcher.Cursor of the last
	// transaction committed from a block.
	metaCursor = "block_cursor"
)

// SQLiteStore persists ledger state and the operation journal in SQLite.
// It implements dispatcher.Store.
type SQLiteStore struct {
	db *database.DB
}

// New creates a store on an opened and migrated database.
func New(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Commit writes the changeset's records, journal entry and last height in a
// single transaction and sets cs.Entry.Seq.
func (s *SQLiteStore) Commit(ctx context.Context, cs *dispatcher.Changeset) error {
	if cs.Entry == nil {
		return ErrNilEntry
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	for _, d := range cs.Devices {
		if err := upsertDevice(ctx, tx, d); err != nil {
			return err
		}
	}
	for _, g := range cs.Groups {
		if err := upsertGroup(ctx, tx, g); err != nil {
			return err
		}
	}
	for _, sc := range cs.Schedules {
		if err := upsertSchedule(ctx, tx, sc); err != nil {
			return err
		}
	}

	seq, err := insertEntry(ctx, tx, cs.Entry)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = CASE
		     WHEN CAST(excluded.value AS INTEGER) > CAST(value AS INTEGER) THEN excluded.value
		     ELSE value END`,
		metaLastHeight, strconv.FormatUint(uint64(cs.Entry.Height), 10),
	); err != nil {
		return fmt.Errorf("updating last height: %w", err)
	}

	if cs.Cursor != nil {
		if err := putCursor(ctx, tx, *cs.Cursor); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing changeset: %w", err)
	}
	cs.Entry.Seq = seq
	return nil
}

func putCursor(ctx context.Context, tx *sql.Tx, c dispatcher.Cursor) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding block cursor: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaCursor, string(data),
	); err != nil {
		return fmt.Errorf("updating block cursor: %w", err)
	}
	return nil
}

func upsertDevice(ctx context.Context, tx *sql.Tx, d device.Device) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO devices (id, owner, is_on, brightness) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     owner = excluded.owner,
		     is_on = excluded.is_on,
		     brightness = excluded.brightness`,
		i64(d.ID), string(d.Owner), d.IsOn, int(d.Brightness),
	)
	if err != nil {
		return fmt.Errorf("upserting device %d: %w", d.ID, err)
	}
	return nil
}

func upsertGroup(ctx context.Context, tx *sql.Tx, g *device.Group) error {
	gid := i64(g.ID)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO device_groups (id, name, owner) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, owner = excluded.owner`,
		gid, g.Name, string(g.Owner),
	); err != nil {
		return fmt.Errorf("upserting group %d: %w", g.ID, err)
	}

	// Membership is small; replace the whole set.
	if _, err := tx.ExecContext(ctx, "DELETE FROM group_members WHERE group_id = ?", gid); err != nil {
		return fmt.Errorf("clearing members of group %d: %w", g.ID, err)
	}
	for _, did := range g.MemberIDs() {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO group_members (group_id, device_id) VALUES (?, ?)",
			gid, i64(did),
		); err != nil {
			return fmt.Errorf("inserting member %d of group %d: %w", did, g.ID, err)
		}
	}
	return nil
}

func upsertSchedule(ctx context.Context, tx *sql.Tx, sc *schedule.Schedule) error {
	var (
		executedHeight any
		executedBy     any
		report         any
	)
	if sc.Executed {
		executedHeight = i64(uint64(sc.ExecutedHeight))
		executedBy = string(sc.ExecutedBy)
	}
	if sc.Report != nil {
		data, err := json.Marshal(sc.Report)
		if err != nil {
			return fmt.Errorf("marshalling report of schedule %d: %w", sc.ID, err)
		}
		report = string(data)
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO schedules (id, owner, target_kind, target_id, action, value,
		     trigger_height, created_height, executed, executed_height, executed_by, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     executed = excluded.executed,
		     executed_height = excluded.executed_height,
		     executed_by = excluded.executed_by,
		     report = excluded.report`,
		i64(sc.ID), string(sc.Owner), string(sc.Target.Kind), i64(sc.Target.ID),
		string(sc.Action), i64(sc.Value),
		i64(uint64(sc.TriggerHeight)), i64(uint64(sc.CreatedHeight)),
		sc.Executed, executedHeight, executedBy, report,
	)
	if err != nil {
		return fmt.Errorf("upserting schedule %d: %w", sc.ID, err)
	}
	return nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e *dispatcher.Entry) (int64, error) {
	payload, err := dispatcher.Encode(e.Operation)
	if err != nil {
		return 0, err
	}

	var result any
	if len(e.Result) > 0 {
		result = string(e.Result)
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO journal (height, caller, operation, payload, result_code, result, state_root, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		i64(uint64(e.Height)), string(e.Caller), e.Operation.Op, string(payload),
		int64(e.Code), result, e.StateRoot,
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting journal entry: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading journal sequence: %w", err)
	}
	return seq, nil
}

// Load reads the full persisted state.
func (s *SQLiteStore) Load(ctx context.Context) (dispatcher.Snapshot, error) {
	var snap dispatcher.Snapshot
	var err error

	if snap.Devices, err = s.loadDevices(ctx); err != nil {
		return dispatcher.Snapshot{}, err
	}
	if snap.Groups, err = s.loadGroups(ctx); err != nil {
		return dispatcher.Snapshot{}, err
	}
	if snap.Schedules, err = s.loadSchedules(ctx); err != nil {
		return dispatcher.Snapshot{}, err
	}
	if snap.Height, err = s.LastHeight(ctx); err != nil {
		return dispatcher.Snapshot{}, err
	}
	if snap.Cursor, err = s.BlockCursor(ctx); err != nil {
		return dispatcher.Snapshot{}, err
	}
	return snap, nil
}

func (s *SQLiteStore) loadDevices(ctx context.Context) ([]device.Device, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, owner, is_on, brightness FROM devices")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []device.Device
	for rows.Next() {
		var (
			id         int64
			owner      string
			isOn       bool
			brightness int
		)
		if err := rows.Scan(&id, &owner, &isOn, &brightness); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		if brightness < 0 || brightness > device.MaxBrightness {
			return nil, fmt.Errorf("%w: device %d brightness %d", ErrCorruptRecord, id, brightness)
		}
		devices = append(devices, device.Device{
			ID:         u64(id),
			Owner:      ledger.Identity(owner),
			IsOn:       isOn,
			Brightness: uint8(brightness),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

func (s *SQLiteStore) loadGroups(ctx context.Context) ([]*device.Group, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, owner FROM device_groups")
	if err != nil {
		return nil, fmt.Errorf("querying groups: %w", err)
	}
	defer rows.Close()

	byID := make(map[uint64]*device.Group)
	var groups []*device.Group
	for rows.Next() {
		var (
			id          int64
			name, owner string
		)
		if err := rows.Scan(&id, &name, &owner); err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}
		g := &device.Group{
			ID:      u64(id),
			Name:    name,
			Owner:   ledger.Identity(owner),
			Members: make(map[uint64]struct{}),
		}
		byID[g.ID] = g
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating groups: %w", err)
	}

	members, err := s.db.QueryContext(ctx, "SELECT group_id, device_id FROM group_members")
	if err != nil {
		return nil, fmt.Errorf("querying group members: %w", err)
	}
	defer members.Close()

	for members.Next() {
		var gid, did int64
		if err := members.Scan(&gid, &did); err != nil {
			return nil, fmt.Errorf("scanning group member: %w", err)
		}
		g, ok := byID[u64(gid)]
		if !ok {
			return nil, fmt.Errorf("%w: member of unknown group %d", ErrCorruptRecord, gid)
		}
		g.Members[u64(did)] = struct{}{}
	}
	if err := members.Err(); err != nil {
		return nil, fmt.Errorf("iterating group members: %w", err)
	}
	return groups, nil
}

func (s *SQLiteStore) loadSchedules(ctx context.Context) ([]*schedule.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, target_kind, target_id, action, value, trigger_height, created_height,
		        executed, executed_height, executed_by, report
		 FROM schedules`)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*schedule.Schedule
	for rows.Next() {
		var (
			id, targetID, value, trigger, created int64
			owner, kind, action                   string
			executed                              bool
			executedHeight                        sql.NullInt64
			executedBy, report                    sql.NullString
		)
		if err := rows.Scan(&id, &owner, &kind, &targetID, &action, &value, &trigger, &created,
			&executed, &executedHeight, &executedBy, &report); err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}

		targetKind, ok := schedule.ParseTargetKind(kind)
		if !ok {
			return nil, fmt.Errorf("%w: schedule %d target kind %q", ErrCorruptRecord, id, kind)
		}
		act, ok := schedule.ParseAction(action)
		if !ok {
			return nil, fmt.Errorf("%w: schedule %d action %q", ErrCorruptRecord, id, action)
		}

		sc := &schedule.Schedule{
			ID:            u64(id),
			Owner:         ledger.Identity(owner),
			Target:        schedule.TargetRef{Kind: targetKind, ID: u64(targetID)},
			Action:        act,
			Value:         u64(value),
			TriggerHeight: ledger.Height(u64(trigger)),
			CreatedHeight: ledger.Height(u64(created)),
			Executed:      executed,
		}
		if executedHeight.Valid {
			sc.ExecutedHeight = ledger.Height(u64(executedHeight.Int64))
		}
		if executedBy.Valid {
			sc.ExecutedBy = ledger.Identity(executedBy.String)
		}
		if report.Valid {
			sc.Report = &schedule.Report{}
			if err := json.Unmarshal([]byte(report.String), sc.Report); err != nil {
				return nil, fmt.Errorf("%w: schedule %d report: %v", ErrCorruptRecord, id, err)
			}
		}
		schedules = append(schedules, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedules: %w", err)
	}
	return schedules, nil
}

// LastHeight returns the highest height committed, or 0 for an empty ledger.
func (s *SQLiteStore) LastHeight(ctx context.Context) (ledger.Height, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM ledger_meta WHERE key = ?", metaLastHeight).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading last height: %w", err)
	}
	h, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: last height %q", ErrCorruptRecord, value)
	}
	return ledger.Height(h), nil
}

// BlockCursor returns the cursor of the last transaction committed from a
// block, or the zero Cursor if none has been.
func (s *SQLiteStore) BlockCursor(ctx context.Context) (dispatcher.Cursor, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM ledger_meta WHERE key = ?", metaCursor).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return dispatcher.Cursor{}, nil
	}
	if err != nil {
		return dispatcher.Cursor{}, fmt.Errorf("reading block cursor: %w", err)
	}
	var c dispatcher.Cursor
	if err := json.Unmarshal([]byte(value), &c); err != nil {
		return dispatcher.Cursor{}, fmt.Errorf("%w: block cursor %q", ErrCorruptRecord, value)
	}
	return c, nil
}

// Entries returns journal entries with seq greater than afterSeq in
// ascending order, at most limit of them (all when limit <= 0).
func (s *SQLiteStore) Entries(ctx context.Context, afterSeq int64, limit int) ([]dispatcher.Entry, error) {
	query := `SELECT seq, height, caller, payload, result_code, result, state_root, created_at
	          FROM journal WHERE seq > ? ORDER BY seq`
	args := []any{afterSeq}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []dispatcher.Entry
	for rows.Next() {
		e, err := ScanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return entries, nil
}

// Scanner is implemented by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanEntry decodes one journal row selected as
// seq, height, caller, payload, result_code, result, state_root, created_at.
func ScanEntry(row Scanner) (dispatcher.Entry, error) {
	var (
		e         dispatcher.Entry
		height    int64
		caller    string
		payload   string
		code      int64
		result    sql.NullString
		createdAt string
	)
	if err := row.Scan(&e.Seq, &height, &caller, &payload, &code, &result, &e.StateRoot, &createdAt); err != nil {
		return dispatcher.Entry{}, fmt.Errorf("scanning journal entry: %w", err)
	}

	op, err := dispatcher.Decode([]byte(payload))
	if err != nil {
		if _, isLedger := ledger.CodeOf(err); !isLedger {
			return dispatcher.Entry{}, fmt.Errorf("%w: journal seq %d payload: %v", ErrCorruptRecord, e.Seq, err)
		}
		// Unknown operations are journaled as rejections; keep the decoded payload.
	}

	e.Height = ledger.Height(u64(height))
	e.Caller = ledger.Identity(caller)
	e.Operation = op
	e.Code = ledger.Code(code)
	if result.Valid {
		e.Result = json.RawMessage(result.String)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return dispatcher.Entry{}, fmt.Errorf("%w: journal seq %d timestamp %q", ErrCorruptRecord, e.Seq, createdAt)
	}
	return e, nil
}

// i64 and u64 convert between uint64 ledger values and SQLite's signed
// INTEGER. Values above 2^63 keep their bit pattern.
func i64(v uint64) int64 { return int64(v) } //nolint:gosec // bit-pattern conversion

func u64(v int64) uint64 { return uint64(v) } //nolint:gosec // bit-pattern conversion
