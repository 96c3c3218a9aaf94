package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/hyperengineering/habitstore/internal/query"
	"github.com/hyperengineering/habitstore/internal/types"
	"github.com/jmoiron/sqlx"
)

// kindOrder fixes the order of ChangeSet.Kinds.
var kindOrder = []types.EntityKind{
	types.KindCategory,
	types.KindTracker,
	types.KindCompletionRecord,
	types.KindStatistic,
}

var tableNames = map[types.EntityKind]string{
	types.KindCategory:         "categories",
	types.KindTracker:          "trackers",
	types.KindCompletionRecord: "completion_records",
	types.KindStatistic:        "statistics",
}

// stagedOp is a write waiting for Save. exec reports whether a row changed.
type stagedOp struct {
	kind      types.EntityKind
	entityID  string
	operation string
	payload   any
	touches   []types.EntityKind
	exec      func(tx *sqlx.Tx) (bool, error)
}

type sqliteTx struct {
	tx       *sqlx.Tx
	sourceID string

	pending []stagedOp
	owned   map[string]struct{}
	kinds   map[types.EntityKind]bool
	lastSeq int64
	failed  error
}

var _ Tx = (*sqliteTx)(nil)

func newSQLiteTx(tx *sqlx.Tx, sourceID string) *sqliteTx {
	return &sqliteTx{
		tx:       tx,
		sourceID: sourceID,
		owned:    make(map[string]struct{}),
		kinds:    make(map[types.EntityKind]bool),
	}
}

func ownKey(e types.Entity) string {
	return string(e.EntityKind()) + ":" + e.EntityKey()
}

func (t *sqliteTx) own(e types.Entity) {
	t.owned[ownKey(e)] = struct{}{}
}

func (t *sqliteTx) owns(e types.Entity) bool {
	_, ok := t.owned[ownKey(e)]
	return ok
}

func (t *sqliteTx) changeSet() ChangeSet {
	cs := ChangeSet{Sequence: t.lastSeq}
	for _, k := range kindOrder {
		if t.kinds[k] {
			cs.Kinds = append(cs.Kinds, k)
		}
	}
	return cs
}

// --- reads ---

type categoryRow struct {
	ID    string `db:"id"`
	Title string `db:"title"`
}

func (r categoryRow) category() (types.Category, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return types.Category{}, fmt.Errorf("parse category id %q: %w", r.ID, err)
	}
	return types.Category{ID: id, Title: r.Title}, nil
}

type trackerRow struct {
	ID            string         `db:"id"`
	CategoryID    string         `db:"category_id"`
	Title         string         `db:"title"`
	Color         string         `db:"color"`
	Emoji         string         `db:"emoji"`
	IsPinned      bool           `db:"is_pinned"`
	RuleKind      string         `db:"rule_kind"`
	OneOffDate    sql.NullString `db:"one_off_date"`
	Weekdays      int64          `db:"weekdays"`
	CategoryTitle string         `db:"category_title"`
	Completed     bool           `db:"completed"`
}

func (r trackerRow) tracker() (types.Tracker, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return types.Tracker{}, fmt.Errorf("parse tracker id %q: %w", r.ID, err)
	}
	categoryID, err := uuid.Parse(r.CategoryID)
	if err != nil {
		return types.Tracker{}, fmt.Errorf("parse category id %q: %w", r.CategoryID, err)
	}

	var rule types.CompletionRule
	switch r.RuleKind {
	case types.RuleRecurring:
		rule = types.Recurring{Days: types.WeekdaySet(r.Weekdays)}
	case types.RuleOneOff:
		d, err := types.ParseDay(r.OneOffDate.String)
		if err != nil {
			return types.Tracker{}, fmt.Errorf("tracker %s: %w", r.ID, err)
		}
		rule = types.OneOff{Date: d}
	default:
		return types.Tracker{}, fmt.Errorf("tracker %s: unknown rule kind %q", r.ID, r.RuleKind)
	}

	return types.Tracker{
		ID:         id,
		Title:      r.Title,
		Color:      r.Color,
		Emoji:      r.Emoji,
		IsPinned:   r.IsPinned,
		CategoryID: categoryID,
		Rule:       rule,
	}, nil
}

type completionRow struct {
	TrackerID string `db:"tracker_id"`
	Date      string `db:"date"`
}

func (r completionRow) record() (types.CompletionRecord, error) {
	id, err := uuid.Parse(r.TrackerID)
	if err != nil {
		return types.CompletionRecord{}, fmt.Errorf("parse tracker id %q: %w", r.TrackerID, err)
	}
	d, err := types.ParseDay(r.Date)
	if err != nil {
		return types.CompletionRecord{}, err
	}
	return types.CompletionRecord{TrackerID: id, Date: d}, nil
}

const weekdaysColumn = "(SELECT COALESCE(SUM(1 << (se.weekday - 1)), 0) FROM schedule_entries se WHERE se.tracker_id = t.id) AS weekdays"

func trackerSelect() sq.SelectBuilder {
	return sq.Select(
		"t.id", "t.category_id", "t.title", "t.color", "t.emoji",
		"t.is_pinned", "t.rule_kind", "t.one_off_date",
		weekdaysColumn,
		"c.title AS category_title",
	).From("trackers t").Join("categories c ON c.id = t.category_id")
}

func (t *sqliteTx) get(dest any, b sq.SelectBuilder) error {
	stmt, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return t.tx.Get(dest, stmt, args...)
}

func (t *sqliteTx) selectAll(dest any, b sq.SelectBuilder) error {
	stmt, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return t.tx.Select(dest, stmt, args...)
}

func (t *sqliteTx) getCategory(b sq.SelectBuilder, key string) (types.Category, error) {
	var row categoryRow
	if err := t.get(&row, b); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Category{}, &NotFoundError{Kind: types.KindCategory, ID: key}
		}
		return types.Category{}, fmt.Errorf("get category: %w", err)
	}
	c, err := row.category()
	if err != nil {
		return types.Category{}, err
	}
	t.own(c)
	return c, nil
}

// Category implements Reader.
func (t *sqliteTx) Category(id uuid.UUID) (types.Category, error) {
	return t.getCategory(
		sq.Select("id", "title").From("categories").Where(sq.Eq{"id": id.String()}),
		id.String(),
	)
}

// CategoryByTitle implements Reader.
func (t *sqliteTx) CategoryByTitle(title string) (types.Category, error) {
	return t.getCategory(
		sq.Select("id", "title").From("categories").Where(sq.Eq{"title": title}),
		title,
	)
}

// Categories implements Reader. Categories are ordered by title.
func (t *sqliteTx) Categories() ([]types.Category, error) {
	var rows []categoryRow
	if err := t.selectAll(&rows, sq.Select("id", "title").From("categories").OrderBy("title ASC")); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]types.Category, 0, len(rows))
	for _, r := range rows {
		c, err := r.category()
		if err != nil {
			return nil, err
		}
		t.own(c)
		out = append(out, c)
	}
	return out, nil
}

// Tracker implements Reader.
func (t *sqliteTx) Tracker(id uuid.UUID) (types.Tracker, error) {
	var row trackerRow
	if err := t.get(&row, trackerSelect().Where(sq.Eq{"t.id": id.String()})); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Tracker{}, &NotFoundError{Kind: types.KindTracker, ID: id.String()}
		}
		return types.Tracker{}, fmt.Errorf("get tracker: %w", err)
	}
	tr, err := row.tracker()
	if err != nil {
		return types.Tracker{}, err
	}
	t.own(tr)
	return tr, nil
}

// Trackers implements Reader. Trackers are ordered by title.
func (t *sqliteTx) Trackers() ([]types.Tracker, error) {
	var rows []trackerRow
	if err := t.selectAll(&rows, trackerSelect().OrderBy("t.title ASC", "t.id ASC")); err != nil {
		return nil, fmt.Errorf("list trackers: %w", err)
	}
	out := make([]types.Tracker, 0, len(rows))
	for _, r := range rows {
		tr, err := r.tracker()
		if err != nil {
			return nil, err
		}
		t.own(tr)
		out = append(out, tr)
	}
	return out, nil
}

// QueryTrackers implements Reader. The day and completion rules run in SQL;
// the title search and final ordering run through p.
func (t *sqliteTx) QueryTrackers(p query.Predicate) ([]query.Row, error) {
	b := trackerSelect().
		Column(p.CompletedColumn()).
		Where(p.Conditions()).
		OrderBy(query.OrderBy...)

	var rows []trackerRow
	if err := t.selectAll(&rows, b); err != nil {
		return nil, fmt.Errorf("query trackers: %w", err)
	}
	out := make([]query.Row, 0, len(rows))
	for _, r := range rows {
		tr, err := r.tracker()
		if err != nil {
			return nil, err
		}
		t.own(tr)
		out = append(out, query.Row{Tracker: tr, CategoryTitle: r.CategoryTitle, Completed: r.Completed})
	}
	return p.Apply(out), nil
}

// CompletionRecord implements Reader.
func (t *sqliteTx) CompletionRecord(trackerID uuid.UUID, date types.Day) (types.CompletionRecord, error) {
	key := types.CompletionRecord{TrackerID: trackerID, Date: date}.EntityKey()
	var row completionRow
	err := t.get(&row, sq.Select("tracker_id", "date").From("completion_records").
		Where(sq.Eq{"tracker_id": trackerID.String(), "date": date.String()}))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.CompletionRecord{}, &NotFoundError{Kind: types.KindCompletionRecord, ID: key}
		}
		return types.CompletionRecord{}, fmt.Errorf("get completion record: %w", err)
	}
	r, err := row.record()
	if err != nil {
		return types.CompletionRecord{}, err
	}
	t.own(r)
	return r, nil
}

// CompletionRecords implements Reader. Records are ordered by date.
func (t *sqliteTx) CompletionRecords() ([]types.CompletionRecord, error) {
	var rows []completionRow
	err := t.selectAll(&rows, sq.Select("tracker_id", "date").From("completion_records").
		OrderBy("date ASC", "tracker_id ASC"))
	if err != nil {
		return nil, fmt.Errorf("list completion records: %w", err)
	}
	out := make([]types.CompletionRecord, 0, len(rows))
	for _, row := range rows {
		r, err := row.record()
		if err != nil {
			return nil, err
		}
		t.own(r)
		out = append(out, r)
	}
	return out, nil
}

// Statistics implements Reader. Rows come back in types.StatisticIDs order.
func (t *sqliteTx) Statistics() ([]types.Statistic, error) {
	var rows []struct {
		ID    string `db:"id"`
		Value int    `db:"value"`
	}
	if err := t.selectAll(&rows, sq.Select("id", "value").From("statistics")); err != nil {
		return nil, fmt.Errorf("list statistics: %w", err)
	}
	byID := make(map[types.StatisticID]int, len(rows))
	for _, r := range rows {
		byID[types.StatisticID(r.ID)] = r.Value
	}
	out := make([]types.Statistic, 0, len(types.StatisticIDs))
	for _, id := range types.StatisticIDs {
		v, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: statistic %s missing", ErrSchemaUnavailable, id)
		}
		out = append(out, types.Statistic{ID: id, Value: v})
	}
	return out, nil
}

// --- writes ---

func (t *sqliteTx) stage(op stagedOp) {
	t.pending = append(t.pending, op)
}

func execChanged(tx *sqlx.Tx, b sq.Sqlizer) (bool, error) {
	stmt, args, err := b.ToSql()
	if err != nil {
		return false, fmt.Errorf("build statement: %w", err)
	}
	res, err := tx.Exec(stmt, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// InsertCategory implements Tx.
func (t *sqliteTx) InsertCategory(c types.Category) error {
	t.own(c)
	t.stage(stagedOp{
		kind:      types.KindCategory,
		entityID:  c.ID.String(),
		operation: types.OperationUpsert,
		payload:   c,
		touches:   []types.EntityKind{types.KindCategory},
		exec: func(tx *sqlx.Tx) (bool, error) {
			return execChanged(tx, sq.Insert("categories").Columns("id", "title").
				Values(c.ID.String(), c.Title))
		},
	})
	return nil
}

// UpdateCategory implements Tx.
func (t *sqliteTx) UpdateCategory(c types.Category) error {
	if !t.owns(c) {
		return ErrNotOwned
	}
	t.stage(stagedOp{
		kind:      types.KindCategory,
		entityID:  c.ID.String(),
		operation: types.OperationUpsert,
		payload:   c,
		touches:   []types.EntityKind{types.KindCategory},
		exec: func(tx *sqlx.Tx) (bool, error) {
			return execChanged(tx, sq.Update("categories").Set("title", c.Title).
				Where(sq.Eq{"id": c.ID.String()}))
		},
	})
	return nil
}

func oneOffDate(tr types.Tracker) any {
	if o, ok := tr.Rule.(types.OneOff); ok {
		return o.Date.String()
	}
	return nil
}

func writeSchedule(tx *sqlx.Tx, tr types.Tracker) error {
	entries := types.ScheduleEntries(tr)
	if len(entries) == 0 {
		return nil
	}
	b := sq.Insert("schedule_entries").Columns("tracker_id", "weekday")
	for _, e := range entries {
		b = b.Values(e.TrackerID.String(), int(e.WeekDay))
	}
	_, err := execChanged(tx, b)
	return err
}

// InsertTracker implements Tx.
func (t *sqliteTx) InsertTracker(tr types.Tracker) error {
	if err := types.CheckRule(tr.Rule); err != nil {
		return err
	}
	t.own(tr)
	t.stage(stagedOp{
		kind:      types.KindTracker,
		entityID:  tr.ID.String(),
		operation: types.OperationUpsert,
		payload:   tr,
		touches:   []types.EntityKind{types.KindTracker},
		exec: func(tx *sqlx.Tx) (bool, error) {
			_, err := execChanged(tx, sq.Insert("trackers").
				Columns("id", "category_id", "title", "color", "emoji", "is_pinned", "rule_kind", "one_off_date").
				Values(tr.ID.String(), tr.CategoryID.String(), tr.Title, tr.Color, tr.Emoji,
					tr.IsPinned, types.RuleKind(tr.Rule), oneOffDate(tr)))
			if err != nil {
				return false, err
			}
			return true, writeSchedule(tx, tr)
		},
	})
	return nil
}

// UpdateTracker implements Tx. Schedule entries are rewritten from the rule.
func (t *sqliteTx) UpdateTracker(tr types.Tracker) error {
	if !t.owns(tr) {
		return ErrNotOwned
	}
	if err := types.CheckRule(tr.Rule); err != nil {
		return err
	}
	t.stage(stagedOp{
		kind:      types.KindTracker,
		entityID:  tr.ID.String(),
		operation: types.OperationUpsert,
		payload:   tr,
		touches:   []types.EntityKind{types.KindTracker},
		exec: func(tx *sqlx.Tx) (bool, error) {
			changed, err := execChanged(tx, sq.Update("trackers").
				Set("category_id", tr.CategoryID.String()).
				Set("title", tr.Title).
				Set("color", tr.Color).
				Set("emoji", tr.Emoji).
				Set("is_pinned", tr.IsPinned).
				Set("rule_kind", types.RuleKind(tr.Rule)).
				Set("one_off_date", oneOffDate(tr)).
				Where(sq.Eq{"id": tr.ID.String()}))
			if err != nil || !changed {
				return changed, err
			}
			if _, err := execChanged(tx, sq.Delete("schedule_entries").
				Where(sq.Eq{"tracker_id": tr.ID.String()})); err != nil {
				return false, err
			}
			return true, writeSchedule(tx, tr)
		},
	})
	return nil
}

// InsertCompletion implements Tx. A record that already exists is left alone.
func (t *sqliteTx) InsertCompletion(r types.CompletionRecord) error {
	t.own(r)
	t.stage(stagedOp{
		kind:      types.KindCompletionRecord,
		entityID:  r.EntityKey(),
		operation: types.OperationUpsert,
		payload:   r,
		touches:   []types.EntityKind{types.KindCompletionRecord},
		exec: func(tx *sqlx.Tx) (bool, error) {
			return execChanged(tx, sq.Insert("completion_records").
				Columns("tracker_id", "date").
				Values(r.TrackerID.String(), r.Date.String()).
				Suffix("ON CONFLICT (tracker_id, date) DO NOTHING"))
		},
	})
	return nil
}

// SetStatistics implements Tx. values must hold each statistic exactly once.
func (t *sqliteTx) SetStatistics(values []types.Statistic) error {
	if len(values) != len(types.StatisticIDs) {
		return fmt.Errorf("set statistics: want %d rows, got %d", len(types.StatisticIDs), len(values))
	}
	seen := make(map[types.StatisticID]bool, len(values))
	for _, v := range values {
		if seen[v.ID] || !slices.Contains(types.StatisticIDs, v.ID) {
			return fmt.Errorf("set statistics: unexpected row %q", v.ID)
		}
		seen[v.ID] = true
	}

	for _, v := range values {
		t.stage(stagedOp{
			kind:      types.KindStatistic,
			entityID:  string(v.ID),
			operation: types.OperationUpsert,
			payload:   v,
			touches:   []types.EntityKind{types.KindStatistic},
			exec: func(tx *sqlx.Tx) (bool, error) {
				return execChanged(tx, sq.Update("statistics").
					Set("value", v.Value).
					Where(sq.Eq{"id": string(v.ID)}).
					Where(sq.NotEq{"value": v.Value}))
			},
		})
	}
	return nil
}

// Delete implements Tx. Deleting a category removes its trackers, and
// deleting a tracker removes its schedule and completion records.
func (t *sqliteTx) Delete(e types.Entity) error {
	if e == nil || e.EntityKind() == types.KindStatistic || !t.owns(e) {
		return ErrNotOwned
	}

	op := stagedOp{
		kind:      e.EntityKind(),
		entityID:  e.EntityKey(),
		operation: types.OperationDelete,
	}
	switch v := e.(type) {
	case types.Category:
		op.touches = []types.EntityKind{types.KindCategory, types.KindTracker, types.KindCompletionRecord}
		op.exec = func(tx *sqlx.Tx) (bool, error) {
			return execChanged(tx, sq.Delete("categories").Where(sq.Eq{"id": v.ID.String()}))
		}
	case types.Tracker:
		op.touches = []types.EntityKind{types.KindTracker, types.KindCompletionRecord}
		op.exec = func(tx *sqlx.Tx) (bool, error) {
			return execChanged(tx, sq.Delete("trackers").Where(sq.Eq{"id": v.ID.String()}))
		}
	case types.CompletionRecord:
		op.touches = []types.EntityKind{types.KindCompletionRecord}
		op.exec = func(tx *sqlx.Tx) (bool, error) {
			return execChanged(tx, sq.Delete("completion_records").
				Where(sq.Eq{"tracker_id": v.TrackerID.String(), "date": v.Date.String()}))
		}
	default:
		return ErrNotOwned
	}
	delete(t.owned, ownKey(e))
	t.stage(op)
	return nil
}

// Save implements Tx. Each applied write that changed a row is appended to
// the change log in the same transaction.
func (t *sqliteTx) Save() error {
	if t.failed != nil {
		return t.failed
	}
	if len(t.pending) == 0 {
		return nil
	}
	pending := t.pending
	t.pending = nil
	now := time.Now().UTC()

	for _, op := range pending {
		changed, err := op.exec(t.tx)
		if err != nil {
			t.failed = &SaveError{Cause: fmt.Errorf("%s %s %s: %w", op.operation, op.kind, op.entityID, err)}
			return t.failed
		}
		if !changed {
			continue
		}

		entry := types.ChangeLogEntry{
			TableName: tableNames[op.kind],
			EntityID:  op.entityID,
			Operation: op.operation,
			SourceID:  t.sourceID,
			CreatedAt: now,
		}
		if op.payload != nil {
			payload, err := json.Marshal(op.payload)
			if err != nil {
				t.failed = &SaveError{Cause: fmt.Errorf("marshal %s payload: %w", op.kind, err)}
				return t.failed
			}
			entry.Payload = payload
		}
		seq, err := t.appendChangeLog(&entry)
		if err != nil {
			t.failed = &SaveError{Cause: err}
			return t.failed
		}
		t.lastSeq = seq
		for _, k := range op.touches {
			t.kinds[k] = true
		}
	}
	return nil
}
