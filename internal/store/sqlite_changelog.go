package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/habitstore/internal/types"
)

const insertChangeLogSQL = `
	INSERT INTO change_log (table_name, entity_id, operation, payload, source_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

// changeLogArgs returns the SQL arguments for inserting a ChangeLogEntry.
func changeLogArgs(e *types.ChangeLogEntry) []any {
	return []any{
		e.TableName, e.EntityID, e.Operation,
		nullablePayload(e.Payload), e.SourceID,
		e.CreatedAt.Format(time.RFC3339Nano),
	}
}

// appendChangeLog appends a single entry inside the transaction.
// Returns the assigned sequence number.
func (t *sqliteTx) appendChangeLog(entry *types.ChangeLogEntry) (int64, error) {
	result, err := t.tx.Exec(insertChangeLogSQL, changeLogArgs(entry)...)
	if err != nil {
		return 0, fmt.Errorf("append change log: %w", err)
	}
	return result.LastInsertId()
}

type changeLogRow struct {
	Sequence   int64          `db:"sequence"`
	TableName  string         `db:"table_name"`
	EntityID   string         `db:"entity_id"`
	Operation  string         `db:"operation"`
	Payload    sql.NullString `db:"payload"`
	SourceID   string         `db:"source_id"`
	CreatedAt  string         `db:"created_at"`
	ReceivedAt string         `db:"received_at"`
}

// ChangesAfter returns entries with sequence > afterSeq, up to limit.
func (t *sqliteTx) ChangesAfter(afterSeq int64, limit int) ([]types.ChangeLogEntry, error) {
	var rows []changeLogRow
	err := t.tx.Select(&rows, `
		SELECT sequence, table_name, entity_id, operation, payload, source_id, created_at, received_at
		FROM change_log
		WHERE sequence > ?
		ORDER BY sequence ASC
		LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query change log: %w", err)
	}

	entries := make([]types.ChangeLogEntry, 0, len(rows))
	for _, r := range rows {
		e := types.ChangeLogEntry{
			Sequence:  r.Sequence,
			TableName: r.TableName,
			EntityID:  r.EntityID,
			Operation: r.Operation,
			SourceID:  r.SourceID,
		}
		if r.Payload.Valid {
			e.Payload = json.RawMessage(r.Payload.String)
		}
		var parseErr error
		if e.CreatedAt, parseErr = time.Parse(time.RFC3339Nano, r.CreatedAt); parseErr != nil {
			slog.Warn("change_log: failed to parse created_at", "value", r.CreatedAt, "error", parseErr)
		}
		if e.ReceivedAt, parseErr = time.Parse(time.RFC3339Nano, r.ReceivedAt); parseErr != nil {
			slog.Warn("change_log: failed to parse received_at", "value", r.ReceivedAt, "error", parseErr)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// nullablePayload converts a json.RawMessage to a sql-friendly value.
// Returns nil for empty/null payloads, string otherwise.
func nullablePayload(p json.RawMessage) any {
	if len(p) == 0 {
		return nil
	}
	return string(p)
}
