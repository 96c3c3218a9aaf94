package types

import (
	"encoding/json"
	"time"
)

// ChangeLogEntry represents a single committed mutation in the change log.
type ChangeLogEntry struct {
	Sequence   int64           `json:"sequence"`
	TableName  string          `json:"table_name"`
	EntityID   string          `json:"entity_id"`
	Operation  string          `json:"operation"` // "upsert" or "delete"
	Payload    json.RawMessage `json:"payload,omitempty"`
	SourceID   string          `json:"source_id"`
	CreatedAt  time.Time       `json:"created_at"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Operation constants
const (
	OperationUpsert = "upsert"
	OperationDelete = "delete"
)
