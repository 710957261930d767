package models

import (
	"encoding/json"
	"time"
)

// AuditLogEntry is an immutable record of a state-changing operation:
// who did what to which entity, with before/after snapshots. The table is
// append-only and exists for forensic reconstruction; business logic never
// reads it.
type AuditLogEntry struct {
	ID          int64           `json:"id" db:"id"`
	Actor       string          `json:"actor" db:"actor"`
	Action      string          `json:"action" db:"action"`
	Entity      string          `json:"entity" db:"entity"`
	BeforeState json.RawMessage `json:"before_state,omitempty" db:"before_state"`
	AfterState  json.RawMessage `json:"after_state,omitempty" db:"after_state"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
