package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/gemachnet/backend/internal/models"
)

// AuditLogger appends immutable before/after records to the audit_log table
// and mirrors each entry to the process log. Writing the trail must never
// fail the operation it describes; insert errors are logged and swallowed.
type AuditLogger struct {
	db *sql.DB
}

// NewAuditLogger creates an audit logger backed by the given database.
func NewAuditLogger(db *sql.DB) *AuditLogger {
	return &AuditLogger{db: db}
}

type auditEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	Actor     string          `json:"actor"`
	Action    string          `json:"action"`
	Entity    string          `json:"entity"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
}

// Log records a state-changing operation with snapshots of the entity
// before and after the change. Either snapshot may be nil.
func (a *AuditLogger) Log(ctx context.Context, actor, action, entity string, before, after any) {
	beforeJSON := marshalSnapshot(before)
	afterJSON := marshalSnapshot(after)

	event := auditEvent{
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Action:    action,
		Entity:    entity,
		Before:    beforeJSON,
		After:     afterJSON,
	}
	if data, err := json.Marshal(event); err == nil {
		log.Printf("AUDIT: %s", string(data))
	}

	if a.db == nil {
		return
	}
	_, err := a.db.ExecContext(ctx, `
        INSERT INTO audit_log (actor, action, entity, before_state, after_state, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, actor, action, entity, beforeJSON, afterJSON, event.Timestamp)
	if err != nil {
		log.Printf("[AUDIT] Failed to persist audit entry %s/%s: %v", action, entity, err)
	}
}

// RecentEntries returns the newest audit records, newest first. This backs
// the admin trail endpoint; business logic never reads the table.
func (a *AuditLogger) RecentEntries(ctx context.Context, limit int) ([]models.AuditLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := a.db.QueryContext(ctx, `
        SELECT id, actor, action, entity, before_state, after_state, created_at
        FROM audit_log ORDER BY id DESC LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.AuditLogEntry{}
	for rows.Next() {
		var entry models.AuditLogEntry
		var beforeState, afterState []byte
		err := rows.Scan(&entry.ID, &entry.Actor, &entry.Action, &entry.Entity,
			&beforeState, &afterState, &entry.CreatedAt)
		if err != nil {
			return nil, err
		}
		entry.BeforeState = json.RawMessage(beforeState)
		entry.AfterState = json.RawMessage(afterState)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func marshalSnapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{"marshal_error":true}`)
	}
	return data
}
