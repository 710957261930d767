package retry

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"
)

// FailureRecorder persists a structured record for every operation that
// exhausted its retry budget. The retry_failures table is append-only and
// exists so an operator (or a reprocessing job) can recover work that would
// otherwise be lost silently.
type FailureRecorder struct {
	db *sql.DB
}

// NewFailureRecorder creates a recorder backed by the given database.
func NewFailureRecorder(db *sql.DB) *FailureRecorder {
	return &FailureRecorder{db: db}
}

// LogRetryFailure writes the failure record. The full input context of the
// failed operation is serialized alongside the error so the attempt can be
// replayed by hand. Recording itself must not fail the caller; an insert
// error is logged and swallowed.
func (r *FailureRecorder) LogRetryFailure(ctx context.Context, operation string, inputContext any, opErr error) {
	contextJSON, err := json.Marshal(inputContext)
	if err != nil {
		log.Printf("[RETRY] Failed to serialize failure context for %s: %v", operation, err)
		contextJSON = []byte("{}")
	}

	errMsg := ""
	if opErr != nil {
		errMsg = opErr.Error()
	}

	occurredAt := time.Now().UTC().Format(time.RFC3339)
	log.Printf("[RETRY] Exhausted retries for %s at %s: %s", operation, occurredAt, errMsg)

	_, err = r.db.ExecContext(ctx, `
        INSERT INTO retry_failures (operation, context, error_message, created_at)
        VALUES ($1, $2, $3, $4)
    `, operation, contextJSON, errMsg, occurredAt)
	if err != nil {
		log.Printf("[RETRY] Failed to persist failure record for %s: %v", operation, err)
	}
}
