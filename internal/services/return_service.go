package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/gemachnet/backend/internal/auth"
	"github.com/gemachnet/backend/internal/config"
	"github.com/gemachnet/backend/internal/domain"
	"github.com/gemachnet/backend/internal/models"
	"github.com/gemachnet/backend/internal/retry"
)

// StockSyncQueue is the Redis list drained by the inventory worker.
const StockSyncQueue = "stock_sync_queue"

// ReturnService processes item returns. Eligibility and the refund amount
// are validated exactly once up front; only the storage mutation is retried,
// so a transient database failure never re-runs business validation against
// state the first attempt may have partially changed.
type ReturnService struct {
	db        *sql.DB
	redis     *redis.Client
	audit     *AuditLogger
	failures  *retry.FailureRecorder
	validator *ValidationHelper
	cfg       *config.EngineConfig
}

// NewReturnService creates the return service.
func NewReturnService(db *sql.DB, redisClient *redis.Client, audit *AuditLogger, failures *retry.FailureRecorder, cfg *config.EngineConfig) *ReturnService {
	return &ReturnService{
		db:        db,
		redis:     redisClient,
		audit:     audit,
		failures:  failures,
		validator: NewValidationHelper(),
		cfg:       cfg,
	}
}

// ReturnRequest describes one item handed back at a location.
type ReturnRequest struct {
	TransactionID string `json:"transactionId" validate:"required"`
	ItemCondition string `json:"itemCondition" validate:"omitempty,oneof=good damaged missing"`
	Notes         string `json:"notes,omitempty" validate:"max=500"`
}

// ReturnResult reports a processed return with the refund queued for it.
type ReturnResult struct {
	TransactionID string `json:"transactionId"`
	RefundAmount  int64  `json:"refundAmount"`
	ItemCondition string `json:"itemCondition"`
	PaymentID     string `json:"paymentId"`
	Attempts      int    `json:"attempts"`
}

type stockSyncEvent struct {
	TransactionID string    `json:"transaction_id"`
	LocationID    string    `json:"location_id"`
	ReturnedAt    time.Time `json:"returned_at"`
	ItemCondition string    `json:"item_condition"`
}

// ProcessItemReturn marks the loan returned and queues a refund payment row
// in refund_pending. The storage step retries with backoff; after
// exhaustion a durable failure record is written so the return can be
// replayed manually.
func (s *ReturnService) ProcessItemReturn(ctx context.Context, req ReturnRequest, actor auth.Context) (*ReturnResult, error) {
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, err
	}
	condition := req.ItemCondition
	if condition == "" {
		condition = domain.ConditionGood
	}

	var locationID, borrowerName string
	var depositAmount int64
	var isReturned bool
	err := s.db.QueryRowContext(ctx, `
        SELECT location_id, borrower_name, deposit_amount, is_returned FROM transactions WHERE id = $1
    `, req.TransactionID).Scan(&locationID, &borrowerName, &depositAmount, &isReturned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("transaction lookup failed: %w", err)
	}

	actor.TargetLocationID = locationID
	if err := auth.RequireAuthorization(auth.CanProcessRefund(actor), actor.Role,
		auth.RefundMessage(actor.Role)); err != nil {
		return nil, err
	}
	if err := domain.ValidateReturnTransition(isReturned); err != nil {
		return nil, err
	}

	snapshot, err := s.loadPaymentSnapshot(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if err := domain.CanProcessRefund(isReturned, snapshot.statuses); err != nil {
		return nil, err
	}

	refundAmount := domain.CalculateRefundAmount(depositAmount, condition)
	if err := domain.ValidateRefundAmount(refundAmount, depositAmount); err != nil {
		return nil, err
	}

	// Validation is done. From here on only storage can fail, and storage
	// failures are transient by assumption.
	result := &ReturnResult{
		TransactionID: req.TransactionID,
		RefundAmount:  refundAmount,
		ItemCondition: condition,
	}

	cfg := retry.Config{
		MaxRetries:        s.cfg.ReturnMaxRetries,
		InitialDelay:      s.cfg.ReturnInitialDelay,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
		OnRetry: func(attempt int, err error) {
			log.Printf("[RETURN] Retry %d for transaction %s: %v", attempt, req.TransactionID, err)
		},
	}

	outcome := retry.Do(ctx, cfg, func() error {
		paymentID, err := s.persistReturn(ctx, req.TransactionID, snapshot, refundAmount, condition, actor.UserID)
		if err != nil {
			return err
		}
		result.PaymentID = paymentID
		return nil
	})
	result.Attempts = outcome.Attempts

	if !outcome.Success {
		s.failures.LogRetryFailure(ctx, "process_item_return", map[string]any{
			"transaction_id": req.TransactionID,
			"item_condition": condition,
			"refund_amount":  refundAmount,
			"actor":          actor.UserID,
		}, outcome.Err)
		return nil, fmt.Errorf("return of %s failed after %d attempts: %w", req.TransactionID, outcome.Attempts, outcome.Err)
	}

	s.enqueueStockSync(ctx, stockSyncEvent{
		TransactionID: req.TransactionID,
		LocationID:    locationID,
		ReturnedAt:    time.Now().UTC(),
		ItemCondition: condition,
	})

	s.audit.Log(ctx, actor.UserID, "PROCESS_RETURN", "transaction:"+req.TransactionID,
		map[string]any{"is_returned": false},
		map[string]any{"is_returned": true, "refund_amount": refundAmount, "item_condition": condition})
	log.Printf("[RETURN] Transaction %s returned (%s), refund %d queued in %d attempt(s)",
		req.TransactionID, condition, refundAmount, result.Attempts)
	return result, nil
}

// persistReturn is the retried storage step. The row lock re-check makes a
// concurrent double return lose deterministically; that loss is permanent
// and must not be retried into a second refund row.
func (s *ReturnService) persistReturn(ctx context.Context, transactionID string, snapshot *paymentSnapshot, refundAmount int64, condition, actorID string) (string, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	var isReturned bool
	err = dbTx.QueryRowContext(ctx, `
        SELECT is_returned FROM transactions WHERE id = $1 FOR UPDATE
    `, transactionID).Scan(&isReturned)
	if err != nil {
		return "", fmt.Errorf("transaction lock failed: %w", err)
	}
	if isReturned {
		return "", retry.Permanent(domain.ErrAlreadyReturned)
	}

	now := time.Now().UTC()
	_, err = dbTx.ExecContext(ctx, `
        UPDATE transactions SET is_returned = true, returned_at = $1, refund_amount = $2, updated_at = $1 WHERE id = $3
    `, now, refundAmount, transactionID)
	if err != nil {
		return "", fmt.Errorf("failed to mark returned: %w", err)
	}

	paymentID := uuid.NewString()
	metadata := models.PaymentMetadata{
		Refund: &models.RefundMetadata{
			RefundedBy:    actorID,
			ItemCondition: condition,
			Amount:        refundAmount,
		},
	}
	_, err = dbTx.ExecContext(ctx, `
        INSERT INTO payments
        (id, transaction_id, method, provider_ref, deposit_amount, processing_fee, total_amount, status, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, paymentID, transactionID, snapshot.completedMethod, "refund_"+snapshot.completedRef,
		refundAmount, int64(0), refundAmount, domain.PaymentRefundPending, metadata, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to store refund payment: %w", err)
	}

	_, err = dbTx.ExecContext(ctx, `
        UPDATE payments SET status = $1, updated_at = $2 WHERE id = $3
    `, domain.PaymentRefundPending, now, snapshot.completedID)
	if err != nil {
		return "", fmt.Errorf("failed to update original payment: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return paymentID, nil
}

// BulkProcessReturns processes returns one by one and reports per-id. A
// failed item never blocks the rest of the batch.
func (s *ReturnService) BulkProcessReturns(ctx context.Context, reqs []ReturnRequest, actor auth.Context) (*BulkReport, error) {
	if err := auth.RequireAuthorization(auth.CanPerformBulkOperations(actor), actor.Role,
		auth.BulkMessage(actor.Role)); err != nil {
		return nil, err
	}

	report := &BulkReport{Total: len(reqs)}
	for _, req := range reqs {
		if _, err := s.ProcessItemReturn(ctx, req, actor); err != nil {
			report.Failed = append(report.Failed, BulkFailure{ID: req.TransactionID, Error: err.Error()})
			continue
		}
		report.Succeeded = append(report.Succeeded, req.TransactionID)
	}
	return report, nil
}

// paymentSnapshot is the state of a transaction's payments at validation
// time: all statuses for eligibility, plus the completed payment the refund
// row derives from.
type paymentSnapshot struct {
	statuses        []string
	completedID     string
	completedRef    string
	completedMethod string
}

func (s *ReturnService) loadPaymentSnapshot(ctx context.Context, transactionID string) (*paymentSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, provider_ref, method, status FROM payments WHERE transaction_id = $1 ORDER BY created_at
    `, transactionID)
	if err != nil {
		return nil, fmt.Errorf("payments lookup failed: %w", err)
	}
	defer rows.Close()

	snapshot := &paymentSnapshot{}
	for rows.Next() {
		var id, ref, method, status string
		if err := rows.Scan(&id, &ref, &method, &status); err != nil {
			return nil, err
		}
		snapshot.statuses = append(snapshot.statuses, status)
		if status == domain.PaymentCompleted && snapshot.completedID == "" {
			snapshot.completedID = id
			snapshot.completedRef = ref
			snapshot.completedMethod = method
		}
	}
	return snapshot, rows.Err()
}

// enqueueStockSync pushes the return onto the inventory queue. The queue is
// best-effort; the return itself is already durable.
func (s *ReturnService) enqueueStockSync(ctx context.Context, event stockSyncEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[RETURN] Failed to encode stock sync event for %s: %v", event.TransactionID, err)
		return
	}
	if err := s.redis.RPush(ctx, StockSyncQueue, payload).Err(); err != nil {
		log.Printf("[RETURN] Failed to queue stock sync for %s: %v", event.TransactionID, err)
	}
}
