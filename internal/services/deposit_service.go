package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/gemachnet/backend/internal/auth"
	"github.com/gemachnet/backend/internal/config"
	"github.com/gemachnet/backend/internal/domain"
	"github.com/gemachnet/backend/internal/gateway"
	"github.com/gemachnet/backend/internal/models"
)

// DepositService orchestrates the immediate payment rails: cash deposits
// confirmed by a human operator and instant card charges settled through the
// gateway. All validate-then-mutate sequences run inside a database
// transaction holding a row lock on the loan, so concurrent requests against
// the same loan serialize at the store.
type DepositService struct {
	db        *sql.DB
	gateway   gateway.API
	audit     *AuditLogger
	validator *ValidationHelper
	cfg       *config.EngineConfig
}

// NewDepositService creates the deposit service.
func NewDepositService(db *sql.DB, gw gateway.API, audit *AuditLogger, cfg *config.EngineConfig) *DepositService {
	return &DepositService{
		db:        db,
		gateway:   gw,
		audit:     audit,
		validator: NewValidationHelper(),
		cfg:       cfg,
	}
}

// CreateDepositRequest describes a new loan initiated by a borrower or by an
// operator on their behalf.
type CreateDepositRequest struct {
	LocationID      string `json:"locationId" validate:"required"`
	BorrowerName    string `json:"borrowerName" validate:"required,min=2"`
	BorrowerEmail   string `json:"borrowerEmail" validate:"omitempty,email"`
	BorrowerPhone   string `json:"borrowerPhone" validate:"omitempty,max=20"`
	ItemDescription string `json:"itemDescription" validate:"max=500"`
	DepositAmount   int64  `json:"depositAmount" validate:"omitempty,gte=0"`
	ExpectedReturn  string `json:"expectedReturn,omitempty"`
}

// CardPaymentInit is returned to the caller for client-side confirmation of
// an immediate card charge.
type CardPaymentInit struct {
	PaymentID      string `json:"paymentId"`
	ClientSecret   string `json:"clientSecret"`
	PublishableKey string `json:"publishableKey"`
	DepositAmount  int64  `json:"depositAmount"`
	ProcessingFee  int64  `json:"processingFee"`
	TotalAmount    int64  `json:"totalAmount"`
}

// RefundResult reports a completed immediate refund.
type RefundResult struct {
	TransactionID    string `json:"transactionId"`
	PaymentID        string `json:"paymentId"`
	RefundedAmount   int64  `json:"refundedAmount"`
	ProviderRefundID string `json:"providerRefundId,omitempty"`
}

// BulkFailure records one failed item of a bulk operation.
type BulkFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkReport summarizes a best-effort bulk operation. Bulk calls are
// sequential and non-transactional: partial success is part of the contract.
type BulkReport struct {
	Total     int           `json:"total"`
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// CreateDepositTransaction creates a loan with the deposit amount defaulted
// from the location's configuration.
func (s *DepositService) CreateDepositTransaction(ctx context.Context, req CreateDepositRequest) (*models.Transaction, error) {
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, err
	}

	var locationDeposit int64
	err := s.db.QueryRowContext(ctx, `
        SELECT deposit_amount FROM locations WHERE id = $1 AND is_active = true
    `, req.LocationID).Scan(&locationDeposit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrLocationNotFound
		}
		return nil, fmt.Errorf("location lookup failed: %w", err)
	}

	deposit := req.DepositAmount
	if deposit == 0 {
		deposit = locationDeposit
	}
	if deposit == 0 {
		deposit = s.cfg.DefaultDepositAmount
	}

	var expectedReturn *time.Time
	if req.ExpectedReturn != "" {
		if parsed, err := time.Parse(time.RFC3339, req.ExpectedReturn); err == nil {
			expectedReturn = &parsed
		}
	}

	tx := &models.Transaction{
		ID:                   uuid.NewString(),
		LocationID:           req.LocationID,
		BorrowerName:         req.BorrowerName,
		BorrowerEmail:        req.BorrowerEmail,
		BorrowerPhone:        req.BorrowerPhone,
		ItemDescription:      req.ItemDescription,
		DepositAmount:        deposit,
		DepositPaymentMethod: "pending",
		ExpectedReturnAt:     expectedReturn,
		CreatedAt:            time.Now().UTC(),
		UpdatedAt:            time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO transactions
        (id, location_id, borrower_name, borrower_email, borrower_phone, item_description,
         deposit_amount, deposit_payment_method, is_returned, expected_return_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9, $10, $11)
    `, tx.ID, tx.LocationID, tx.BorrowerName, tx.BorrowerEmail, tx.BorrowerPhone, tx.ItemDescription,
		tx.DepositAmount, tx.DepositPaymentMethod, tx.ExpectedReturnAt, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store transaction: %w", err)
	}

	log.Printf("[DEPOSIT] Created transaction %s at location %s, deposit %d", tx.ID, tx.LocationID, deposit)
	return tx, nil
}

// InitiateCardPayment computes the processing fee, creates a provider payment
// intent for deposit+fee, and persists a pending payment carrying the
// client secret. A second call creates a second intent - callers must not
// double-submit.
func (s *DepositService) InitiateCardPayment(ctx context.Context, transactionID, locationID string) (*CardPaymentInit, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	deposit, err := s.lockTransactionDeposit(ctx, dbTx, transactionID, locationID)
	if err != nil {
		return nil, err
	}

	if err := s.checkNoActivePayment(ctx, dbTx, transactionID); err != nil {
		return nil, err
	}

	fee := s.calculateProcessingFee(deposit)
	total := deposit + fee

	intent, err := s.gateway.CreatePaymentIntent(ctx, gateway.PaymentIntentParams{
		Amount:      total,
		Currency:    s.cfg.Currency,
		Description: fmt.Sprintf("Deposit for loan %s", transactionID),
		Metadata:    map[string]string{"transaction_id": transactionID},
	})
	if err != nil {
		log.Printf("[DEPOSIT] Payment intent creation failed for %s: %v", transactionID, err)
		return nil, err
	}

	paymentID := uuid.NewString()
	metadata := models.PaymentMetadata{ClientSecret: intent.ClientSecret}
	now := time.Now().UTC()

	_, err = dbTx.ExecContext(ctx, `
        INSERT INTO payments
        (id, transaction_id, method, provider_ref, deposit_amount, processing_fee, total_amount, status, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, paymentID, transactionID, domain.MethodCard, intent.ID, deposit, fee, total, domain.PaymentPending, metadata, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}

	_, err = dbTx.ExecContext(ctx, `
        UPDATE transactions SET deposit_payment_method = $1, updated_at = $2 WHERE id = $3
    `, domain.MethodCard, now, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	log.Printf("[DEPOSIT] Card payment %s initiated for %s: deposit=%d fee=%d total=%d",
		paymentID, transactionID, deposit, fee, total)

	return &CardPaymentInit{
		PaymentID:      paymentID,
		ClientSecret:   intent.ClientSecret,
		PublishableKey: s.cfg.GatewayPublishableKey,
		DepositAmount:  deposit,
		ProcessingFee:  fee,
		TotalAmount:    total,
	}, nil
}

// InitiateCashPayment records a cash deposit awaiting operator confirmation.
// Cash carries no processing fee.
func (s *DepositService) InitiateCashPayment(ctx context.Context, transactionID, locationID string) (*models.Payment, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	deposit, err := s.lockTransactionDeposit(ctx, dbTx, transactionID, locationID)
	if err != nil {
		return nil, err
	}

	if err := s.checkNoActivePayment(ctx, dbTx, transactionID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	payment := &models.Payment{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		Method:        domain.MethodCash,
		DepositAmount: deposit,
		ProcessingFee: 0,
		TotalAmount:   deposit,
		Status:        domain.PaymentConfirming,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err = dbTx.ExecContext(ctx, `
        INSERT INTO payments
        (id, transaction_id, method, provider_ref, deposit_amount, processing_fee, total_amount, status, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, payment.ID, payment.TransactionID, payment.Method, "", payment.DepositAmount,
		payment.ProcessingFee, payment.TotalAmount, payment.Status, payment.Metadata, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}

	_, err = dbTx.ExecContext(ctx, `
        UPDATE transactions SET deposit_payment_method = $1, updated_at = $2 WHERE id = $3
    `, domain.MethodCash, now, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	log.Printf("[DEPOSIT] Cash payment %s awaiting confirmation for %s", payment.ID, transactionID)
	return payment, nil
}

// ConfirmPayment resolves a pending or confirming payment to completed or
// failed. Borrowers may never confirm; operators only for their own
// location. The confirming actor, timestamp and notes are appended to the
// payment metadata without overwriting prior keys.
func (s *DepositService) ConfirmPayment(ctx context.Context, paymentID string, actor auth.Context, confirmed bool, notes, confirmationCode string) (*models.Payment, error) {
	if err := auth.RequireAuthorization(actor.Role != domain.RoleBorrower, actor.Role,
		"borrowers may not confirm payments"); err != nil {
		return nil, err
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	payment := &models.Payment{}
	var txLocationID string
	err = dbTx.QueryRowContext(ctx, `
        SELECT p.id, p.transaction_id, p.method, p.provider_ref, p.deposit_amount, p.processing_fee,
               p.total_amount, p.status, p.metadata, t.location_id
        FROM payments p
        JOIN transactions t ON t.id = p.transaction_id
        WHERE p.id = $1
        FOR UPDATE OF p
    `, paymentID).Scan(
		&payment.ID, &payment.TransactionID, &payment.Method, &payment.ProviderRef,
		&payment.DepositAmount, &payment.ProcessingFee, &payment.TotalAmount,
		&payment.Status, &payment.Metadata, &txLocationID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("payment lookup failed: %w", err)
	}

	actor.TargetLocationID = txLocationID
	if err := auth.RequireAuthorization(auth.IsAuthorizedForLocation(actor), actor.Role,
		auth.LocationMessage(actor.Role)); err != nil {
		return nil, err
	}

	target := domain.PaymentCompleted
	if !confirmed {
		target = domain.PaymentFailed
	}
	if payment.Status != domain.PaymentPending && payment.Status != domain.PaymentConfirming {
		return nil, domain.NewInvalidTransitionError("payment", payment.Status, target)
	}
	if err := domain.ValidatePaymentTransition(payment.Status, target); err != nil {
		return nil, err
	}

	before := payment.Status
	now := time.Now().UTC()
	payment.Metadata.Cash = &models.CashConfirmationMetadata{
		ConfirmedBy:      actor.UserID,
		Confirmed:        confirmed,
		ConfirmedAt:      now,
		Notes:            notes,
		ConfirmationCode: confirmationCode,
	}
	payment.Status = target

	_, err = dbTx.ExecContext(ctx, `
        UPDATE payments SET status = $1, metadata = $2, updated_at = $3 WHERE id = $4
    `, payment.Status, payment.Metadata, now, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	s.audit.Log(ctx, actor.UserID, "CONFIRM_PAYMENT", "payment:"+payment.ID,
		map[string]string{"status": before}, map[string]string{"status": payment.Status})
	log.Printf("[DEPOSIT] Payment %s confirmed=%t by %s: %s -> %s", payment.ID, confirmed, actor.UserID, before, payment.Status)
	return payment, nil
}

// HandleGatewayWebhook applies an asynchronous settlement outcome reported
// by the provider. Redelivered events for already-settled payments are
// idempotent no-ops.
func (s *DepositService) HandleGatewayWebhook(ctx context.Context, providerRef, status string) error {
	payment := &models.Payment{}
	err := s.db.QueryRowContext(ctx, `
        SELECT id, transaction_id, status, metadata FROM payments WHERE provider_ref = $1
    `, providerRef).Scan(&payment.ID, &payment.TransactionID, &payment.Status, &payment.Metadata)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPaymentNotFound
		}
		return fmt.Errorf("payment lookup failed: %w", err)
	}

	if payment.Status != domain.PaymentPending && payment.Status != domain.PaymentConfirming {
		log.Printf("[DEPOSIT] Webhook for %s ignored, payment already %s", providerRef, payment.Status)
		return nil
	}

	target := domain.PaymentFailed
	if status == gateway.IntentSucceeded {
		target = domain.PaymentCompleted
	}

	now := time.Now().UTC()
	payment.Metadata.Webhook = &models.WebhookMetadata{
		ProcessedAt: now,
		EventStatus: status,
	}

	_, err = s.db.ExecContext(ctx, `
        UPDATE payments SET status = $1, metadata = $2, updated_at = $3 WHERE id = $4
    `, target, payment.Metadata, now, payment.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}

	log.Printf("[DEPOSIT] Webhook settled payment %s (ref %s) as %s", payment.ID, providerRef, target)
	return nil
}

// RefundDeposit refunds a completed deposit and marks the loan returned. For
// card deposits the gateway refund is issued first; on gateway failure no
// local state is mutated. The row lock held across the call makes two
// concurrent refund attempts serialize, so the loser fails eligibility.
func (s *DepositService) RefundDeposit(ctx context.Context, transactionID string, actor auth.Context, amountOverride *int64) (*RefundResult, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	var locationID string
	var depositAmount int64
	var isReturned bool
	err = dbTx.QueryRowContext(ctx, `
        SELECT location_id, deposit_amount, is_returned FROM transactions WHERE id = $1 FOR UPDATE
    `, transactionID).Scan(&locationID, &depositAmount, &isReturned)
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

	payments, err := s.loadPayments(ctx, dbTx, transactionID)
	if err != nil {
		return nil, err
	}

	statuses := make([]string, 0, len(payments))
	var completed *models.Payment
	for i := range payments {
		statuses = append(statuses, payments[i].Status)
		if payments[i].Status == domain.PaymentCompleted && completed == nil {
			completed = &payments[i]
		}
	}
	if err := domain.CanProcessRefund(isReturned, statuses); err != nil {
		return nil, err
	}

	amount := depositAmount
	if amountOverride != nil {
		if err := domain.ValidateRefundAmount(*amountOverride, depositAmount); err != nil {
			return nil, err
		}
		amount = *amountOverride
	}

	providerRefundID := ""
	if completed.Method == domain.MethodCard || completed.Method == domain.MethodCardDeferred {
		refund, err := s.gateway.CreateRefund(ctx, completed.ProviderRef, amount)
		if err != nil {
			log.Printf("[DEPOSIT] Gateway refund failed for %s: %v", transactionID, err)
			return nil, err
		}
		providerRefundID = refund.ID
	}

	now := time.Now().UTC()
	completed.Metadata.Refund = &models.RefundMetadata{
		RefundedBy:       actor.UserID,
		ProviderRefundID: providerRefundID,
		Amount:           amount,
	}

	_, err = dbTx.ExecContext(ctx, `
        UPDATE payments SET status = $1, metadata = $2, updated_at = $3 WHERE id = $4
    `, domain.PaymentRefunded, completed.Metadata, now, completed.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}

	_, err = dbTx.ExecContext(ctx, `
        UPDATE transactions SET is_returned = true, returned_at = $1, refund_amount = $2, updated_at = $1 WHERE id = $3
    `, now, amount, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	s.audit.Log(ctx, actor.UserID, "REFUND_DEPOSIT", "transaction:"+transactionID,
		map[string]any{"is_returned": false, "payment_status": domain.PaymentCompleted},
		map[string]any{"is_returned": true, "payment_status": domain.PaymentRefunded, "refund_amount": amount})
	log.Printf("[DEPOSIT] Refunded %d for transaction %s by %s", amount, transactionID, actor.UserID)

	return &RefundResult{
		TransactionID:    transactionID,
		PaymentID:        completed.ID,
		RefundedAmount:   amount,
		ProviderRefundID: providerRefundID,
	}, nil
}

// BulkConfirmPayments confirms payments one by one, accumulating a per-id
// report. No cross-item atomicity is provided.
func (s *DepositService) BulkConfirmPayments(ctx context.Context, paymentIDs []string, actor auth.Context, confirmed bool, notes string) (*BulkReport, error) {
	if err := auth.RequireAuthorization(auth.CanPerformBulkOperations(actor), actor.Role,
		auth.BulkMessage(actor.Role)); err != nil {
		return nil, err
	}

	report := &BulkReport{Total: len(paymentIDs)}
	for _, id := range paymentIDs {
		if _, err := s.ConfirmPayment(ctx, id, actor, confirmed, notes, ""); err != nil {
			report.Failed = append(report.Failed, BulkFailure{ID: id, Error: err.Error()})
			continue
		}
		report.Succeeded = append(report.Succeeded, id)
	}
	return report, nil
}

// calculateProcessingFee rounds the fee up to the next minor unit.
func (s *DepositService) calculateProcessingFee(amount int64) int64 {
	return (amount*s.cfg.CardFeeBps + 9999) / 10000
}

func (s *DepositService) lockTransactionDeposit(ctx context.Context, dbTx *sql.Tx, transactionID, locationID string) (int64, error) {
	var deposit int64
	var isReturned bool
	err := dbTx.QueryRowContext(ctx, `
        SELECT deposit_amount, is_returned FROM transactions WHERE id = $1 AND location_id = $2 FOR UPDATE
    `, transactionID, locationID).Scan(&deposit, &isReturned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrTransactionNotFound
		}
		return 0, fmt.Errorf("transaction lookup failed: %w", err)
	}
	if isReturned {
		return 0, domain.ErrAlreadyReturned
	}
	return deposit, nil
}

func (s *DepositService) checkNoActivePayment(ctx context.Context, dbTx *sql.Tx, transactionID string) error {
	var active int
	err := dbTx.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM payments WHERE transaction_id = $1 AND status IN ($2, $3)
    `, transactionID, domain.PaymentPending, domain.PaymentConfirming).Scan(&active)
	if err != nil {
		return fmt.Errorf("active payment check failed: %w", err)
	}
	if active > 0 {
		return domain.ErrDuplicateActivePayment
	}
	return nil
}

func (s *DepositService) loadPayments(ctx context.Context, dbTx *sql.Tx, transactionID string) ([]models.Payment, error) {
	rows, err := dbTx.QueryContext(ctx, `
        SELECT id, transaction_id, method, provider_ref, deposit_amount, processing_fee, total_amount, status, metadata
        FROM payments WHERE transaction_id = $1 ORDER BY created_at
    `, transactionID)
	if err != nil {
		return nil, fmt.Errorf("payments lookup failed: %w", err)
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		p := models.Payment{}
		err := rows.Scan(&p.ID, &p.TransactionID, &p.Method, &p.ProviderRef,
			&p.DepositAmount, &p.ProcessingFee, &p.TotalAmount, &p.Status, &p.Metadata)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
