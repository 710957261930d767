package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
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

// PayLaterService runs the deferred-charge flow: the borrower saves a card
// up front via a setup intent, an operator approves, and the deposit is
// charged off-session later. The borrower tracks progress through a magic
// link whose token is stored hashed.
type PayLaterService struct {
	db        *sql.DB
	gateway   gateway.API
	audit     *AuditLogger
	validator *ValidationHelper
	cfg       *config.EngineConfig
}

// NewPayLaterService creates the pay-later service.
func NewPayLaterService(db *sql.DB, gw gateway.API, audit *AuditLogger, cfg *config.EngineConfig) *PayLaterService {
	return &PayLaterService{
		db:        db,
		gateway:   gw,
		audit:     audit,
		validator: NewValidationHelper(),
		cfg:       cfg,
	}
}

// SetupIntentResult carries everything the caller needs to hand to the
// borrower: the client secret for card collection and the single-use magic
// link for the status page. RawToken exists only in this response; the
// store keeps its hash.
type SetupIntentResult struct {
	TransactionID string `json:"transactionId"`
	ClientSecret  string `json:"clientSecret"`
	RawToken      string `json:"token"`
	StatusURL     string `json:"statusUrl"`
	ExpiresAt     string `json:"expiresAt"`
}

// ChargeOutcome reports what happened when an approved deposit was charged.
type ChargeOutcome struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	DisplayText   string `json:"displayText"`
	FailureCode   string `json:"failureCode,omitempty"`
}

// TransactionStatus is the borrower-facing view served on the public status
// page. It deliberately omits provider identifiers and internal failure
// codes.
type TransactionStatus struct {
	TransactionID   string `json:"transactionId"`
	ItemDescription string `json:"itemDescription"`
	DepositAmount   int64  `json:"depositAmount"`
	Status          string `json:"status"`
	DisplayText     string `json:"displayText"`
}

// CreateSetupIntent starts the deferred flow for a loan: provider customer,
// setup intent for card collection, and a fresh magic token with the
// configured lifetime. The row stays locked across the provider calls so
// concurrent starts serialize and only one customer is created.
func (s *PayLaterService) CreateSetupIntent(ctx context.Context, transactionID string) (*SetupIntentResult, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	var borrowerName, borrowerEmail, borrowerPhone string
	var payLaterStatus sql.NullString
	err = dbTx.QueryRowContext(ctx, `
        SELECT borrower_name, borrower_email, borrower_phone, pay_later_status
        FROM transactions WHERE id = $1 FOR UPDATE
    `, transactionID).Scan(&borrowerName, &borrowerEmail, &borrowerPhone, &payLaterStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("transaction lookup failed: %w", err)
	}
	if payLaterStatus.Valid && payLaterStatus.String != "" {
		return nil, domain.NewInvalidTransitionError("pay-later", payLaterStatus.String, domain.PayLaterCardSetupPending)
	}

	customer, err := s.gateway.CreateCustomer(ctx, gateway.CustomerParams{
		Name:  borrowerName,
		Email: borrowerEmail,
		Phone: borrowerPhone,
	})
	if err != nil {
		log.Printf("[PAYLATER] Customer creation failed for %s: %v", transactionID, err)
		return nil, err
	}

	intent, err := s.gateway.CreateSetupIntent(ctx, customer.ID)
	if err != nil {
		log.Printf("[PAYLATER] Setup intent creation failed for %s: %v", transactionID, err)
		return nil, err
	}

	rawToken, tokenHash, err := generateMagicToken()
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().UTC().Add(s.cfg.MagicTokenTTL)

	_, err = dbTx.ExecContext(ctx, `
        UPDATE transactions
        SET pay_later_status = $1, gateway_customer_id = $2, setup_intent_id = $3,
            magic_token_hash = $4, magic_token_expires_at = $5, updated_at = $6
        WHERE id = $7
    `, domain.PayLaterCardSetupPending, customer.ID, intent.ID, tokenHash, expiresAt, time.Now().UTC(), transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	s.audit.Log(ctx, "system", "CREATE_SETUP_INTENT", "transaction:"+transactionID,
		nil, map[string]string{"pay_later_status": domain.PayLaterCardSetupPending})
	log.Printf("[PAYLATER] Setup intent %s created for transaction %s, token expires %s",
		intent.ID, transactionID, expiresAt.Format(time.RFC3339))

	return &SetupIntentResult{
		TransactionID: transactionID,
		ClientSecret:  intent.ClientSecret,
		RawToken:      rawToken,
		StatusURL:     fmt.Sprintf("%s/status/%s?token=%s", s.cfg.StatusBaseURL, transactionID, rawToken),
		ExpiresAt:     expiresAt.Format(time.RFC3339),
	}, nil
}

// GetTransactionByToken redeems a magic link. A wrong token and an expired
// token produce the same not-found error so the link leaks nothing about
// which failure occurred. Expiry also moves setup-phase transactions to
// EXPIRED, lazily, at redemption time.
func (s *PayLaterService) GetTransactionByToken(ctx context.Context, transactionID, rawToken string) (*TransactionStatus, error) {
	var itemDescription string
	var depositAmount int64
	var status, storedHash sql.NullString
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
        SELECT item_description, deposit_amount, pay_later_status, magic_token_hash, magic_token_expires_at
        FROM transactions WHERE id = $1
    `, transactionID).Scan(&itemDescription, &depositAmount, &status, &storedHash, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("transaction lookup failed: %w", err)
	}

	if !storedHash.Valid || storedHash.String == "" {
		return nil, domain.ErrTransactionNotFound
	}
	presented := hashMagicToken(rawToken)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(storedHash.String)) != 1 {
		return nil, domain.ErrTransactionNotFound
	}

	if expiresAt.Valid && time.Now().UTC().After(expiresAt.Time) {
		s.expireIfPending(ctx, transactionID, status.String)
		return nil, domain.ErrTransactionNotFound
	}

	return &TransactionStatus{
		TransactionID:   transactionID,
		ItemDescription: itemDescription,
		DepositAmount:   depositAmount,
		Status:          status.String,
		DisplayText:     domain.DisplayText(status.String),
	}, nil
}

// HandleSetupSucceeded processes the provider's setup_intent.succeeded
// event: stores the payment method, sets it as the customer default and
// advances to CARD_SETUP_COMPLETE. Redeliveries are no-ops.
func (s *PayLaterService) HandleSetupSucceeded(ctx context.Context, setupIntentID, paymentMethodID string) error {
	var transactionID, customerID string
	var status sql.NullString
	err := s.db.QueryRowContext(ctx, `
        SELECT id, gateway_customer_id, pay_later_status FROM transactions WHERE setup_intent_id = $1
    `, setupIntentID).Scan(&transactionID, &customerID, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrTransactionNotFound
		}
		return fmt.Errorf("transaction lookup failed: %w", err)
	}

	if status.String != domain.PayLaterCardSetupPending {
		log.Printf("[PAYLATER] Setup event for %s ignored, status already %s", transactionID, status.String)
		return nil
	}

	if err := s.gateway.SetDefaultPaymentMethod(ctx, customerID, paymentMethodID); err != nil {
		log.Printf("[PAYLATER] Failed to set default payment method for %s: %v", transactionID, err)
		return err
	}

	_, err = s.db.ExecContext(ctx, `
        UPDATE transactions SET pay_later_status = $1, payment_method_id = $2, updated_at = $3 WHERE id = $4
    `, domain.PayLaterCardSetupComplete, paymentMethodID, time.Now().UTC(), transactionID)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	log.Printf("[PAYLATER] Card setup complete for transaction %s", transactionID)
	return nil
}

// ApproveTransaction moves a card-complete request to APPROVED. Borrowers
// may not approve; operators only for their own location.
func (s *PayLaterService) ApproveTransaction(ctx context.Context, transactionID string, actor auth.Context) error {
	return s.resolveSetupState(ctx, transactionID, actor, domain.PayLaterApproved, "APPROVE_PAY_LATER")
}

// DeclineTransaction declines a request still in a setup phase.
func (s *PayLaterService) DeclineTransaction(ctx context.Context, transactionID string, actor auth.Context) error {
	return s.resolveSetupState(ctx, transactionID, actor, domain.PayLaterDeclined, "DECLINE_PAY_LATER")
}

func (s *PayLaterService) resolveSetupState(ctx context.Context, transactionID string, actor auth.Context, target, action string) error {
	if err := auth.RequireAuthorization(actor.Role != domain.RoleBorrower, actor.Role,
		"borrowers may not review pay-later requests"); err != nil {
		return err
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	var locationID string
	var status sql.NullString
	err = dbTx.QueryRowContext(ctx, `
        SELECT location_id, pay_later_status FROM transactions WHERE id = $1 FOR UPDATE
    `, transactionID).Scan(&locationID, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrTransactionNotFound
		}
		return fmt.Errorf("transaction lookup failed: %w", err)
	}

	actor.TargetLocationID = locationID
	if err := auth.RequireAuthorization(auth.IsAuthorizedForLocation(actor), actor.Role,
		auth.LocationMessage(actor.Role)); err != nil {
		return err
	}

	if err := domain.ValidatePayLaterTransition(status.String, target); err != nil {
		return err
	}

	_, err = dbTx.ExecContext(ctx, `
        UPDATE transactions SET pay_later_status = $1, updated_at = $2 WHERE id = $3
    `, target, time.Now().UTC(), transactionID)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.audit.Log(ctx, actor.UserID, action, "transaction:"+transactionID,
		map[string]string{"pay_later_status": status.String},
		map[string]string{"pay_later_status": target})
	log.Printf("[PAYLATER] Transaction %s: %s -> %s by %s", transactionID, status.String, target, actor.UserID)
	return nil
}

// ChargeTransaction executes the off-session deposit charge for an approved
// request. CHARGE_ATTEMPTED is committed before the gateway is called, so a
// crash mid-charge leaves an attempt marker rather than a silently
// re-chargeable request. The idempotency key is derived from the
// transaction id, so replays of this call cannot double-charge.
func (s *PayLaterService) ChargeTransaction(ctx context.Context, transactionID string, actor auth.Context) (*ChargeOutcome, error) {
	if err := auth.RequireAuthorization(actor.Role != domain.RoleBorrower, actor.Role,
		"borrowers may not trigger charges"); err != nil {
		return nil, err
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	var locationID string
	var depositAmount int64
	var status, customerID, paymentMethodID sql.NullString
	err = dbTx.QueryRowContext(ctx, `
        SELECT location_id, deposit_amount, pay_later_status, gateway_customer_id, payment_method_id
        FROM transactions WHERE id = $1 FOR UPDATE
    `, transactionID).Scan(&locationID, &depositAmount, &status, &customerID, &paymentMethodID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("transaction lookup failed: %w", err)
	}
	actor.TargetLocationID = locationID
	if err := auth.RequireAuthorization(auth.IsAuthorizedForLocation(actor), actor.Role,
		auth.LocationMessage(actor.Role)); err != nil {
		return nil, err
	}

	if err := domain.ValidatePayLaterTransition(status.String, domain.PayLaterChargeAttempted); err != nil {
		return nil, err
	}
	if customerID.String == "" {
		return nil, domain.NewValidationError("gatewayCustomerId", "transaction has no gateway customer")
	}
	if paymentMethodID.String == "" {
		return nil, domain.NewValidationError("paymentMethodId", "transaction has no saved payment method")
	}

	now := time.Now().UTC()
	_, err = dbTx.ExecContext(ctx, `
        UPDATE transactions SET pay_later_status = $1, updated_at = $2 WHERE id = $3
    `, domain.PayLaterChargeAttempted, now, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark charge attempt: %w", err)
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit charge attempt: %w", err)
	}

	intent, chargeErr := s.gateway.ConfirmOffSession(ctx, gateway.OffSessionChargeParams{
		CustomerID:      customerID.String,
		PaymentMethodID: paymentMethodID.String,
		Amount:          depositAmount,
		Currency:        s.cfg.Currency,
		Description:     fmt.Sprintf("Deferred deposit for loan %s", transactionID),
		IdempotencyKey:  fmt.Sprintf("%s_charge_1", transactionID),
	})

	outcome := s.settleChargeOutcome(ctx, transactionID, depositAmount, intent, chargeErr)

	s.audit.Log(ctx, actor.UserID, "CHARGE_PAY_LATER", "transaction:"+transactionID,
		map[string]string{"pay_later_status": status.String},
		map[string]string{"pay_later_status": outcome.Status})
	return outcome, nil
}

// settleChargeOutcome persists the terminal state of a charge attempt. The
// gateway error is captured into the outcome, never returned: the attempt
// itself succeeded at being made, and operators read the result from state.
func (s *PayLaterService) settleChargeOutcome(ctx context.Context, transactionID string, depositAmount int64, intent *gateway.PaymentIntent, chargeErr error) *ChargeOutcome {
	outcome := &ChargeOutcome{TransactionID: transactionID}
	metadata := models.PaymentMetadata{}
	providerRef := ""
	paymentStatus := domain.PaymentFailed

	switch {
	case chargeErr != nil:
		outcome.Status = domain.PayLaterChargeFailed
		var gwErr *gateway.Error
		if errors.As(chargeErr, &gwErr) {
			outcome.FailureCode = gwErr.Code
		} else {
			outcome.FailureCode = "gateway_unreachable"
		}
		metadata.FailureCode = outcome.FailureCode
		log.Printf("[PAYLATER] Charge failed for %s: %v", transactionID, chargeErr)
	case intent.Status == gateway.IntentSucceeded:
		outcome.Status = domain.PayLaterCharged
		paymentStatus = domain.PaymentCompleted
		providerRef = intent.ID
	case intent.Status == gateway.IntentRequiresAction || intent.Status == gateway.IntentRequiresConfirmation:
		outcome.Status = domain.PayLaterChargeRequiresAction
		paymentStatus = domain.PaymentPending
		providerRef = intent.ID
		metadata.ClientSecret = intent.ClientSecret
		s.notifyActionRequired(transactionID)
	default:
		outcome.Status = domain.PayLaterChargeFailed
		outcome.FailureCode = intent.Status
		providerRef = intent.ID
		metadata.FailureCode = intent.Status
	}
	outcome.DisplayText = domain.DisplayText(outcome.Status)

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO payments
        (id, transaction_id, method, provider_ref, deposit_amount, processing_fee, total_amount, status, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, uuid.NewString(), transactionID, domain.MethodCardDeferred, providerRef,
		depositAmount, int64(0), depositAmount, paymentStatus, metadata, now, now)
	if err != nil {
		log.Printf("[PAYLATER] Failed to store charge payment for %s: %v", transactionID, err)
	}

	_, err = s.db.ExecContext(ctx, `
        UPDATE transactions SET pay_later_status = $1, payment_intent_id = $2, updated_at = $3 WHERE id = $4
    `, outcome.Status, providerRef, now, transactionID)
	if err != nil {
		log.Printf("[PAYLATER] Failed to store charge outcome for %s: %v", transactionID, err)
	}

	log.Printf("[PAYLATER] Charge outcome for %s: %s", transactionID, outcome.Status)
	return outcome
}

// HandleChargeSucceeded processes the provider's payment_intent.succeeded
// event for a deferred charge that initially required action.
func (s *PayLaterService) HandleChargeSucceeded(ctx context.Context, paymentIntentID string) error {
	return s.settleAsyncCharge(ctx, paymentIntentID, domain.PayLaterCharged, domain.PaymentCompleted, "")
}

// HandleChargeFailed processes the provider's payment_intent.payment_failed
// event.
func (s *PayLaterService) HandleChargeFailed(ctx context.Context, paymentIntentID, failureCode string) error {
	return s.settleAsyncCharge(ctx, paymentIntentID, domain.PayLaterChargeFailed, domain.PaymentFailed, failureCode)
}

// HandleChargeRequiresAction processes the provider's
// payment_intent.requires_action event: the off-session charge needs a
// step-up from the borrower before it can settle, so the attempt parks in
// CHARGE_REQUIRES_ACTION and the status link is re-sent.
func (s *PayLaterService) HandleChargeRequiresAction(ctx context.Context, paymentIntentID string) error {
	return s.settleAsyncCharge(ctx, paymentIntentID, domain.PayLaterChargeRequiresAction, domain.PaymentPending, "")
}

func (s *PayLaterService) settleAsyncCharge(ctx context.Context, paymentIntentID, target, paymentStatus, failureCode string) error {
	var transactionID string
	var status sql.NullString
	err := s.db.QueryRowContext(ctx, `
        SELECT id, pay_later_status FROM transactions WHERE payment_intent_id = $1
    `, paymentIntentID).Scan(&transactionID, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrTransactionNotFound
		}
		return fmt.Errorf("transaction lookup failed: %w", err)
	}

	if !domain.CanTransitionPayLater(status.String, target) {
		log.Printf("[PAYLATER] Charge event for %s ignored, status already %s", transactionID, status.String)
		return nil
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
        UPDATE transactions SET pay_later_status = $1, updated_at = $2 WHERE id = $3
    `, target, now, transactionID)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
        UPDATE payments SET status = $1, metadata = jsonb_set(COALESCE(metadata, '{}'), '{failure_code}', to_jsonb($2::text)), updated_at = $3
        WHERE provider_ref = $4
    `, paymentStatus, failureCode, now, paymentIntentID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}

	if target == domain.PayLaterChargeRequiresAction {
		s.notifyActionRequired(transactionID)
	}

	log.Printf("[PAYLATER] Async charge for %s settled as %s", transactionID, target)
	return nil
}

// notifyActionRequired would re-send the magic link so the borrower can
// complete 3DS verification. Delivery is out of band; the log line is the
// integration point.
func (s *PayLaterService) notifyActionRequired(transactionID string) {
	log.Printf("[PAYLATER] Transaction %s requires borrower action, status link should be re-sent", transactionID)
}

func (s *PayLaterService) expireIfPending(ctx context.Context, transactionID, status string) {
	if !domain.CanTransitionPayLater(status, domain.PayLaterExpired) {
		return
	}
	_, err := s.db.ExecContext(ctx, `
        UPDATE transactions SET pay_later_status = $1, updated_at = $2 WHERE id = $3
    `, domain.PayLaterExpired, time.Now().UTC(), transactionID)
	if err != nil {
		log.Printf("[PAYLATER] Failed to expire transaction %s: %v", transactionID, err)
		return
	}
	log.Printf("[PAYLATER] Transaction %s expired, token past its lifetime", transactionID)
}

// generateMagicToken returns a 32-byte random token as hex plus its SHA-256
// hash for storage.
func generateMagicToken() (raw, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	raw = hex.EncodeToString(buf)
	return raw, hashMagicToken(raw), nil
}

func hashMagicToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
