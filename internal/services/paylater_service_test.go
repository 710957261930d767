package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/gemachnet/backend/internal/auth"
	"github.com/gemachnet/backend/internal/domain"
	"github.com/gemachnet/backend/internal/gateway"
)

func newPayLaterFixture(t *testing.T) (*PayLaterService, sqlmock.Sqlmock, *MockGateway, func()) {
	t.Helper()
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)

	gw := &MockGateway{}
	service := NewPayLaterService(db, gw, NewAuditLogger(db), testEngineConfig())
	return service, dbMock, gw, func() { db.Close() }
}

func TestPayLaterService_CreateSetupIntent(t *testing.T) {
	t.Run("starts the deferred flow", func(t *testing.T) {
		service, dbMock, gw, cleanup := newPayLaterFixture(t)
		defer cleanup()

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT borrower_name, borrower_email").
			WithArgs("tx-1").
			WillReturnRows(sqlmock.NewRows([]string{"borrower_name", "borrower_email", "borrower_phone", "pay_later_status"}).
				AddRow("Dina Katz", "dina@example.com", "+972501234567", nil))

		gw.On("CreateCustomer", mock.Anything, gateway.CustomerParams{
			Name: "Dina Katz", Email: "dina@example.com", Phone: "+972501234567",
		}).Return(&gateway.Customer{ID: "cus_1"}, nil)
		gw.On("CreateSetupIntent", mock.Anything, "cus_1").
			Return(&gateway.SetupIntent{ID: "seti_1", CustomerID: "cus_1", ClientSecret: "seti_1_secret"}, nil)

		dbMock.ExpectExec("UPDATE transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectCommit()
		dbMock.ExpectExec("INSERT INTO audit_log").
			WillReturnResult(sqlmock.NewResult(1, 1))

		result, err := service.CreateSetupIntent(context.Background(), "tx-1")
		assert.NoError(t, err)
		assert.Equal(t, "seti_1_secret", result.ClientSecret)
		assert.Len(t, result.RawToken, 64)
		assert.Contains(t, result.StatusURL, "/status/tx-1?token="+result.RawToken)
		gw.AssertExpectations(t)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("rejects a transaction already in the flow", func(t *testing.T) {
		service, dbMock, gw, cleanup := newPayLaterFixture(t)
		defer cleanup()

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT borrower_name, borrower_email").
			WithArgs("tx-1").
			WillReturnRows(sqlmock.NewRows([]string{"borrower_name", "borrower_email", "borrower_phone", "pay_later_status"}).
				AddRow("Dina Katz", "", "", domain.PayLaterCardSetupPending))
		dbMock.ExpectRollback()

		_, err := service.CreateSetupIntent(context.Background(), "tx-1")
		var transitionErr *domain.InvalidTransitionError
		assert.ErrorAs(t, err, &transitionErr)
		gw.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
	})
}

func TestPayLaterService_GetTransactionByToken(t *testing.T) {
	rawToken := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	storedHash := hashMagicToken(rawToken)

	statusRow := func(status string, expires time.Time) *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"item_description", "deposit_amount", "pay_later_status", "magic_token_hash", "magic_token_expires_at",
		}).AddRow("folding table", 2000, status, storedHash, expires)
	}

	t.Run("valid token returns borrower view", func(t *testing.T) {
		service, dbMock, _, cleanup := newPayLaterFixture(t)
		defer cleanup()

		dbMock.ExpectQuery("SELECT item_description, deposit_amount").
			WithArgs("tx-1").
			WillReturnRows(statusRow(domain.PayLaterCardSetupComplete, time.Now().Add(time.Hour)))

		status, err := service.GetTransactionByToken(context.Background(), "tx-1", rawToken)
		assert.NoError(t, err)
		assert.Equal(t, domain.PayLaterCardSetupComplete, status.Status)
		assert.Equal(t, "Card saved - awaiting approval", status.DisplayText)
	})

	t.Run("wrong token reads as not found", func(t *testing.T) {
		service, dbMock, _, cleanup := newPayLaterFixture(t)
		defer cleanup()

		dbMock.ExpectQuery("SELECT item_description, deposit_amount").
			WithArgs("tx-1").
			WillReturnRows(statusRow(domain.PayLaterCardSetupComplete, time.Now().Add(time.Hour)))

		_, err := service.GetTransactionByToken(context.Background(), "tx-1", "bbbb")
		assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
	})

	t.Run("expired token reads as not found and expires the request", func(t *testing.T) {
		service, dbMock, _, cleanup := newPayLaterFixture(t)
		defer cleanup()

		dbMock.ExpectQuery("SELECT item_description, deposit_amount").
			WithArgs("tx-1").
			WillReturnRows(statusRow(domain.PayLaterCardSetupPending, time.Now().Add(-time.Hour)))
		dbMock.ExpectExec("UPDATE transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))

		_, err := service.GetTransactionByToken(context.Background(), "tx-1", rawToken)
		assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("expired token past setup does not rewrite a terminal state", func(t *testing.T) {
		service, dbMock, _, cleanup := newPayLaterFixture(t)
		defer cleanup()

		dbMock.ExpectQuery("SELECT item_description, deposit_amount").
			WithArgs("tx-1").
			WillReturnRows(statusRow(domain.PayLaterCharged, time.Now().Add(-time.Hour)))

		_, err := service.GetTransactionByToken(context.Background(), "tx-1", rawToken)
		assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestPayLaterService_HandleSetupSucceeded(t *testing.T) {
	t.Run("stores payment method and advances", func(t *testing.T) {
		service, dbMock, gw, cleanup := newPayLaterFixture(t)
		defer cleanup()

		dbMock.ExpectQuery("SELECT id, gateway_customer_id").
			WithArgs("seti_1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "gateway_customer_id", "pay_later_status"}).
				AddRow("tx-1", "cus_1", domain.PayLaterCardSetupPending))

		gw.On("SetDefaultPaymentMethod", mock.Anything, "cus_1", "pm_1").Return(nil)

		dbMock.ExpectExec("UPDATE transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := service.HandleSetupSucceeded(context.Background(), "seti_1", "pm_1")
		assert.NoError(t, err)
		gw.AssertExpectations(t)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("redelivery is a no-op", func(t *testing.T) {
		service, dbMock, gw, cleanup := newPayLaterFixture(t)
		defer cleanup()

		dbMock.ExpectQuery("SELECT id, gateway_customer_id").
			WithArgs("seti_1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "gateway_customer_id", "pay_later_status"}).
				AddRow("tx-1", "cus_1", domain.PayLaterCardSetupComplete))

		err := service.HandleSetupSucceeded(context.Background(), "seti_1", "pm_1")
		assert.NoError(t, err)
		gw.AssertNotCalled(t, "SetDefaultPaymentMethod", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestPayLaterService_ChargeTransaction(t *testing.T) {
	chargeRow := func(status string) *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"location_id", "deposit_amount", "pay_later_status", "gateway_customer_id", "payment_method_id",
		}).AddRow("loc-1", 2000, status, "cus_1", "pm_1")
	}
	actor := auth.Context{Role: domain.RoleAdmin, UserID: "admin-1"}

	expectAttemptMark := func(dbMock sqlmock.Sqlmock, status string) {
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT location_id, deposit_amount, pay_later_status").
			WithArgs("tx-1").
			WillReturnRows(chargeRow(status))
		dbMock.ExpectExec("UPDATE transactions SET pay_later_status").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectCommit()
	}

	t.Run("successful charge", func(t *testing.T) {
		service, dbMock, gw, cleanup := newPayLaterFixture(t)
		defer cleanup()

		expectAttemptMark(dbMock, domain.PayLaterApproved)

		gw.On("ConfirmOffSession", mock.Anything, mock.MatchedBy(func(p gateway.OffSessionChargeParams) bool {
			return p.IdempotencyKey == "tx-1_charge_1" && p.Amount == 2000 && p.CustomerID == "cus_1"
		})).Return(&gateway.PaymentIntent{ID: "pi_9", Status: gateway.IntentSucceeded}, nil)

		dbMock.ExpectExec("INSERT INTO payments").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("UPDATE transactions SET pay_later_status").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO audit_log").
			WillReturnResult(sqlmock.NewResult(1, 1))

		outcome, err := service.ChargeTransaction(context.Background(), "tx-1", actor)
		assert.NoError(t, err)
		assert.Equal(t, domain.PayLaterCharged, outcome.Status)
		assert.Empty(t, outcome.FailureCode)
		gw.AssertExpectations(t)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("charge requiring 3DS parks in requires action", func(t *testing.T) {
		service, dbMock, gw, cleanup := newPayLaterFixture(t)
		defer cleanup()

		expectAttemptMark(dbMock, domain.PayLaterApproved)

		gw.On("ConfirmOffSession", mock.Anything, mock.Anything).
			Return(&gateway.PaymentIntent{ID: "pi_9", Status: gateway.IntentRequiresAction, ClientSecret: "pi_9_secret"}, nil)

		dbMock.ExpectExec("INSERT INTO payments").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("UPDATE transactions SET pay_later_status").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO audit_log").
			WillReturnResult(sqlmock.NewResult(1, 1))

		outcome, err := service.ChargeTransaction(context.Background(), "tx-1", actor)
		assert.NoError(t, err)
		assert.Equal(t, domain.PayLaterChargeRequiresAction, outcome.Status)
	})

	t.Run("declined card settles as failed without an error", func(t *testing.T) {
		service, dbMock, gw, cleanup := newPayLaterFixture(t)
		defer cleanup()

		expectAttemptMark(dbMock, domain.PayLaterApproved)

		gw.On("ConfirmOffSession", mock.Anything, mock.Anything).
			Return(nil, &gateway.Error{Code: "card_declined", Message: "Your card was declined."})

		dbMock.ExpectExec("INSERT INTO payments").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("UPDATE transactions SET pay_later_status").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO audit_log").
			WillReturnResult(sqlmock.NewResult(1, 1))

		outcome, err := service.ChargeTransaction(context.Background(), "tx-1", actor)
		assert.NoError(t, err)
		assert.Equal(t, domain.PayLaterChargeFailed, outcome.Status)
		assert.Equal(t, "card_declined", outcome.FailureCode)
	})

	t.Run("charge without a saved payment method is rejected", func(t *testing.T) {
		service, dbMock, gw, cleanup := newPayLaterFixture(t)
		defer cleanup()

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT location_id, deposit_amount, pay_later_status").
			WithArgs("tx-1").
			WillReturnRows(sqlmock.NewRows([]string{
				"location_id", "deposit_amount", "pay_later_status", "gateway_customer_id", "payment_method_id",
			}).AddRow("loc-1", 2000, domain.PayLaterApproved, "cus_1", nil))
		dbMock.ExpectRollback()

		_, err := service.ChargeTransaction(context.Background(), "tx-1", actor)
		var validationErr *domain.ValidationError
		assert.ErrorAs(t, err, &validationErr)
		gw.AssertNotCalled(t, "ConfirmOffSession", mock.Anything, mock.Anything)
	})

	t.Run("charge before card setup is rejected", func(t *testing.T) {
		service, dbMock, gw, cleanup := newPayLaterFixture(t)
		defer cleanup()

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT location_id, deposit_amount, pay_later_status").
			WithArgs("tx-1").
			WillReturnRows(chargeRow(domain.PayLaterCardSetupPending))
		dbMock.ExpectRollback()

		_, err := service.ChargeTransaction(context.Background(), "tx-1", actor)
		var transitionErr *domain.InvalidTransitionError
		assert.ErrorAs(t, err, &transitionErr)
		gw.AssertNotCalled(t, "ConfirmOffSession", mock.Anything, mock.Anything)
	})

	t.Run("borrower may not charge", func(t *testing.T) {
		service, _, _, cleanup := newPayLaterFixture(t)
		defer cleanup()

		_, err := service.ChargeTransaction(context.Background(), "tx-1", auth.Context{Role: domain.RoleBorrower})
		var authErr *auth.AuthorizationError
		assert.ErrorAs(t, err, &authErr)
	})
}

func TestPayLaterService_DeclineTransaction(t *testing.T) {
	t.Run("declines a setup-phase request", func(t *testing.T) {
		service, dbMock, _, cleanup := newPayLaterFixture(t)
		defer cleanup()

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT location_id, pay_later_status").
			WithArgs("tx-1").
			WillReturnRows(sqlmock.NewRows([]string{"location_id", "pay_later_status"}).
				AddRow("loc-1", domain.PayLaterCardSetupComplete))
		dbMock.ExpectExec("UPDATE transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectCommit()
		dbMock.ExpectExec("INSERT INTO audit_log").
			WillReturnResult(sqlmock.NewResult(1, 1))

		actor := auth.Context{Role: domain.RoleOperator, UserID: "op-1", UserLocationID: "loc-1"}
		err := service.DeclineTransaction(context.Background(), "tx-1", actor)
		assert.NoError(t, err)
	})

	t.Run("cannot decline a charged request", func(t *testing.T) {
		service, dbMock, _, cleanup := newPayLaterFixture(t)
		defer cleanup()

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT location_id, pay_later_status").
			WithArgs("tx-1").
			WillReturnRows(sqlmock.NewRows([]string{"location_id", "pay_later_status"}).
				AddRow("loc-1", domain.PayLaterCharged))
		dbMock.ExpectRollback()

		actor := auth.Context{Role: domain.RoleAdmin, UserID: "admin-1"}
		err := service.DeclineTransaction(context.Background(), "tx-1", actor)
		var transitionErr *domain.InvalidTransitionError
		assert.ErrorAs(t, err, &transitionErr)
	})
}

func TestPayLaterService_SettleAsyncCharge(t *testing.T) {
	t.Run("late success after 3DS", func(t *testing.T) {
		service, dbMock, _, cleanup := newPayLaterFixture(t)
		defer cleanup()

		dbMock.ExpectQuery("SELECT id, pay_later_status").
			WithArgs("pi_9").
			WillReturnRows(sqlmock.NewRows([]string{"id", "pay_later_status"}).
				AddRow("tx-1", domain.PayLaterChargeRequiresAction))
		dbMock.ExpectExec("UPDATE transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("UPDATE payments").
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := service.HandleChargeSucceeded(context.Background(), "pi_9")
		assert.NoError(t, err)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("step-up reported by webhook parks the attempt", func(t *testing.T) {
		service, dbMock, _, cleanup := newPayLaterFixture(t)
		defer cleanup()

		dbMock.ExpectQuery("SELECT id, pay_later_status").
			WithArgs("pi_9").
			WillReturnRows(sqlmock.NewRows([]string{"id", "pay_later_status"}).
				AddRow("tx-1", domain.PayLaterChargeAttempted))
		dbMock.ExpectExec("UPDATE transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("UPDATE payments").
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := service.HandleChargeRequiresAction(context.Background(), "pi_9")
		assert.NoError(t, err)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("redelivered step-up event is ignored", func(t *testing.T) {
		service, dbMock, _, cleanup := newPayLaterFixture(t)
		defer cleanup()

		dbMock.ExpectQuery("SELECT id, pay_later_status").
			WithArgs("pi_9").
			WillReturnRows(sqlmock.NewRows([]string{"id", "pay_later_status"}).
				AddRow("tx-1", domain.PayLaterChargeRequiresAction))

		err := service.HandleChargeRequiresAction(context.Background(), "pi_9")
		assert.NoError(t, err)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("redelivered event for charged request is ignored", func(t *testing.T) {
		service, dbMock, _, cleanup := newPayLaterFixture(t)
		defer cleanup()

		dbMock.ExpectQuery("SELECT id, pay_later_status").
			WithArgs("pi_9").
			WillReturnRows(sqlmock.NewRows([]string{"id", "pay_later_status"}).
				AddRow("tx-1", domain.PayLaterCharged))

		err := service.HandleChargeSucceeded(context.Background(), "pi_9")
		assert.NoError(t, err)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}
