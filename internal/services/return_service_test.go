package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/gemachnet/backend/internal/auth"
	"github.com/gemachnet/backend/internal/domain"
	"github.com/gemachnet/backend/internal/retry"
)

func newReturnFixture(t *testing.T) (*ReturnService, sqlmock.Sqlmock, redismock.ClientMock, func()) {
	t.Helper()
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)

	redisClient, redisMock := redismock.NewClientMock()
	service := NewReturnService(db, redisClient, NewAuditLogger(db), retry.NewFailureRecorder(db), testEngineConfig())
	return service, dbMock, redisMock, func() { db.Close() }
}

func expectReturnValidation(dbMock sqlmock.Sqlmock, isReturned bool) {
	dbMock.ExpectQuery("SELECT location_id, borrower_name").
		WithArgs("tx-1").
		WillReturnRows(sqlmock.NewRows([]string{"location_id", "borrower_name", "deposit_amount", "is_returned"}).
			AddRow("loc-1", "Dina Katz", 2000, isReturned))
	if !isReturned {
		dbMock.ExpectQuery("SELECT id, provider_ref, method, status FROM payments").
			WithArgs("tx-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "provider_ref", "method", "status"}).
				AddRow("pay-1", "pi_123", "card", domain.PaymentCompleted))
	}
}

func expectPersistReturn(dbMock sqlmock.Sqlmock) {
	dbMock.ExpectBegin()
	dbMock.ExpectQuery("SELECT is_returned FROM transactions").
		WithArgs("tx-1").
		WillReturnRows(sqlmock.NewRows([]string{"is_returned"}).AddRow(false))
	dbMock.ExpectExec("UPDATE transactions SET is_returned").
		WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectExec("INSERT INTO payments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectExec("UPDATE payments SET status").
		WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectCommit()
}

func TestReturnService_ProcessItemReturn(t *testing.T) {
	adminActor := auth.Context{Role: domain.RoleAdmin, UserID: "admin-1"}

	t.Run("good condition refunds the full deposit", func(t *testing.T) {
		service, dbMock, redisMock, cleanup := newReturnFixture(t)
		defer cleanup()

		expectReturnValidation(dbMock, false)
		expectPersistReturn(dbMock)
		redisMock.Regexp().ExpectRPush(StockSyncQueue, `.*tx-1.*`).SetVal(1)
		dbMock.ExpectExec("INSERT INTO audit_log").
			WillReturnResult(sqlmock.NewResult(1, 1))

		result, err := service.ProcessItemReturn(context.Background(), ReturnRequest{TransactionID: "tx-1"}, adminActor)
		assert.NoError(t, err)
		assert.Equal(t, int64(2000), result.RefundAmount)
		assert.Equal(t, domain.ConditionGood, result.ItemCondition)
		assert.Equal(t, 1, result.Attempts)
		assert.NotEmpty(t, result.PaymentID)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("damaged item refunds half", func(t *testing.T) {
		service, dbMock, redisMock, cleanup := newReturnFixture(t)
		defer cleanup()

		expectReturnValidation(dbMock, false)
		expectPersistReturn(dbMock)
		redisMock.Regexp().ExpectRPush(StockSyncQueue, `.*damaged.*`).SetVal(1)
		dbMock.ExpectExec("INSERT INTO audit_log").
			WillReturnResult(sqlmock.NewResult(1, 1))

		result, err := service.ProcessItemReturn(context.Background(), ReturnRequest{
			TransactionID: "tx-1",
			ItemCondition: domain.ConditionDamaged,
		}, adminActor)
		assert.NoError(t, err)
		assert.Equal(t, int64(1000), result.RefundAmount)
	})

	t.Run("double return is rejected before any retry", func(t *testing.T) {
		service, dbMock, _, cleanup := newReturnFixture(t)
		defer cleanup()

		expectReturnValidation(dbMock, true)

		_, err := service.ProcessItemReturn(context.Background(), ReturnRequest{TransactionID: "tx-1"}, adminActor)
		assert.ErrorIs(t, err, domain.ErrAlreadyReturned)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("concurrent return losing the row lock is not retried", func(t *testing.T) {
		service, dbMock, _, cleanup := newReturnFixture(t)
		defer cleanup()

		expectReturnValidation(dbMock, false)
		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT is_returned FROM transactions").
			WithArgs("tx-1").
			WillReturnRows(sqlmock.NewRows([]string{"is_returned"}).AddRow(true))
		dbMock.ExpectRollback()
		dbMock.ExpectExec("INSERT INTO retry_failures").
			WillReturnResult(sqlmock.NewResult(1, 1))

		_, err := service.ProcessItemReturn(context.Background(), ReturnRequest{TransactionID: "tx-1"}, adminActor)
		assert.ErrorIs(t, err, domain.ErrAlreadyReturned)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("transient storage failure is retried", func(t *testing.T) {
		service, dbMock, redisMock, cleanup := newReturnFixture(t)
		defer cleanup()

		expectReturnValidation(dbMock, false)
		dbMock.ExpectBegin().WillReturnError(errors.New("connection reset"))
		expectPersistReturn(dbMock)
		redisMock.Regexp().ExpectRPush(StockSyncQueue, `.*tx-1.*`).SetVal(1)
		dbMock.ExpectExec("INSERT INTO audit_log").
			WillReturnResult(sqlmock.NewResult(1, 1))

		result, err := service.ProcessItemReturn(context.Background(), ReturnRequest{TransactionID: "tx-1"}, adminActor)
		assert.NoError(t, err)
		assert.Equal(t, 2, result.Attempts)
	})

	t.Run("exhausted retries leave a durable failure record", func(t *testing.T) {
		service, dbMock, _, cleanup := newReturnFixture(t)
		defer cleanup()

		expectReturnValidation(dbMock, false)
		for i := 0; i < 4; i++ {
			dbMock.ExpectBegin().WillReturnError(errors.New("connection reset"))
		}
		dbMock.ExpectExec("INSERT INTO retry_failures").
			WillReturnResult(sqlmock.NewResult(1, 1))

		_, err := service.ProcessItemReturn(context.Background(), ReturnRequest{TransactionID: "tx-1"}, adminActor)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "after 4 attempts")
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("borrower may not process returns", func(t *testing.T) {
		service, dbMock, _, cleanup := newReturnFixture(t)
		defer cleanup()

		dbMock.ExpectQuery("SELECT location_id, borrower_name").
			WithArgs("tx-1").
			WillReturnRows(sqlmock.NewRows([]string{"location_id", "borrower_name", "deposit_amount", "is_returned"}).
				AddRow("loc-1", "Dina Katz", 2000, false))

		_, err := service.ProcessItemReturn(context.Background(), ReturnRequest{TransactionID: "tx-1"},
			auth.Context{Role: domain.RoleBorrower, UserID: "u-1"})
		var authErr *auth.AuthorizationError
		assert.ErrorAs(t, err, &authErr)
	})

	t.Run("no completed payment means nothing to refund", func(t *testing.T) {
		service, dbMock, _, cleanup := newReturnFixture(t)
		defer cleanup()

		dbMock.ExpectQuery("SELECT location_id, borrower_name").
			WithArgs("tx-1").
			WillReturnRows(sqlmock.NewRows([]string{"location_id", "borrower_name", "deposit_amount", "is_returned"}).
				AddRow("loc-1", "Dina Katz", 2000, false))
		dbMock.ExpectQuery("SELECT id, provider_ref, method, status FROM payments").
			WithArgs("tx-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "provider_ref", "method", "status"}).
				AddRow("pay-1", "pi_123", "card", domain.PaymentFailed))

		_, err := service.ProcessItemReturn(context.Background(), ReturnRequest{TransactionID: "tx-1"}, adminActor)
		assert.ErrorIs(t, err, domain.ErrNoCompletedPayment)
	})
}

func TestReturnService_BulkProcessReturns(t *testing.T) {
	t.Run("operator may not run bulk returns", func(t *testing.T) {
		service, _, _, cleanup := newReturnFixture(t)
		defer cleanup()

		actor := auth.Context{Role: domain.RoleOperator, UserID: "op-1", UserLocationID: "loc-1"}
		_, err := service.BulkProcessReturns(context.Background(), []ReturnRequest{{TransactionID: "tx-1"}}, actor)
		var authErr *auth.AuthorizationError
		assert.ErrorAs(t, err, &authErr)
	})

	t.Run("failed item does not block the batch", func(t *testing.T) {
		service, dbMock, redisMock, cleanup := newReturnFixture(t)
		defer cleanup()

		expectReturnValidation(dbMock, false)
		expectPersistReturn(dbMock)
		redisMock.Regexp().ExpectRPush(StockSyncQueue, `.*tx-1.*`).SetVal(1)
		dbMock.ExpectExec("INSERT INTO audit_log").
			WillReturnResult(sqlmock.NewResult(1, 1))

		dbMock.ExpectQuery("SELECT location_id, borrower_name").
			WithArgs("tx-2").
			WillReturnRows(sqlmock.NewRows([]string{"location_id", "borrower_name", "deposit_amount", "is_returned"}).
				AddRow("loc-1", "Avi Mizrahi", 2000, true))

		actor := auth.Context{Role: domain.RoleAdmin, UserID: "admin-1"}
		report, err := service.BulkProcessReturns(context.Background(), []ReturnRequest{
			{TransactionID: "tx-1"},
			{TransactionID: "tx-2"},
		}, actor)
		assert.NoError(t, err)
		assert.Equal(t, 2, report.Total)
		assert.Equal(t, []string{"tx-1"}, report.Succeeded)
		assert.Len(t, report.Failed, 1)
		assert.Equal(t, "tx-2", report.Failed[0].ID)
	})
}
