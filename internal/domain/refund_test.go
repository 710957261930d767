package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanProcessRefund(t *testing.T) {
	t.Run("eligible with a completed payment", func(t *testing.T) {
		err := CanProcessRefund(false, []string{PaymentFailed, PaymentCompleted})
		assert.NoError(t, err)
	})

	t.Run("returned transaction is never eligible", func(t *testing.T) {
		// The returned flag wins regardless of payment states.
		err := CanProcessRefund(true, []string{PaymentCompleted})
		assert.ErrorIs(t, err, ErrAlreadyReturned)

		err = CanProcessRefund(true, nil)
		assert.ErrorIs(t, err, ErrAlreadyReturned)
	})

	t.Run("requires a completed payment", func(t *testing.T) {
		err := CanProcessRefund(false, []string{PaymentPending, PaymentFailed})
		assert.ErrorIs(t, err, ErrNoCompletedPayment)

		err = CanProcessRefund(false, nil)
		assert.ErrorIs(t, err, ErrNoCompletedPayment)
	})

	t.Run("refund already in flight blocks", func(t *testing.T) {
		err := CanProcessRefund(false, []string{PaymentCompleted, PaymentRefundPending})
		assert.ErrorIs(t, err, ErrRefundInProgress)

		err = CanProcessRefund(false, []string{PaymentCompleted, PaymentRefunded})
		assert.ErrorIs(t, err, ErrRefundInProgress)
	})

	t.Run("refund_failed does not block a retry", func(t *testing.T) {
		err := CanProcessRefund(false, []string{PaymentCompleted, PaymentRefundFailed})
		assert.NoError(t, err)
	})
}

func TestCalculateRefundAmount(t *testing.T) {
	assert.Equal(t, int64(2000), CalculateRefundAmount(2000, ConditionGood))
	assert.Equal(t, int64(2000), CalculateRefundAmount(2000, ""))
	assert.Equal(t, int64(1000), CalculateRefundAmount(2000, ConditionDamaged))
	assert.Equal(t, int64(0), CalculateRefundAmount(2000, ConditionMissing))
}

func TestValidateRefundAmount(t *testing.T) {
	assert.NoError(t, ValidateRefundAmount(0, 2000))
	assert.NoError(t, ValidateRefundAmount(2000, 2000))
	assert.Error(t, ValidateRefundAmount(-1, 2000))
	assert.Error(t, ValidateRefundAmount(2001, 2000))
}
