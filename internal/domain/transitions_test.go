package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allPaymentStates = []string{
	PaymentPending,
	PaymentConfirming,
	PaymentCompleted,
	PaymentFailed,
	PaymentRefundPending,
	PaymentRefunded,
	PaymentRefundFailed,
}

func TestCanTransitionPayment(t *testing.T) {
	t.Run("allowed transitions", func(t *testing.T) {
		allowed := [][2]string{
			{PaymentPending, PaymentConfirming},
			{PaymentPending, PaymentCompleted},
			{PaymentPending, PaymentFailed},
			{PaymentConfirming, PaymentCompleted},
			{PaymentConfirming, PaymentFailed},
			{PaymentCompleted, PaymentRefundPending},
			{PaymentCompleted, PaymentRefunded},
			{PaymentFailed, PaymentPending},
			{PaymentRefundPending, PaymentRefunded},
			{PaymentRefundPending, PaymentRefundFailed},
			{PaymentRefundFailed, PaymentRefundPending},
		}

		for _, pair := range allowed {
			assert.True(t, CanTransitionPayment(pair[0], pair[1]),
				"expected %s -> %s to be allowed", pair[0], pair[1])
			assert.NoError(t, ValidatePaymentTransition(pair[0], pair[1]))
		}
	})

	t.Run("every pair outside the table is rejected", func(t *testing.T) {
		allowed := map[[2]string]bool{}
		for from, targets := range PaymentTransitions {
			for _, to := range targets {
				allowed[[2]string{from, to}] = true
			}
		}

		for _, from := range allPaymentStates {
			for _, to := range allPaymentStates {
				if allowed[[2]string{from, to}] {
					continue
				}
				assert.False(t, CanTransitionPayment(from, to),
					"expected %s -> %s to be rejected", from, to)
				err := ValidatePaymentTransition(from, to)
				assert.Error(t, err)

				var transitionErr *InvalidTransitionError
				assert.ErrorAs(t, err, &transitionErr)
				assert.Equal(t, from, transitionErr.From)
				assert.Equal(t, to, transitionErr.To)
			}
		}
	})

	t.Run("refunded is terminal", func(t *testing.T) {
		for _, to := range allPaymentStates {
			assert.False(t, CanTransitionPayment(PaymentRefunded, to))
		}
	})

	t.Run("unknown state is rejected", func(t *testing.T) {
		assert.False(t, CanTransitionPayment("bogus", PaymentCompleted))
		assert.False(t, CanTransitionPayment(PaymentPending, "bogus"))
	})
}

func TestCanTransitionPayLater(t *testing.T) {
	t.Run("setup flow", func(t *testing.T) {
		assert.True(t, CanTransitionPayLater(PayLaterCardSetupPending, PayLaterCardSetupComplete))
		assert.True(t, CanTransitionPayLater(PayLaterCardSetupComplete, PayLaterChargeAttempted))
		assert.True(t, CanTransitionPayLater(PayLaterChargeAttempted, PayLaterCharged))
		assert.True(t, CanTransitionPayLater(PayLaterChargeAttempted, PayLaterChargeRequiresAction))
		assert.True(t, CanTransitionPayLater(PayLaterChargeAttempted, PayLaterChargeFailed))
		assert.True(t, CanTransitionPayLater(PayLaterChargeRequiresAction, PayLaterCharged))
		assert.True(t, CanTransitionPayLater(PayLaterChargeRequiresAction, PayLaterChargeFailed))
	})

	t.Run("decline only from setup states", func(t *testing.T) {
		assert.True(t, CanTransitionPayLater(PayLaterCardSetupPending, PayLaterDeclined))
		assert.True(t, CanTransitionPayLater(PayLaterCardSetupComplete, PayLaterDeclined))
		assert.False(t, CanTransitionPayLater(PayLaterChargeAttempted, PayLaterDeclined))
		assert.False(t, CanTransitionPayLater(PayLaterCharged, PayLaterDeclined))
	})

	t.Run("terminal states have no exits", func(t *testing.T) {
		for _, terminal := range []string{PayLaterCharged, PayLaterChargeFailed, PayLaterDeclined, PayLaterExpired} {
			for to := range PayLaterTransitions {
				assert.False(t, CanTransitionPayLater(terminal, to),
					"expected %s -> %s to be rejected", terminal, to)
			}
		}
	})

	t.Run("cannot skip the charge attempt", func(t *testing.T) {
		assert.False(t, CanTransitionPayLater(PayLaterCardSetupComplete, PayLaterCharged))
		assert.False(t, CanTransitionPayLater(PayLaterCardSetupPending, PayLaterChargeAttempted))
	})
}

func TestValidateReturnTransition(t *testing.T) {
	assert.NoError(t, ValidateReturnTransition(false))
	assert.ErrorIs(t, ValidateReturnTransition(true), ErrAlreadyReturned)
}

func TestDisplayText(t *testing.T) {
	assert.Equal(t, "Deposit charged", DisplayText(PayLaterCharged))
	assert.Equal(t, "Unknown status", DisplayText("nonsense"))
}
