package domain

import "strings"

// CanProcessRefund decides whether a transaction is eligible for a refund
// given its returned flag and the statuses of all of its payments. The
// conditions are checked in order and the first failure is surfaced:
//
//  1. the transaction must not already be returned,
//  2. at least one payment must be completed,
//  3. no refund may already be in flight or complete (refund_failed
//     does not block a fresh attempt).
func CanProcessRefund(isReturned bool, paymentStatuses []string) error {
	if isReturned {
		return ErrAlreadyReturned
	}

	hasCompleted := false
	for _, status := range paymentStatuses {
		if status == PaymentCompleted {
			hasCompleted = true
			break
		}
	}
	if !hasCompleted {
		return ErrNoCompletedPayment
	}

	for _, status := range paymentStatuses {
		if status != PaymentRefundFailed && strings.Contains(status, "refund") {
			return ErrRefundInProgress
		}
	}

	return nil
}

// CalculateRefundAmount computes the refund for a deposit based on the
// reported item condition. An empty condition is treated as good.
func CalculateRefundAmount(depositAmount int64, condition string) int64 {
	switch condition {
	case ConditionDamaged:
		return depositAmount / 2
	case ConditionMissing:
		return 0
	default:
		return depositAmount
	}
}

// ValidateRefundAmount checks a caller-supplied override against the deposit.
func ValidateRefundAmount(amount, depositAmount int64) error {
	if amount < 0 {
		return NewValidationError("refundAmount", "refund amount cannot be negative")
	}
	if amount > depositAmount {
		return NewValidationError("refundAmount", "refund amount cannot exceed the deposit")
	}
	return nil
}
