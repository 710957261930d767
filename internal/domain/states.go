// Package domain contains the pure lifecycle rules for deposit payments:
// state constants, the legal transition graphs and refund eligibility.
// Nothing in this package touches storage or the network.
package domain

// Payment states as string constants
const (
	PaymentPending       = "pending"
	PaymentConfirming    = "confirming"
	PaymentCompleted     = "completed"
	PaymentFailed        = "failed"
	PaymentRefundPending = "refund_pending"
	PaymentRefunded      = "refunded"
	PaymentRefundFailed  = "refund_failed"
)

// Payment methods
const (
	MethodCash         = "cash"
	MethodCard         = "card"
	MethodCardDeferred = "card_deferred"
)

// Pay-later states for deferred-charge transactions
const (
	PayLaterCardSetupPending      = "CARD_SETUP_PENDING"
	PayLaterCardSetupComplete     = "CARD_SETUP_COMPLETE"
	PayLaterApproved              = "APPROVED"
	PayLaterChargeAttempted       = "CHARGE_ATTEMPTED"
	PayLaterCharged               = "CHARGED"
	PayLaterChargeRequiresAction  = "CHARGE_REQUIRES_ACTION"
	PayLaterChargeFailed          = "CHARGE_FAILED"
	PayLaterDeclined              = "DECLINED"
	PayLaterExpired               = "EXPIRED"
)

// Item condition codes reported at return time
const (
	ConditionGood    = "good"
	ConditionDamaged = "damaged"
	ConditionMissing = "missing"
)

// Roles
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleBorrower = "borrower"
)

// payLaterDisplayText maps pay-later states to the text shown to borrowers
// on the public status page. Operators see the raw failure reason separately.
var payLaterDisplayText = map[string]string{
	PayLaterCardSetupPending:     "Waiting for your card details",
	PayLaterCardSetupComplete:    "Card saved - awaiting approval",
	PayLaterApproved:             "Approved",
	PayLaterChargeAttempted:      "Processing your deposit",
	PayLaterCharged:              "Deposit charged",
	PayLaterChargeRequiresAction: "Additional verification needed",
	PayLaterChargeFailed:         "Deposit charge failed",
	PayLaterDeclined:             "Request declined",
	PayLaterExpired:              "Request expired",
}

// DisplayText returns the borrower-facing description of a pay-later state.
func DisplayText(state string) string {
	if text, ok := payLaterDisplayText[state]; ok {
		return text
	}
	return "Unknown status"
}
