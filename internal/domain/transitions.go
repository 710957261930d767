package domain

// PaymentTransitions defines the valid payment state transitions.
// The key is the current state, and the value is a slice of valid target states.
var PaymentTransitions = map[string][]string{
	PaymentPending: {
		PaymentConfirming,
		PaymentCompleted,
		PaymentFailed,
	},
	PaymentConfirming: {
		PaymentCompleted,
		PaymentFailed,
	},
	PaymentCompleted: {
		PaymentRefundPending,
		PaymentRefunded,
	},
	PaymentFailed: {
		PaymentPending, // retry
	},
	PaymentRefundPending: {
		PaymentRefunded,
		PaymentRefundFailed,
	},
	PaymentRefundFailed: {
		PaymentRefundPending, // retry
	},
	PaymentRefunded: {}, // terminal
}

// PayLaterTransitions defines the valid pay-later state transitions.
var PayLaterTransitions = map[string][]string{
	PayLaterCardSetupPending: {
		PayLaterCardSetupComplete,
		PayLaterDeclined,
		PayLaterExpired,
	},
	PayLaterCardSetupComplete: {
		PayLaterApproved,
		PayLaterChargeAttempted,
		PayLaterDeclined,
	},
	PayLaterApproved: {
		PayLaterChargeAttempted,
	},
	PayLaterChargeAttempted: {
		PayLaterCharged,
		PayLaterChargeRequiresAction,
		PayLaterChargeFailed,
	},
	PayLaterChargeRequiresAction: {
		PayLaterCharged,
		PayLaterChargeFailed,
	},
	PayLaterCharged:      {}, // terminal
	PayLaterChargeFailed: {}, // terminal
	PayLaterDeclined:     {}, // terminal
	PayLaterExpired:      {}, // terminal
}

// CanTransitionPayment checks if a payment may move from one state to another.
func CanTransitionPayment(from, to string) bool {
	return canTransition(PaymentTransitions, from, to)
}

// ValidatePaymentTransition returns an error if the payment transition is not allowed.
func ValidatePaymentTransition(from, to string) error {
	if !CanTransitionPayment(from, to) {
		return NewInvalidTransitionError("payment", from, to)
	}
	return nil
}

// CanTransitionPayLater checks if a pay-later transaction may move between states.
func CanTransitionPayLater(from, to string) bool {
	return canTransition(PayLaterTransitions, from, to)
}

// ValidatePayLaterTransition returns an error if the pay-later transition is not allowed.
func ValidatePayLaterTransition(from, to string) error {
	if !CanTransitionPayLater(from, to) {
		return NewInvalidTransitionError("pay-later", from, to)
	}
	return nil
}

// ValidateReturnTransition enforces the one-way returned flag on transactions.
// The only legal move is active -> returned; a returned transaction can never
// become active again, and a double return is rejected.
func ValidateReturnTransition(alreadyReturned bool) error {
	if alreadyReturned {
		return ErrAlreadyReturned
	}
	return nil
}

func canTransition(table map[string][]string, from, to string) bool {
	allowed, exists := table[from]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
