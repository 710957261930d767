package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gemachnet/backend/internal/domain"
	"github.com/gemachnet/backend/internal/gateway"
	"github.com/gemachnet/backend/internal/services"
)

// WebhookHandler receives asynchronous events from the card processor and
// dispatches them to the flow the referenced object belongs to. The provider
// redelivers on non-2xx, so unknown objects return 200 to stop the retries.
type WebhookHandler struct {
	deposits *services.DepositService
	payLater *services.PayLaterService
}

func NewWebhookHandler(deposits *services.DepositService, payLater *services.PayLaterService) *WebhookHandler {
	return &WebhookHandler{deposits: deposits, payLater: payLater}
}

type gatewayEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			PaymentMethod string `json:"payment_method"`
			FailureCode   string `json:"failure_code"`
		} `json:"object"`
	} `json:"data"`
}

// HandleEvent processes a gateway webhook delivery
// @Summary Gateway webhook receiver
// @Description Receive setup and payment intent events from the card processor
// @Tags webhooks
// @Accept json
// @Produce json
// @Param event body object true "Gateway event"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Router /webhooks/gateway [post]
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)

	var event gatewayEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		services.SendErrorResponse(w, "Invalid event payload", http.StatusBadRequest, nil)
		return
	}

	log.Printf("[WEBHOOK] Received %s for %s", event.Type, event.Data.Object.ID)

	var err error
	switch event.Type {
	case "setup_intent.succeeded":
		err = h.payLater.HandleSetupSucceeded(r.Context(), event.Data.Object.ID, event.Data.Object.PaymentMethod)
	case "payment_intent.succeeded":
		err = h.settlePaymentIntent(r, event, true)
	case "payment_intent.payment_failed":
		err = h.settlePaymentIntent(r, event, false)
	case "payment_intent.requires_action":
		// Only deferred charges can need a step-up; immediate card payments
		// resolve requires_action in the client before the webhook fires.
		err = h.payLater.HandleChargeRequiresAction(r.Context(), event.Data.Object.ID)
	default:
		log.Printf("[WEBHOOK] Ignoring event type %s", event.Type)
	}

	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) || errors.Is(err, domain.ErrPaymentNotFound) {
			// Nothing here references the object; retrying will not help.
			log.Printf("[WEBHOOK] No local record for %s, acknowledging", event.Data.Object.ID)
			writeJSON(w, http.StatusOK, map[string]string{"received": "true"})
			return
		}
		log.Printf("[WEBHOOK] Processing failed for %s: %v", event.Data.Object.ID, err)
		services.SendErrorResponse(w, "Event processing failed", http.StatusInternalServerError, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"received": "true"})
}

// settlePaymentIntent routes a payment_intent event. Deferred charges are
// keyed by payment_intent_id on the transaction; immediate card payments by
// provider_ref on the payment row. The deferred flow is tried first.
func (h *WebhookHandler) settlePaymentIntent(r *http.Request, event gatewayEvent, succeeded bool) error {
	var err error
	if succeeded {
		err = h.payLater.HandleChargeSucceeded(r.Context(), event.Data.Object.ID)
	} else {
		err = h.payLater.HandleChargeFailed(r.Context(), event.Data.Object.ID, event.Data.Object.FailureCode)
	}
	if !errors.Is(err, domain.ErrTransactionNotFound) {
		return err
	}

	status := gateway.IntentSucceeded
	if !succeeded {
		status = event.Data.Object.Status
	}
	return h.deposits.HandleGatewayWebhook(r.Context(), event.Data.Object.ID, status)
}
