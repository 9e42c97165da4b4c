package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-commerce-backend/internal/apperr"
	"github.com/ariefcatur/go-commerce-backend/internal/payments"
)

// maxWebhookBody bounds the raw payload read for signature verification.
const maxWebhookBody = 1 << 16

type PaymentService interface {
	CreatePaymentIntent(ctx context.Context, userID uuid.UUID, in payments.CreateIntentInput) (*payments.IntentResult, error)
	GetPaymentIntent(ctx context.Context, id string) (*payments.Intent, error)
	ConfirmPaymentIntent(ctx context.Context, id string) (*payments.Intent, error)
	CreateRefund(ctx context.Context, intentID string, amount *decimal.Decimal) (*payments.Refund, error)
	ConstructWebhookEvent(payload []byte, signature string) (*payments.WebhookEvent, error)
	HandleWebhookEvent(ctx context.Context, ev *payments.WebhookEvent) error
}

type PaymentsHandler struct {
	Payments PaymentService
	Auth     *Auth
	Log      *logrus.Entry
}

type refundReq struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Route("/payments", func(r chi.Router) {
		r.Post("/webhook", h.webhook)
		r.With(h.Auth.RequireUser).Post("/create-intent", h.createIntent)
		r.With(h.Auth.RequireUser).Get("/{id}", h.getIntent)
		r.With(h.Auth.RequireUser).Post("/{id}/confirm", h.confirm)
		r.With(h.Auth.Require(RightManageOrders)).Post("/{id}/refund", h.refund)
	})
}

func (h *PaymentsHandler) createIntent(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	var in payments.CreateIntentInput
	if err := decode(r, &in); err != nil {
		writeError(w, h.Log, err)
		return
	}
	if !in.Amount.IsPositive() {
		writeError(w, h.Log, apperr.BadRequest(`"amount" must be greater than 0`))
		return
	}
	res, err := h.Payments.CreatePaymentIntent(r.Context(), uid, in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PaymentsHandler) getIntent(w http.ResponseWriter, r *http.Request) {
	pi, err := h.Payments.GetPaymentIntent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, pi)
}

func (h *PaymentsHandler) confirm(w http.ResponseWriter, r *http.Request) {
	pi, err := h.Payments.ConfirmPaymentIntent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, pi)
}

func (h *PaymentsHandler) refund(w http.ResponseWriter, r *http.Request) {
	var req refundReq
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, h.Log, err)
			return
		}
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		writeError(w, h.Log, apperr.BadRequest(`"amount" must be greater than 0`))
		return
	}
	ref, err := h.Payments.CreateRefund(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// webhook acknowledges every correctly signed event. Reconciliation misses
// are dead-lettered by the service rather than surfaced to the processor.
func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, h.Log, apperr.Wrap(http.StatusRequestEntityTooLarge, "Webhook payload too large", err))
		return
	}
	if err != nil {
		writeError(w, h.Log, apperr.Wrap(http.StatusBadRequest, "Invalid webhook payload", err))
		return
	}
	ev, err := h.Payments.ConstructWebhookEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if err := h.Payments.HandleWebhookEvent(r.Context(), ev); err != nil {
		h.Log.WithError(err).WithField("event_id", ev.ID).Error("webhook event lost")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
