package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-live-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type InboundPublisher interface {
	PublishInbound(ctx context.Context, source string, msg orders.InboundMessage) error
}

type PaymentMarker interface {
	MarkOrderPaid(ctx context.Context, tenantID, orderID, paymentRef string) (*orders.Order, error)
}

// WebhookHandler accepts customer messages and payment confirmations from
// upstream gateways.
type WebhookHandler struct {
	Publisher InboundPublisher
	Payments  PaymentMarker
}

type MessageReq struct {
	MessageID     string            `json:"message_id"`
	CustomerPhone string            `json:"customer_phone" validate:"required,min=8"`
	Text          string            `json:"text" validate:"required"`
	Group         *orders.GroupMeta `json:"group,omitempty" validate:"omitempty"`
}

type PaymentReq struct {
	OrderID    string `json:"order_id" validate:"required,uuid"`
	PaymentRef string `json:"payment_ref"`
}

func (h *WebhookHandler) Register(r chi.Router) {
	r.Post("/webhooks/{tenantID}/messages", h.receiveMessage)
	r.Post("/webhooks/{tenantID}/payments", h.confirmPayment)
}

func (h *WebhookHandler) receiveMessage(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	var req MessageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if errs := validateStruct(req); errs != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "fields": errs})
		return
	}

	msg := orders.InboundMessage{
		TenantID:      tenantID,
		MessageID:     req.MessageID,
		CustomerPhone: req.CustomerPhone,
		Text:          req.Text,
		Group:         req.Group,
	}
	if err := h.Publisher.PublishInbound(r.Context(), "webhook", msg); err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("http: publish inbound message")
		writeError(w, http.StatusServiceUnavailable, "could not accept message")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *WebhookHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	var req PaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if errs := validateStruct(req); errs != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "fields": errs})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Payments.MarkOrderPaid(ctx, tenantID, req.OrderID, req.PaymentRef)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		log.Error().Err(err).Str("tenant_id", tenantID).Str("order_id", req.OrderID).Msg("http: mark order paid")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, o)
}
