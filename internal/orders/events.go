package orders

import (
	"encoding/json"
	"time"
)

const (
	EventInboundMessage    = "InboundMessage"
	EventItemAdded         = "ItemAdded"
	EventPaymentConfirmed  = "PaymentConfirmed"
	EventOutboundRequested = "OutboundRequested"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // tenant:phone or order_id
	TenantID      string          `json:"tenant_id"`
	Payload       json.RawMessage `json:"payload"`
}

// ---- payloads ----

type InboundMessagePayload struct {
	InboundMessage
	ReceivedAt time.Time `json:"received_at"`
	Source     string    `json:"source"` // webhook | whatsapp
}

type ItemAddedPayload struct {
	OrderID        string    `json:"order_id"`
	CartID         string    `json:"cart_id"`
	CustomerPhone  string    `json:"customer_phone"`
	EventType      EventType `json:"event_type"`
	EventDate      string    `json:"event_date"` // YYYY-MM-DD
	ProductID      string    `json:"product_id"`
	Code           string    `json:"code"`
	Qty            int       `json:"qty"`
	UnitPriceCents Cents     `json:"unit_price_cents"`
	TotalCents     Cents     `json:"total_cents"`
}

type PaymentConfirmedPayload struct {
	OrderID    string `json:"order_id"`
	PaymentRef string `json:"payment_ref,omitempty"`
	TotalCents Cents  `json:"total_cents"`
}

// OutboundRequestedPayload asks the worker to queue a message for a
// customer. It is how processes without a WhatsApp session send.
type OutboundRequestedPayload struct {
	Recipient    string `json:"recipient"` // send form
	Body         string `json:"body"`
	DelayAfterMs *int   `json:"delay_after_ms,omitempty"`
}
