package inbound

import (
	"context"
	"time"

	kafkax "github.com/ariefcatur/go-live-orders/internal/kafka"
	"github.com/ariefcatur/go-live-orders/internal/orders"
	"github.com/ariefcatur/go-live-orders/internal/phone"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// Producer is the part of kafka.Producer the publisher needs.
type Producer interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Publisher wraps domain events in envelopes and hands them to one
// producer per topic. A nil producer drops that event kind.
type Publisher struct {
	Inbound  Producer // whatsapp.inbound.message
	Items    Producer // order.item.added
	Payments Producer // order.payment.confirmed
	Outbound Producer // whatsapp.outbound.requested
	Service  string
}

var (
	_ orders.Events   = (*Publisher)(nil)
	_ orders.Notifier = (*Publisher)(nil)
)

func (p *Publisher) envelope(eventType, tenantID, correlation string, payload any) []byte {
	return kafkax.MustMarshal(orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.Service,
		CorrelationID: correlation,
		TenantID:      tenantID,
		Payload:       kafkax.MustMarshal(payload),
	})
}

// PublishInbound queues a customer message for reconciliation. source is
// "webhook" or "whatsapp".
func (p *Publisher) PublishInbound(_ context.Context, source string, msg orders.InboundMessage) error {
	if p.Inbound == nil {
		return nil
	}
	customer := phone.ToStorageForm(msg.CustomerPhone)
	key := orders.CustomerPartitionKey(msg.TenantID, customer)
	payload := orders.InboundMessagePayload{InboundMessage: msg, ReceivedAt: time.Now().UTC(), Source: source}
	p.Inbound.Publish(key, p.envelope(orders.EventInboundMessage, msg.TenantID, string(key), payload),
		kafkax.EventHeaders(orders.EventInboundMessage, 1)...)
	return nil
}

func (p *Publisher) ItemAdded(_ context.Context, tenantID string, e orders.ItemAddedPayload) {
	if p.Items == nil {
		return
	}
	p.Items.Publish(orders.PartitionKey(e.OrderID), p.envelope(orders.EventItemAdded, tenantID, e.OrderID, e),
		kafkax.EventHeaders(orders.EventItemAdded, 1)...)
}

func (p *Publisher) PaymentConfirmed(_ context.Context, tenantID string, e orders.PaymentConfirmedPayload) {
	if p.Payments == nil {
		return
	}
	p.Payments.Publish(orders.PartitionKey(e.OrderID), p.envelope(orders.EventPaymentConfirmed, tenantID, e.OrderID, e),
		kafkax.EventHeaders(orders.EventPaymentConfirmed, 1)...)
}

// Notify asks the worker that owns the WhatsApp sessions to deliver body.
func (p *Publisher) Notify(_ context.Context, tenantID, recipient, body string) error {
	if p.Outbound == nil {
		return nil
	}
	key := orders.CustomerPartitionKey(tenantID, recipient)
	payload := orders.OutboundRequestedPayload{Recipient: recipient, Body: body}
	p.Outbound.Publish(key, p.envelope(orders.EventOutboundRequested, tenantID, string(key), payload),
		kafkax.EventHeaders(orders.EventOutboundRequested, 1)...)
	return nil
}
