package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkax "github.com/ariefcatur/go-live-orders/internal/kafka"
	"github.com/ariefcatur/go-live-orders/internal/orders"
	"github.com/ariefcatur/go-live-orders/internal/outbound"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEngine struct{ mock.Mock }

func (m *mockEngine) ProcessInboundMessage(ctx context.Context, msg orders.InboundMessage) ([]orders.CodeResult, error) {
	args := m.Called(ctx, msg)
	res, _ := args.Get(0).([]orders.CodeResult)
	return res, args.Error(1)
}

type memDedup struct {
	seen     map[string]bool
	released []string
	err      error
}

func newMemDedup() *memDedup { return &memDedup{seen: map[string]bool{}} }

func (d *memDedup) Claim(_ context.Context, key string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *memDedup) Release(_ context.Context, key string) error {
	delete(d.seen, key)
	d.released = append(d.released, key)
	return nil
}

type captureProducer struct{ msgs []kafkago.Message }

func (c *captureProducer) Publish(key, value []byte, headers ...kafkago.Header) {
	c.msgs = append(c.msgs, kafkago.Message{Key: key, Value: value, Headers: headers})
}

type queued struct {
	tenantID string
	job      outbound.Job
}

type fakeQueue struct{ jobs []queued }

func (q *fakeQueue) Enqueue(tenantID string, job outbound.Job) outbound.Job {
	job.ID = "job-1"
	q.jobs = append(q.jobs, queued{tenantID, job})
	return job
}

func inboundMessage(t *testing.T, msg orders.InboundMessage) kafkago.Message {
	t.Helper()
	prod := &captureProducer{}
	pub := &Publisher{Inbound: prod, Service: "test"}
	require.NoError(t, pub.PublishInbound(context.Background(), "webhook", msg))
	require.Len(t, prod.msgs, 1)
	return prod.msgs[0]
}

func TestHandleInboundMessage_ProcessesOnce(t *testing.T) {
	eng := &mockEngine{}
	dedup := newMemDedup()
	svc := &Service{Engine: eng, Dedup: dedup}

	msg := orders.InboundMessage{TenantID: "t1", MessageID: "wamid.1", CustomerPhone: "5531999990000", Text: "C10"}
	eng.On("ProcessInboundMessage", mock.Anything, msg).Return([]orders.CodeResult{{Code: "C10", Success: true}}, nil).Once()

	m := inboundMessage(t, msg)
	require.NoError(t, svc.HandleInboundMessage(context.Background(), m))
	require.NoError(t, svc.HandleInboundMessage(context.Background(), m))

	eng.AssertExpectations(t)
	assert.True(t, dedup.seen["dedup:inbound:t1:wamid.1"])
}

func TestHandleInboundMessage_ReleasesClaimOnFailure(t *testing.T) {
	eng := &mockEngine{}
	dedup := newMemDedup()
	svc := &Service{Engine: eng, Dedup: dedup}

	msg := orders.InboundMessage{TenantID: "t1", MessageID: "wamid.2", CustomerPhone: "31999990000", Text: "C1"}
	boom := errors.New("connection reset")
	eng.On("ProcessInboundMessage", mock.Anything, msg).Return(nil, boom).Once()

	err := svc.HandleInboundMessage(context.Background(), inboundMessage(t, msg))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"dedup:inbound:t1:wamid.2"}, dedup.released)
}

func TestHandleInboundMessage_UnknownTenantIsDropped(t *testing.T) {
	eng := &mockEngine{}
	svc := &Service{Engine: eng, Dedup: newMemDedup()}

	msg := orders.InboundMessage{TenantID: "ghost", CustomerPhone: "31999990000", Text: "C1"}
	eng.On("ProcessInboundMessage", mock.Anything, msg).Return(nil, orders.ErrTenantNotFound)

	assert.NoError(t, svc.HandleInboundMessage(context.Background(), inboundMessage(t, msg)))
}

func TestHandleInboundMessage_IgnoresGarbageAndOtherEvents(t *testing.T) {
	eng := &mockEngine{}
	svc := &Service{Engine: eng, Dedup: newMemDedup()}

	assert.NoError(t, svc.HandleInboundMessage(context.Background(), kafkago.Message{Value: []byte("{")}))

	other := kafkax.MustMarshal(orders.Envelope{EventType: orders.EventItemAdded, Payload: json.RawMessage(`{}`)})
	assert.NoError(t, svc.HandleInboundMessage(context.Background(), kafkago.Message{Value: other}))

	eng.AssertNotCalled(t, "ProcessInboundMessage", mock.Anything, mock.Anything)
}

func TestHandleInboundMessage_DedupErrorIsRetried(t *testing.T) {
	eng := &mockEngine{}
	dedup := newMemDedup()
	dedup.err = errors.New("redis down")
	svc := &Service{Engine: eng, Dedup: dedup}

	err := svc.HandleInboundMessage(context.Background(), inboundMessage(t, orders.InboundMessage{TenantID: "t1", MessageID: "m", Text: "C1"}))
	assert.ErrorContains(t, err, "redis down")
}

func TestHandleOutboundRequested(t *testing.T) {
	prod := &captureProducer{}
	pub := &Publisher{Outbound: prod, Service: "api"}
	require.NoError(t, pub.Notify(context.Background(), "t1", "553199990000", "Pagamento confirmado"))
	require.Len(t, prod.msgs, 1)

	q := &fakeQueue{}
	svc := &Service{Dedup: newMemDedup(), Outbound: q}
	require.NoError(t, svc.HandleOutboundRequested(context.Background(), prod.msgs[0]))
	// Redelivery of the same event is not queued twice.
	require.NoError(t, svc.HandleOutboundRequested(context.Background(), prod.msgs[0]))

	require.Len(t, q.jobs, 1)
	assert.Equal(t, "t1", q.jobs[0].tenantID)
	assert.Equal(t, "553199990000", q.jobs[0].job.Recipient)
	assert.Nil(t, q.jobs[0].job.DelayAfter)
}

func TestHandleOutboundRequested_ExplicitDelay(t *testing.T) {
	zero := 0
	env := orders.Envelope{
		EventID:   "ev-9",
		EventType: orders.EventOutboundRequested,
		TenantID:  "t1",
		Payload:   kafkax.MustMarshal(orders.OutboundRequestedPayload{Recipient: "5511", Body: "oi", DelayAfterMs: &zero}),
	}
	q := &fakeQueue{}
	svc := &Service{Dedup: newMemDedup(), Outbound: q}

	require.NoError(t, svc.HandleOutboundRequested(context.Background(), kafkago.Message{Value: kafkax.MustMarshal(env)}))

	require.Len(t, q.jobs, 1)
	require.NotNil(t, q.jobs[0].job.DelayAfter)
	assert.Equal(t, time.Duration(0), *q.jobs[0].job.DelayAfter)
}

func TestPublisher_EventsAreEnveloped(t *testing.T) {
	items, payments := &captureProducer{}, &captureProducer{}
	pub := &Publisher{Items: items, Payments: payments, Service: "worker"}

	pub.ItemAdded(context.Background(), "t1", orders.ItemAddedPayload{OrderID: "o-1", Code: "C1", Qty: 2})
	pub.PaymentConfirmed(context.Background(), "t1", orders.PaymentConfirmedPayload{OrderID: "o-1", PaymentRef: "mp"})

	require.Len(t, items.msgs, 1)
	assert.Equal(t, []byte("o-1"), items.msgs[0].Key)
	var env orders.Envelope
	require.NoError(t, json.Unmarshal(items.msgs[0].Value, &env))
	assert.Equal(t, orders.EventItemAdded, env.EventType)
	assert.Equal(t, "t1", env.TenantID)
	assert.Equal(t, "worker", env.Producer)
	assert.NotEmpty(t, env.EventID)

	p, err := kafkax.UnwrapPayload[orders.ItemAddedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Qty)

	require.Len(t, payments.msgs, 1)
}

func TestPublisher_InboundKeyedByCustomer(t *testing.T) {
	prod := &captureProducer{}
	pub := &Publisher{Inbound: prod}
	require.NoError(t, pub.PublishInbound(context.Background(), "whatsapp", orders.InboundMessage{TenantID: "t1", CustomerPhone: "+55 (31) 99999-0000"}))
	assert.Equal(t, []byte("t1:31999990000"), prod.msgs[0].Key)

	// Missing producers are a no-op.
	empty := &Publisher{}
	assert.NoError(t, empty.Notify(context.Background(), "t1", "55", "x"))
	empty.ItemAdded(context.Background(), "t1", orders.ItemAddedPayload{})
}
