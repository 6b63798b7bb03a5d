package inbound

import (
	"context"
	"errors"
	"time"

	kafkax "github.com/ariefcatur/go-live-orders/internal/kafka"
	"github.com/ariefcatur/go-live-orders/internal/orders"
	"github.com/ariefcatur/go-live-orders/internal/outbound"
	"github.com/ariefcatur/go-live-orders/internal/redisx"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"
)

type Reconciler interface {
	ProcessInboundMessage(ctx context.Context, msg orders.InboundMessage) ([]orders.CodeResult, error)
}

type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type Enqueuer interface {
	Enqueue(tenantID string, job outbound.Job) outbound.Job
}

// Service consumes the worker's topics.
type Service struct {
	Engine   Reconciler
	Dedup    Deduper
	Outbound Enqueuer
}

// HandleInboundMessage is the consumer handler for customer messages.
func (s *Service) HandleInboundMessage(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		log.Error().Err(err).Int64("offset", m.Offset).Msg("inbound: dropping undecodable message")
		return nil
	}
	if env.EventType != orders.EventInboundMessage {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.InboundMessagePayload](env.Payload)
	if err != nil {
		log.Error().Err(err).Str("event_id", env.EventID).Msg("inbound: dropping undecodable payload")
		return nil
	}
	msg := p.InboundMessage
	if msg.TenantID == "" {
		msg.TenantID = env.TenantID
	}
	logger := log.With().Str("tenant_id", msg.TenantID).Str("message_id", msg.MessageID).Str("source", p.Source).Logger()

	// Webhook retries and whatsmeow redelivery both reuse the message id.
	var dedupKey string
	if msg.MessageID != "" {
		dedupKey = redisx.InboundKey(msg.TenantID, msg.MessageID)
		fresh, err := s.Dedup.Claim(ctx, dedupKey)
		if err != nil {
			return err
		}
		if !fresh {
			logger.Debug().Msg("inbound: duplicate message skipped")
			return nil
		}
	}

	results, err := s.Engine.ProcessInboundMessage(ctx, msg)
	if err != nil {
		if errors.Is(err, orders.ErrTenantNotFound) {
			logger.Warn().Msg("inbound: message for unknown tenant dropped")
			return nil
		}
		if dedupKey != "" {
			if rerr := s.Dedup.Release(context.WithoutCancel(ctx), dedupKey); rerr != nil {
				logger.Warn().Err(rerr).Msg("inbound: failed to release dedup key")
			}
		}
		return err
	}

	added := 0
	for _, r := range results {
		if r.Success {
			added++
		}
	}
	logger.Info().
		Int("codes", len(results)).
		Int("added", added).
		Dur("lag", time.Since(p.ReceivedAt)).
		Msg("inbound: message reconciled")
	return nil
}

// HandleOutboundRequested queues messages requested by other processes.
func (s *Service) HandleOutboundRequested(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		log.Error().Err(err).Int64("offset", m.Offset).Msg("inbound: dropping undecodable message")
		return nil
	}
	if env.EventType != orders.EventOutboundRequested {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.OutboundRequestedPayload](env.Payload)
	if err != nil {
		log.Error().Err(err).Str("event_id", env.EventID).Msg("inbound: dropping undecodable payload")
		return nil
	}
	if p.Recipient == "" || p.Body == "" {
		log.Warn().Str("event_id", env.EventID).Msg("inbound: outbound request without recipient or body")
		return nil
	}

	fresh, err := s.Dedup.Claim(ctx, redisx.OutboundKey(env.EventID))
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	job := outbound.Job{Recipient: p.Recipient, Body: p.Body}
	if p.DelayAfterMs != nil {
		job.DelayAfter = outbound.Delay(time.Duration(*p.DelayAfterMs) * time.Millisecond)
	}
	j := s.Outbound.Enqueue(env.TenantID, job)
	log.Debug().Str("tenant_id", env.TenantID).Str("job_id", j.ID).Msg("inbound: outbound request queued")
	return nil
}
