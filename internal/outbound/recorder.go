package outbound

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	MessageSent   = "SENT"
	MessageFailed = "FAILED"
)

// Message is a row of the delivery history shown to operators.
type Message struct {
	ID        string
	TenantID  string
	JobID     string
	Recipient string
	Body      string
	Status    string
	Attempts  int
	LastError string
	CreatedAt time.Time
}

type MessageLog interface {
	LogMessage(ctx context.Context, m Message) error
}

type MessageRepo struct{ DB *pgxpool.Pool }

func (r *MessageRepo) LogMessage(ctx context.Context, m Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO messages(id, tenant_id, job_id, recipient, body, status, attempts, last_error)
		VALUES ($1,$2,NULLIF($3,'')::uuid,$4,$5,$6,$7,NULLIF($8,''))`,
		m.ID, m.TenantID, m.JobID, m.Recipient, m.Body, m.Status, m.Attempts, m.LastError)
	if err != nil {
		return fmt.Errorf("insert message log: %w", err)
	}
	return nil
}

// Recorder writes delivery outcomes to a MessageLog. Logging failures never
// affect delivery.
type Recorder struct {
	Log MessageLog
}

// Wrap returns a SendFunc that records every successful send.
func (r *Recorder) Wrap(send SendFunc) SendFunc {
	return func(ctx context.Context, job Job) error {
		if err := send(ctx, job); err != nil {
			return err
		}
		r.record(context.WithoutCancel(ctx), job, MessageSent, job.Attempts+1)
		return nil
	}
}

// Failed fits Options.OnFailed.
func (r *Recorder) Failed(ctx context.Context, job Job) {
	r.record(context.WithoutCancel(ctx), job, MessageFailed, job.Attempts)
}

func (r *Recorder) record(ctx context.Context, job Job, status string, attempts int) {
	err := r.Log.LogMessage(ctx, Message{
		TenantID:  job.TenantID,
		JobID:     job.ID,
		Recipient: job.Recipient,
		Body:      job.Body,
		Status:    status,
		Attempts:  attempts,
		LastError: job.LastError,
	})
	if err != nil {
		log.Error().Err(err).Str("tenant_id", job.TenantID).Str("job_id", job.ID).Msg("outbound: failed to log message")
	}
}
