// Package outbound holds the per-tenant FIFO of customer notifications and
// the loop that delivers them.
package outbound

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Outcome string

const (
	OutcomeDrained Outcome = "DRAINED"
	OutcomeBusy    Outcome = "BUSY"    // another drain owns the tenant
	OutcomePaused  Outcome = "PAUSED"  // session not usable
	OutcomeHalted  Outcome = "HALTED"  // session-fatal send error
	OutcomeCleared Outcome = "CLEARED" // Clear ran during the drain
)

type Options struct {
	MaxAttempts int
	Delay       time.Duration
	RetryBase   time.Duration
	SendTimeout time.Duration

	// OnFailed is called for jobs dropped after exhausting their attempts.
	OnFailed func(ctx context.Context, job Job)

	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	if o.RetryBase <= 0 {
		o.RetryBase = DefaultRetryBase
	}
	if o.Sleep == nil {
		o.Sleep = sleepCtx
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type tenantQueue struct {
	jobs     []*Job
	draining bool
	cleared  bool
	stats    Stats
}

// Queue owns every tenant's outbound state. Build one per process.
type Queue struct {
	mu      sync.Mutex
	tenants map[string]*tenantQueue
	opts    Options
}

// NewQueue builds a Queue. A zero Options.Delay means no pause between
// sends; use DefaultDelay for the usual pacing.
func NewQueue(opts Options) *Queue {
	return &Queue{
		tenants: make(map[string]*tenantQueue),
		opts:    opts.withDefaults(),
	}
}

func (q *Queue) tenant(id string) *tenantQueue {
	tq, ok := q.tenants[id]
	if !ok {
		tq = &tenantQueue{}
		q.tenants[id] = tq
	}
	return tq
}

// Enqueue appends job to the tenant's queue and returns the stored copy.
func (q *Queue) Enqueue(tenantID string, job Job) Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.TenantID = tenantID
	job.Attempts = 0
	job.LastError = ""
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.opts.MaxAttempts
	}
	job.CreatedAt = q.opts.Now()

	tq := q.tenant(tenantID)
	j := job
	tq.jobs = append(tq.jobs, &j)
	tq.stats.Pending = len(tq.jobs)
	pendingGauge.WithLabelValues(tenantID).Set(float64(tq.stats.Pending))

	log.Debug().Str("tenant_id", tenantID).Str("job_id", job.ID).Int("pending", tq.stats.Pending).Msg("outbound: job enqueued")
	return job
}

// Drain delivers the tenant's jobs in order until the queue is empty, the
// session becomes unusable, or a session-fatal error occurs. Only one drain
// per tenant runs at a time; a concurrent call returns OutcomeBusy.
func (q *Queue) Drain(ctx context.Context, tenantID string, send SendFunc, usable UsableFunc) (Outcome, error) {
	q.mu.Lock()
	tq := q.tenant(tenantID)
	if tq.draining {
		q.mu.Unlock()
		return OutcomeBusy, nil
	}
	tq.draining = true
	q.mu.Unlock()

	// The empty check clears draining itself, under the lock that saw the
	// queue empty.
	released := false
	defer func() {
		if released {
			return
		}
		q.mu.Lock()
		tq.draining = false
		q.mu.Unlock()
	}()

	logger := log.With().Str("tenant_id", tenantID).Logger()

	for {
		q.mu.Lock()
		if tq.cleared {
			q.mu.Unlock()
			return OutcomeCleared, nil
		}
		if len(tq.jobs) == 0 {
			tq.draining = false
			released = true
			q.mu.Unlock()
			return OutcomeDrained, nil
		}
		job := tq.jobs[0]
		snapshot := *job
		q.mu.Unlock()

		if err := ctx.Err(); err != nil {
			return "", err
		}

		if !usable(ctx, tenantID) {
			logger.Info().Int("pending", q.Size(tenantID)).Msg("outbound: session not usable, pausing queue")
			return OutcomePaused, nil
		}

		err := q.attempt(ctx, send, snapshot)
		if err == nil {
			q.mu.Lock()
			q.pop(tq, job)
			tq.stats.Sent++
			q.mu.Unlock()
			sentCounter.WithLabelValues(tenantID).Inc()
			logger.Debug().Str("job_id", job.ID).Msg("outbound: message sent")

			if err := q.opts.Sleep(ctx, q.delayAfter(snapshot)); err != nil {
				return "", err
			}
			continue
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return "", ctx.Err()
		}

		q.mu.Lock()
		job.Attempts++
		job.LastError = err.Error()
		attempts := job.Attempts
		failed := *job
		q.mu.Unlock()

		if IsSessionFatal(err) {
			logger.Warn().Err(err).Str("job_id", job.ID).Int("attempts", attempts).Msg("outbound: session error, halting queue")
			return OutcomeHalted, nil
		}

		if attempts >= failed.MaxAttempts {
			q.mu.Lock()
			q.pop(tq, job)
			tq.stats.Failed++
			q.mu.Unlock()
			failedCounter.WithLabelValues(tenantID).Inc()
			logger.Error().Err(err).Str("job_id", job.ID).Int("attempts", attempts).Msg("outbound: giving up on message")
			if q.opts.OnFailed != nil {
				q.opts.OnFailed(ctx, failed)
			}
			continue
		}

		backoff := time.Duration(attempts) * q.opts.RetryBase
		logger.Warn().Err(err).Str("job_id", job.ID).Int("attempts", attempts).Dur("backoff", backoff).Msg("outbound: send failed, retrying")
		if err := q.opts.Sleep(ctx, backoff); err != nil {
			return "", err
		}
	}
}

func (q *Queue) attempt(ctx context.Context, send SendFunc, job Job) error {
	if q.opts.SendTimeout <= 0 {
		return send(ctx, job)
	}
	sctx, cancel := context.WithTimeout(ctx, q.opts.SendTimeout)
	defer cancel()
	return send(sctx, job)
}

func (q *Queue) delayAfter(job Job) time.Duration {
	if job.DelayAfter != nil {
		return *job.DelayAfter
	}
	return q.opts.Delay
}

// pop removes job from the head. Caller holds q.mu.
func (q *Queue) pop(tq *tenantQueue, job *Job) {
	if len(tq.jobs) > 0 && tq.jobs[0] == job {
		tq.jobs[0] = nil
		tq.jobs = tq.jobs[1:]
	}
	tq.stats.Pending = len(tq.jobs)
	pendingGauge.WithLabelValues(job.TenantID).Set(float64(tq.stats.Pending))
}

func (q *Queue) Stats(tenantID string) Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	if tq, ok := q.tenants[tenantID]; ok {
		return tq.stats
	}
	return Stats{}
}

func (q *Queue) Size(tenantID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if tq, ok := q.tenants[tenantID]; ok {
		return len(tq.jobs)
	}
	return 0
}

// Peek returns a copy of the head job.
func (q *Queue) Peek(tenantID string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	tq, ok := q.tenants[tenantID]
	if !ok || len(tq.jobs) == 0 {
		return Job{}, false
	}
	return *tq.jobs[0], true
}

func (q *Queue) Draining(tenantID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	tq, ok := q.tenants[tenantID]
	return ok && tq.draining
}

// Clear drops every job and counter of the tenant. A drain in progress
// stops before its next send.
func (q *Queue) Clear(tenantID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if tq, ok := q.tenants[tenantID]; ok {
		tq.cleared = true
		tq.jobs = nil
		delete(q.tenants, tenantID)
	}
	pendingGauge.DeleteLabelValues(tenantID)
}

// Tenants lists tenants that currently have queued jobs.
func (q *Queue) Tenants() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.tenants))
	for id, tq := range q.tenants {
		if len(tq.jobs) > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
