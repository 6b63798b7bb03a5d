package outbound

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Dispatcher is what the rest of the service talks to: it enqueues a
// message and kicks a background drain for the tenant.
type Dispatcher struct {
	Queue  *Queue
	Send   SendFunc
	Usable UsableFunc

	ctx context.Context
	wg  sync.WaitGroup
}

// NewDispatcher binds a queue to a transport. Background drains run under
// ctx and stop when it is cancelled.
func NewDispatcher(ctx context.Context, q *Queue, send SendFunc, usable UsableFunc) *Dispatcher {
	return &Dispatcher{Queue: q, Send: send, Usable: usable, ctx: ctx}
}

// Notify queues body for recipient (send form) and returns immediately.
func (d *Dispatcher) Notify(_ context.Context, tenantID, recipient, body string) error {
	d.Enqueue(tenantID, Job{Recipient: recipient, Body: body})
	return nil
}

func (d *Dispatcher) Enqueue(tenantID string, job Job) Job {
	j := d.Queue.Enqueue(tenantID, job)
	d.Kick(tenantID)
	return j
}

// Kick starts a drain for tenantID unless one is already running.
func (d *Dispatcher) Kick(tenantID string) {
	if d.Queue.Draining(tenantID) {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		out, err := d.Queue.Drain(d.ctx, tenantID, d.Send, d.Usable)
		if err != nil {
			log.Warn().Err(err).Str("tenant_id", tenantID).Msg("outbound: drain interrupted")
			return
		}
		log.Debug().Str("tenant_id", tenantID).Str("outcome", string(out)).Msg("outbound: drain finished")
	}()
}

// DrainAll kicks every tenant that still has queued jobs. Paused and halted
// queues resume this way once their session recovers.
func (d *Dispatcher) DrainAll() {
	for _, id := range d.Queue.Tenants() {
		d.Kick(id)
	}
}

// Run calls DrainAll every interval until the dispatcher context ends.
func (d *Dispatcher) Run(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-t.C:
			d.DrainAll()
		}
	}
}

// Wait blocks until background drains return.
func (d *Dispatcher) Wait() { d.wg.Wait() }
