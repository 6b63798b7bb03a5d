package outbound

import (
	"context"
	"strings"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 2 * time.Second
	DefaultRetryBase   = 2 * time.Second
	DefaultSendTimeout = 20 * time.Second
)

// Job is one outbound text message waiting in a tenant queue.
type Job struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Recipient   string    `json:"recipient"`
	Body        string    `json:"body"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	CreatedAt   time.Time `json:"created_at"`
	LastError   string    `json:"last_error,omitempty"`

	// DelayAfter overrides the pause after a successful send. nil uses the
	// queue default, an explicit zero skips the pause.
	DelayAfter *time.Duration `json:"delay_after,omitempty"`
}

func Delay(d time.Duration) *time.Duration { return &d }

type Stats struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// SendFunc delivers a job. A nil error means the message left the process.
type SendFunc func(ctx context.Context, job Job) error

// UsableFunc reports whether the tenant's session can send right now.
type UsableFunc func(ctx context.Context, tenantID string) bool

var sessionFatal = []string{"no sessions", "connection closed", "disconnected"}

// IsSessionFatal reports errors that mean the whole session is down, as
// opposed to a problem with one message.
func IsSessionFatal(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range sessionFatal {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
