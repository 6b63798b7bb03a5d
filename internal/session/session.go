// Package session decides whether a tenant's messaging session can be used
// to send.
package session

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Handle is the transport-neutral view of a messaging session. A transport
// adapter fills it; nothing here ever mutates the underlying session.
type Handle struct {
	// Present is false when the tenant has no session at all.
	Present bool

	// Connected is the transport's socket-open signal. It is only
	// consulted when ConnectedKnown is set.
	Connected      bool
	ConnectedKnown bool

	HasCredentials bool
	HasKeyStore    bool
}

type Diagnosis struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

const (
	ReasonMissing        = "session not found"
	ReasonNotConnected   = "connection not open"
	ReasonNoCredentials  = "session has no authenticated identity"
	ReasonNoKeyStore     = "session has no encryption key store"
	ReasonProviderFailed = "session lookup failed"
)

// Diagnose runs the strict, operator-facing check. Checks run in order and
// stop at the first failure.
func Diagnose(h *Handle) Diagnosis {
	if h == nil || !h.Present {
		return Diagnosis{Reason: ReasonMissing}
	}
	if h.ConnectedKnown && !h.Connected {
		return Diagnosis{Reason: ReasonNotConnected}
	}
	if !h.HasCredentials {
		return Diagnosis{Reason: ReasonNoCredentials}
	}
	if !h.HasKeyStore {
		return Diagnosis{Reason: ReasonNoKeyStore}
	}
	return Diagnosis{Valid: true}
}

// IsUsable gates real send attempts. It ignores the connectivity signal,
// which reads false for a moment while a send is in flight.
func IsUsable(h *Handle) bool {
	return unusableReason(h) == ""
}

// unusableReason names the first IsUsable check that fails, or "" when the
// handle is usable.
func unusableReason(h *Handle) string {
	switch {
	case h == nil || !h.Present:
		return ReasonMissing
	case !h.HasCredentials:
		return ReasonNoCredentials
	case !h.HasKeyStore:
		return ReasonNoKeyStore
	}
	return ""
}

// Provider resolves the current session of a tenant.
type Provider interface {
	Handle(ctx context.Context, tenantID string) (*Handle, error)
}

type ProviderFunc func(ctx context.Context, tenantID string) (*Handle, error)

func (f ProviderFunc) Handle(ctx context.Context, tenantID string) (*Handle, error) {
	return f(ctx, tenantID)
}

// Checker binds a Provider to the two predicates.
type Checker struct {
	Provider Provider
}

func NewChecker(p Provider) *Checker {
	return &Checker{Provider: p}
}

// Usable has the signature the outbound queue expects for its gate.
func (c *Checker) Usable(ctx context.Context, tenantID string) bool {
	h, err := c.Provider.Handle(ctx, tenantID)
	if err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("session: lookup failed")
		return false
	}
	if reason := unusableReason(h); reason != "" {
		log.Debug().Str("tenant_id", tenantID).Str("reason", reason).Msg("session: not usable")
		return false
	}
	return true
}

func (c *Checker) Diagnose(ctx context.Context, tenantID string) Diagnosis {
	h, err := c.Provider.Handle(ctx, tenantID)
	if err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("session: lookup failed")
		return Diagnosis{Reason: ReasonProviderFailed}
	}
	d := Diagnose(h)
	if !d.Valid {
		log.Info().Str("tenant_id", tenantID).Str("reason", d.Reason).Msg("session: diagnosis failed")
	}
	return d
}
