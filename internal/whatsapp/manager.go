// Package whatsapp connects tenants to WhatsApp through whatsmeow: it
// reports session health, sends queued messages and forwards customer
// messages to the inbound topic.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ariefcatur/go-live-orders/internal/orders"
	"github.com/ariefcatur/go-live-orders/internal/outbound"
	"github.com/ariefcatur/go-live-orders/internal/phone"
	"github.com/ariefcatur/go-live-orders/internal/session"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/lib/pq"
)

// Session is the subset of *whatsmeow.Client used here.
type Session interface {
	IsConnected() bool
	IsLoggedIn() bool
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
	GetGroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error)
}

// InboundPublisher receives customer messages seen on a session.
type InboundPublisher interface {
	PublishInbound(ctx context.Context, source string, msg orders.InboundMessage) error
}

var ErrNoDevice = errors.New("whatsapp: no paired device")

// Manager owns one client per tenant.
type Manager struct {
	Container *sqlstore.Container
	Inbound   InboundPublisher
	// OnConnected runs after a tenant's socket (re)connects.
	OnConnected func(tenantID string)
	// Phones builds recipient addresses on the send path.
	Phones phone.Policy

	mu       sync.RWMutex
	sessions map[string]Session
	groups   map[string]string // group JID -> subject
}

var _ session.Provider = (*Manager)(nil)

func NewManager(container *sqlstore.Container, inbound InboundPublisher) *Manager {
	return &Manager{
		Container: container,
		Inbound:   inbound,
		Phones:    phone.DefaultPolicy,
		sessions:  map[string]Session{},
		groups:    map[string]string{},
	}
}

func waLogger(module string) waLog.Logger {
	return waLog.Zerolog(log.Logger.With().Str("module", module).Logger())
}

// OpenContainer opens the whatsmeow device store in Postgres.
func OpenContainer(ctx context.Context, dsn string) (*sqlstore.Container, error) {
	c, err := sqlstore.New(ctx, "postgres", dsn, waLogger("whatsmeow-store"))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: open device store: %w", err)
	}
	return c, nil
}

// Connect loads the device paired as jid and connects it for tenantID.
func (m *Manager) Connect(ctx context.Context, tenantID, jid string) error {
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return fmt.Errorf("whatsapp: parse jid %q: %w", jid, err)
	}
	device, err := m.Container.GetDevice(ctx, parsed)
	if err != nil {
		return fmt.Errorf("whatsapp: load device %s: %w", jid, err)
	}
	if device == nil {
		return fmt.Errorf("%w: %s", ErrNoDevice, jid)
	}

	client := whatsmeow.NewClient(device, waLogger("whatsmeow-"+tenantID))
	client.EnableAutoReconnect = true
	client.AddEventHandler(func(evt any) { m.handleEvent(tenantID, evt) })
	if err := client.Connect(); err != nil {
		return fmt.Errorf("whatsapp: connect %s: %w", tenantID, err)
	}
	m.Set(tenantID, client)
	log.Info().Str("tenant_id", tenantID).Str("jid", jid).Msg("whatsapp: client connected")
	return nil
}

// ConnectAll connects every tenant with a paired device. Failures are
// logged and skipped.
func (m *Manager) ConnectAll(ctx context.Context, dir Directory) error {
	devices, err := dir.ListDevices(ctx)
	if err != nil {
		return err
	}
	for _, d := range devices {
		if err := m.Connect(ctx, d.TenantID, d.JID); err != nil {
			log.Warn().Err(err).Str("tenant_id", d.TenantID).Msg("whatsapp: tenant not connected")
		}
	}
	return nil
}

func (m *Manager) Set(tenantID string, s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[tenantID] = s
}

func (m *Manager) get(tenantID string) Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[tenantID]
}

func (m *Manager) Tenants() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Handle describes the tenant's session for the session checker.
func (m *Manager) Handle(_ context.Context, tenantID string) (*session.Handle, error) {
	s := m.get(tenantID)
	if s == nil {
		return &session.Handle{}, nil
	}
	h := &session.Handle{
		Present:        true,
		Connected:      s.IsConnected(),
		ConnectedKnown: true,
		HasCredentials: s.IsLoggedIn(),
		HasKeyStore:    true,
	}
	if c, ok := s.(*whatsmeow.Client); ok {
		h.HasCredentials = c.Store != nil && c.Store.ID != nil && h.HasCredentials
		h.HasKeyStore = c.Store != nil && c.Store.Identities != nil && c.Store.Sessions != nil
	}
	return h, nil
}

// Send is the outbound queue's transport. Errors for a missing or closed
// socket use wording the queue treats as session-fatal.
func (m *Manager) Send(ctx context.Context, job outbound.Job) error {
	s := m.get(job.TenantID)
	if s == nil {
		return fmt.Errorf("whatsapp: no sessions for tenant %s", job.TenantID)
	}
	if !s.IsConnected() {
		return fmt.Errorf("whatsapp: connection closed for tenant %s", job.TenantID)
	}
	to, err := types.ParseJID(m.Phones.JID(job.Recipient))
	if err != nil {
		return fmt.Errorf("whatsapp: recipient %q: %w", job.Recipient, err)
	}
	resp, err := s.SendMessage(ctx, to, &waE2E.Message{Conversation: proto.String(job.Body)})
	if err != nil {
		return fmt.Errorf("whatsapp: send to %s: %w", to, err)
	}
	log.Debug().Str("tenant_id", job.TenantID).Str("job_id", job.ID).Str("message_id", string(resp.ID)).Msg("whatsapp: message sent")
	return nil
}

// Disconnect closes every live client.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if c, ok := s.(*whatsmeow.Client); ok {
			c.Disconnect()
		}
		delete(m.sessions, id)
	}
}
