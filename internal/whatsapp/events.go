package whatsapp

import (
	"context"
	"strings"
	"time"

	"github.com/ariefcatur/go-live-orders/internal/orders"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

const groupLookupTimeout = 10 * time.Second

func (m *Manager) handleEvent(tenantID string, evt any) {
	switch v := evt.(type) {
	case *events.Message:
		m.forward(tenantID, v)
	case *events.JoinedGroup:
		m.rememberGroup(v.JID.String(), v.Name)
	case *events.GroupInfo:
		if v.Name != nil {
			m.rememberGroup(v.JID.String(), v.Name.Name)
		}
	case *events.Connected:
		log.Info().Str("tenant_id", tenantID).Msg("whatsapp: connected")
		if m.OnConnected != nil {
			m.OnConnected(tenantID)
		}
	case *events.Disconnected:
		log.Warn().Str("tenant_id", tenantID).Msg("whatsapp: disconnected")
	case *events.LoggedOut:
		log.Error().Str("tenant_id", tenantID).Int("reason", int(v.Reason)).Msg("whatsapp: logged out, device must be paired again")
	}
}

func (m *Manager) rememberGroup(jid, name string) {
	if name == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[jid] = name
}

func (m *Manager) cachedGroupName(jid string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.groups[jid]
}

// groupName returns the subject of group, asking the tenant's session on a
// cache miss. Lookup failures leave the name empty.
func (m *Manager) groupName(ctx context.Context, tenantID string, group types.JID) string {
	if name := m.cachedGroupName(group.String()); name != "" {
		return name
	}
	s := m.get(tenantID)
	if s == nil {
		return ""
	}
	info, err := s.GetGroupInfo(ctx, group)
	if err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Str("group", group.String()).Msg("whatsapp: group info lookup failed")
		return ""
	}
	if info == nil {
		return ""
	}
	m.rememberGroup(group.String(), info.Name)
	return info.Name
}

func (m *Manager) forward(tenantID string, evt *events.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), groupLookupTimeout)
	defer cancel()
	msg, ok := m.toInbound(ctx, tenantID, evt)
	if !ok || m.Inbound == nil {
		return
	}
	if err := m.Inbound.PublishInbound(context.Background(), "whatsapp", msg); err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Str("message_id", msg.MessageID).Msg("whatsapp: failed to forward message")
	}
}

// toInbound keeps text messages written by customers.
func (m *Manager) toInbound(ctx context.Context, tenantID string, evt *events.Message) (orders.InboundMessage, bool) {
	if evt.Info.IsFromMe || evt.Message == nil {
		return orders.InboundMessage{}, false
	}
	if strings.HasPrefix(evt.Info.Chat.String(), "status@") || evt.Info.IsIncomingBroadcast() {
		return orders.InboundMessage{}, false
	}
	text := evt.Message.GetConversation()
	if text == "" {
		text = evt.Message.GetExtendedTextMessage().GetText()
	}
	if strings.TrimSpace(text) == "" {
		return orders.InboundMessage{}, false
	}

	msg := orders.InboundMessage{
		TenantID:      tenantID,
		MessageID:     evt.Info.ID,
		CustomerPhone: evt.Info.Sender.User,
		Text:          text,
	}
	if evt.Info.IsGroup {
		msg.Group = &orders.GroupMeta{ID: evt.Info.Chat.String(), Name: m.groupName(ctx, tenantID, evt.Info.Chat)}
	}
	return msg, true
}
