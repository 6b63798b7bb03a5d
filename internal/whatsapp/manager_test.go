package whatsapp

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-live-orders/internal/orders"
	"github.com/ariefcatur/go-live-orders/internal/outbound"
	"github.com/ariefcatur/go-live-orders/internal/phone"
	"github.com/ariefcatur/go-live-orders/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

type fakeSession struct {
	connected, loggedIn bool
	err                 error
	to                  []types.JID
	bodies              []string
	groups              map[types.JID]string
	groupLookups        int
}

func (f *fakeSession) IsConnected() bool { return f.connected }
func (f *fakeSession) IsLoggedIn() bool  { return f.loggedIn }

func (f *fakeSession) SendMessage(_ context.Context, to types.JID, msg *waE2E.Message, _ ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error) {
	if f.err != nil {
		return whatsmeow.SendResponse{}, f.err
	}
	f.to = append(f.to, to)
	f.bodies = append(f.bodies, msg.GetConversation())
	return whatsmeow.SendResponse{ID: "3EB0"}, nil
}

func (f *fakeSession) GetGroupInfo(_ context.Context, jid types.JID) (*types.GroupInfo, error) {
	f.groupLookups++
	name, ok := f.groups[jid]
	if !ok {
		return nil, errors.New("item-not-found")
	}
	return &types.GroupInfo{JID: jid, GroupName: types.GroupName{Name: name}}, nil
}

type capturePublisher struct{ msgs []orders.InboundMessage }

func (c *capturePublisher) PublishInbound(_ context.Context, _ string, msg orders.InboundMessage) error {
	c.msgs = append(c.msgs, msg)
	return nil
}

func TestSend(t *testing.T) {
	m := NewManager(nil, nil)
	s := &fakeSession{connected: true, loggedIn: true}
	m.Set("t1", s)

	err := m.Send(context.Background(), outbound.Job{TenantID: "t1", Recipient: "553199990000", Body: "oi"})
	require.NoError(t, err)
	require.Len(t, s.to, 1)
	assert.Equal(t, "553199990000@s.whatsapp.net", s.to[0].String())
	assert.Equal(t, []string{"oi"}, s.bodies)
}

func TestSendErrorsHaltTheQueue(t *testing.T) {
	m := NewManager(nil, nil)

	err := m.Send(context.Background(), outbound.Job{TenantID: "nobody", Recipient: "55"})
	assert.True(t, outbound.IsSessionFatal(err))

	m.Set("t1", &fakeSession{connected: false})
	err = m.Send(context.Background(), outbound.Job{TenantID: "t1", Recipient: "55"})
	assert.True(t, outbound.IsSessionFatal(err))

	m.Set("t2", &fakeSession{connected: true, err: errors.New("server returned error 479")})
	err = m.Send(context.Background(), outbound.Job{TenantID: "t2", Recipient: "55"})
	require.Error(t, err)
	assert.False(t, outbound.IsSessionFatal(err))
}

func TestHandle(t *testing.T) {
	m := NewManager(nil, nil)
	m.Set("t1", &fakeSession{connected: false, loggedIn: true})

	h, err := m.Handle(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, session.Diagnosis{Valid: false, Reason: session.ReasonNotConnected}, session.Diagnose(h))
	assert.True(t, session.IsUsable(h))

	h, err = m.Handle(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, session.ReasonMissing, session.Diagnose(h).Reason)
}

func textEvent(chat, sender types.JID, text string, fromMe, group bool) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chat, Sender: sender, IsFromMe: fromMe, IsGroup: group},
			ID:            "ABCD",
		},
		Message: &waE2E.Message{Conversation: proto.String(text)},
	}
}

func TestForwardGroupMessage(t *testing.T) {
	pub := &capturePublisher{}
	m := NewManager(nil, pub)
	group := types.NewJID("120363000000000000", types.GroupServer)
	sender := types.NewJID("5531999990000", types.DefaultUserServer)

	m.handleEvent("t1", &events.GroupInfo{JID: group, Name: &types.GroupName{Name: "Live de Sexta"}})
	m.handleEvent("t1", textEvent(group, sender, "quero C10", false, true))

	require.Len(t, pub.msgs, 1)
	got := pub.msgs[0]
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, "ABCD", got.MessageID)
	assert.Equal(t, "5531999990000", got.CustomerPhone)
	assert.Equal(t, "quero C10", got.Text)
	require.NotNil(t, got.Group)
	assert.Equal(t, group.String(), got.Group.ID)
	assert.Equal(t, "Live de Sexta", got.Group.Name)
}

func TestForwardSkipsOwnAndEmptyMessages(t *testing.T) {
	pub := &capturePublisher{}
	m := NewManager(nil, pub)
	chat := types.NewJID("5531999990000", types.DefaultUserServer)

	m.handleEvent("t1", textEvent(chat, chat, "C1", true, false))
	m.handleEvent("t1", textEvent(chat, chat, "   ", false, false))
	m.handleEvent("t1", &events.Message{Info: types.MessageInfo{MessageSource: types.MessageSource{Chat: chat, Sender: chat}}})

	assert.Empty(t, pub.msgs)
}

func TestExtendedTextIsForwarded(t *testing.T) {
	pub := &capturePublisher{}
	m := NewManager(nil, pub)
	chat := types.NewJID("5531999990000", types.DefaultUserServer)
	evt := &events.Message{
		Info:    types.MessageInfo{MessageSource: types.MessageSource{Chat: chat, Sender: chat}, ID: "X"},
		Message: &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("C7 por favor")}},
	}

	m.handleEvent("t1", evt)

	require.Len(t, pub.msgs, 1)
	assert.Nil(t, pub.msgs[0].Group)
	assert.Equal(t, "C7 por favor", pub.msgs[0].Text)
}

func TestConnectedKicksCallback(t *testing.T) {
	m := NewManager(nil, nil)
	var kicked []string
	m.OnConnected = func(id string) { kicked = append(kicked, id) }

	m.handleEvent("t1", &events.Connected{})

	assert.Equal(t, []string{"t1"}, kicked)
}

func TestForwardGroupMessageLooksUpUnknownGroup(t *testing.T) {
	pub := &capturePublisher{}
	m := NewManager(nil, pub)
	group := types.NewJID("120363000000000001", types.GroupServer)
	sender := types.NewJID("5531999990000", types.DefaultUserServer)
	s := &fakeSession{connected: true, loggedIn: true, groups: map[types.JID]string{group: "Bazar da Ana"}}
	m.Set("t1", s)

	m.handleEvent("t1", textEvent(group, sender, "C1", false, true))
	m.handleEvent("t1", textEvent(group, sender, "C2", false, true))

	require.Len(t, pub.msgs, 2)
	for _, msg := range pub.msgs {
		require.NotNil(t, msg.Group)
		assert.Equal(t, "Bazar da Ana", msg.Group.Name)
	}
	assert.Equal(t, 1, s.groupLookups)
}

func TestForwardGroupMessageWhenLookupFails(t *testing.T) {
	pub := &capturePublisher{}
	m := NewManager(nil, pub)
	group := types.NewJID("120363000000000002", types.GroupServer)
	sender := types.NewJID("5531999990000", types.DefaultUserServer)
	m.Set("t1", &fakeSession{connected: true, loggedIn: true})

	m.handleEvent("t1", textEvent(group, sender, "C1", false, true))

	require.Len(t, pub.msgs, 1)
	require.NotNil(t, pub.msgs[0].Group)
	assert.Equal(t, group.String(), pub.msgs[0].Group.ID)
	assert.Empty(t, pub.msgs[0].Group.Name)
}

func TestSendAppliesPhonePolicy(t *testing.T) {
	cases := []struct {
		name   string
		policy phone.Policy
		in     string
		want   string
	}{
		{"adds ninth digit for low area codes", phone.DefaultPolicy, "1187654321", "5511987654321@s.whatsapp.net"},
		{"strips ninth digit for high area codes", phone.DefaultPolicy, "31999990000", "553199990000@s.whatsapp.net"},
		{"legacy never strips", phone.LegacyPolicy, "31999990000", "5531999990000@s.whatsapp.net"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager(nil, nil)
			m.Phones = tc.policy
			s := &fakeSession{connected: true, loggedIn: true}
			m.Set("t1", s)

			require.NoError(t, m.Send(context.Background(), outbound.Job{TenantID: "t1", Recipient: tc.in, Body: "oi"}))
			require.Len(t, s.to, 1)
			assert.Equal(t, tc.want, s.to[0].String())
		})
	}
}
