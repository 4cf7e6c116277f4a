package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/bingo-chat/config"
	"github.com/tcriess/bingo-chat/types"
)

func newTestHub(opts ...Option) *Hub {
	return NewHub(config.RealtimeConfig{SendBuffer: 16}, opts...)
}

func newTestClient(h *Hub, authUserId string) *Client {
	c := newClient(h, nil, authUserId)
	h.registry.Register(c)
	return c
}

func signal(t *testing.T, event string, data interface{}) *types.WebsocketMessage {
	t.Helper()
	raw, err := types.NewWebsocketMessage(event, data)
	require.NoError(t, err)
	m := &types.WebsocketMessage{}
	require.NoError(t, json.Unmarshal(raw, m))
	return m
}

func dispatch(t *testing.T, h *Hub, c *Client, event string, data interface{}) {
	t.Helper()
	require.NoError(t, h.Dispatch(c, signal(t, event, data)))
}

func receive(t *testing.T, c *Client) *types.WebsocketMessage {
	t.Helper()
	select {
	case frame := <-c.Send:
		m := &types.WebsocketMessage{}
		require.NoError(t, json.Unmarshal(frame, m))
		return m
	case <-time.After(time.Second):
		t.Fatalf("no frame for %s", c.Id)
		return nil
	}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.Send:
		t.Errorf("unexpected frame for %s: %s", c.Id, frame)
	default:
	}
}

func TestSetupJoinsPrivateRoom(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h, "")

	dispatch(t, h, c, types.SignalSetup, map[string]interface{}{"_id": "alice", "name": "Alice"})
	assert.Equal(t, types.SignalConnected, receive(t, c).Event)
	assert.Equal(t, "alice", c.UserId())
	assert.Equal(t, []string{"alice"}, h.registry.Rooms(c.Id))

	other := newTestClient(h, "")
	dispatch(t, h, other, types.SignalSetup, "bob")
	assert.Equal(t, types.SignalConnected, receive(t, other).Event)
	third := newTestClient(h, "")
	dispatch(t, h, third, types.SignalSetup, map[string]interface{}{"id": "carol"})
	assert.Equal(t, "carol", third.UserId())
}

func TestSetupForAnotherUserIsDropped(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h, "alice")

	err := h.Dispatch(c, signal(t, types.SignalSetup, "mallory"))
	assert.Error(t, err)
	assertNothing(t, c)
	assert.Empty(t, h.registry.Rooms(c.Id))

	dispatch(t, h, c, types.SignalSetup, "alice")
	assert.Equal(t, types.SignalConnected, receive(t, c).Event)
}

func TestSetupForAnotherUserLeavesPreviousRoom(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h, "")
	sender := newTestClient(h, "")
	dispatch(t, h, c, types.SignalJoinChat, "chat-1")

	dispatch(t, h, c, types.SignalSetup, "alice")
	receive(t, c)
	dispatch(t, h, c, types.SignalSetup, "bob")
	receive(t, c)
	assert.Equal(t, "bob", c.UserId())
	assert.ElementsMatch(t, []string{"bob", "chat-1"}, h.registry.Rooms(c.Id))

	payload := json.RawMessage(`{"sender":{"_id":"carol"},"chat":{"users":[{"_id":"carol"},{"_id":"alice"}]}}`)
	dispatch(t, h, sender, types.SignalNewMessage, payload)
	assertNothing(t, c)

	dispatch(t, h, c, types.SignalSetup, "bob")
	receive(t, c)
	assert.ElementsMatch(t, []string{"bob", "chat-1"}, h.registry.Rooms(c.Id))
}

func TestTypingReachesOtherSubscribersOnly(t *testing.T) {
	h := newTestHub()
	a, b, c, outsider := newTestClient(h, ""), newTestClient(h, ""), newTestClient(h, ""), newTestClient(h, "")
	dispatch(t, h, a, types.SignalJoinChat, "room-1")
	dispatch(t, h, b, types.SignalJoinChat, map[string]string{"chatId": "room-1"})
	dispatch(t, h, c, types.SignalJoinChat, map[string]string{"room": "room-1"})
	dispatch(t, h, c, types.SignalJoinChat, "room-1")
	dispatch(t, h, outsider, types.SignalJoinChat, "room-2")

	dispatch(t, h, a, types.SignalTyping, "room-1")
	for _, member := range []*Client{b, c} {
		m := receive(t, member)
		assert.Equal(t, types.SignalTyping, m.Event)
		assert.JSONEq(t, `"room-1"`, string(m.Data))
		assertNothing(t, member)
	}
	assertNothing(t, a)
	assertNothing(t, outsider)

	dispatch(t, h, b, types.SignalStopTyping, "room-1")
	assert.Equal(t, types.SignalStopTyping, receive(t, a).Event)
	assert.Equal(t, types.SignalStopTyping, receive(t, c).Event)
	assertNothing(t, b)
}

func TestNewMessageFansOutToPrivateRooms(t *testing.T) {
	h := newTestHub()
	clients := make(map[string]*Client)
	for _, user := range []string{"A", "B", "C"} {
		clients[user] = newTestClient(h, "")
		dispatch(t, h, clients[user], types.SignalSetup, user)
		receive(t, clients[user])
	}
	secondTab := newTestClient(h, "")
	dispatch(t, h, secondTab, types.SignalSetup, "A")
	receive(t, secondTab)
	// joined the chat room, but not set up: not a private room of any member
	bystander := newTestClient(h, "")
	dispatch(t, h, bystander, types.SignalJoinChat, "chat-1")

	payload := json.RawMessage(`{"_id":"m1","content":"hi","sender":{"_id":"A","name":"A"},"chat":{"_id":"chat-1","users":[{"_id":"A"},{"_id":"B"},{"_id":"C"}]}}`)
	dispatch(t, h, clients["A"], types.SignalNewMessage, payload)

	for _, user := range []string{"B", "C"} {
		m := receive(t, clients[user])
		assert.Equal(t, types.SignalMessageReceived, m.Event)
		assert.JSONEq(t, string(payload), string(m.Data))
		assertNothing(t, clients[user])
	}
	assertNothing(t, clients["A"])
	assertNothing(t, secondTab)
	assertNothing(t, bystander)
}

func TestNewMessageWithoutMembersIsDropped(t *testing.T) {
	h := newTestHub()
	a := newTestClient(h, "")
	b := newTestClient(h, "")
	dispatch(t, h, b, types.SignalSetup, "B")
	receive(t, b)

	for _, payload := range []string{
		`{"content":"hi","sender":{"_id":"A"},"chat":{"_id":"c"}}`,
		`{"content":"hi","sender":{"_id":"A"}}`,
		`{"content":"hi","sender":{"_id":"A"},"chat":{"users":null}}`,
	} {
		err := h.Dispatch(a, signal(t, types.SignalNewMessage, json.RawMessage(payload)))
		assert.ErrorIs(t, err, errChatWithoutMembers)
	}
	assertNothing(t, b)
}

func TestAuthenticatedSenderMustMatch(t *testing.T) {
	h := newTestHub()
	a := newTestClient(h, "A")
	b := newTestClient(h, "")
	dispatch(t, h, b, types.SignalSetup, "B")
	receive(t, b)

	payload := json.RawMessage(`{"sender":{"_id":"X"},"chat":{"users":[{"_id":"X"},{"_id":"B"}]}}`)
	assert.Error(t, h.Dispatch(a, signal(t, types.SignalNewMessage, payload)))
	assertNothing(t, b)
}

func TestMalformedSignalsAreRejected(t *testing.T) {
	h := newTestHub()
	c := newTestClient(h, "")

	for _, m := range []*types.WebsocketMessage{
		{Event: "shout", Data: json.RawMessage(`"x"`)},
		{Event: types.SignalSetup},
		{Event: types.SignalSetup, Data: json.RawMessage(`{"name":"no id"}`)},
		{Event: types.SignalSetup, Data: json.RawMessage(`42.5e3`)},
		{Event: types.SignalJoinChat, Data: json.RawMessage(`""`)},
		{Event: types.SignalTyping, Data: json.RawMessage(`[1,2]`)},
		{Event: types.SignalNewMessage, Data: json.RawMessage(`"text"`)},
		{Event: types.SignalNewMessage, Data: json.RawMessage(`{"chat":{"users":[{"name":"no id"}]}}`)},
	} {
		assert.Error(t, h.Dispatch(c, m), "event %q data %s", m.Event, m.Data)
	}
	assertNothing(t, c)
	assert.Empty(t, h.registry.Rooms(c.Id))
}

func TestDisconnectDropsSubscriptions(t *testing.T) {
	h := newTestHub()
	a := newTestClient(h, "")
	b := newTestClient(h, "")
	dispatch(t, h, a, types.SignalSetup, "A")
	receive(t, a)
	dispatch(t, h, a, types.SignalJoinChat, "chat-1")

	assert.ElementsMatch(t, []string{"A", "chat-1"}, h.registry.Unregister(a))
	a.close()
	connections, rooms := h.registry.Stats()
	assert.Equal(t, 1, connections)
	assert.Equal(t, 0, rooms)

	dispatch(t, h, b, types.SignalTyping, "chat-1")
	assertNothing(t, a)
	assert.False(t, a.trySend([]byte("late")))
}

func TestFullSendBufferDropsFrames(t *testing.T) {
	h := NewHub(config.RealtimeConfig{SendBuffer: 1})
	a := newTestClient(h, "")
	b := newTestClient(h, "")
	dispatch(t, h, b, types.SignalJoinChat, "r")

	dispatch(t, h, a, types.SignalTyping, "r")
	dispatch(t, h, a, types.SignalStopTyping, "r")
	assert.Equal(t, types.SignalTyping, receive(t, b).Event)
	assertNothing(t, b)
}

// loopbackRelay hands every published delivery back to the subscriber.
type loopbackRelay struct {
	ch        chan *Delivery
	published int
	sync.Mutex
}

func (r *loopbackRelay) Publish(ctx context.Context, d *Delivery) error {
	r.Lock()
	r.published++
	r.Unlock()
	r.ch <- d
	return nil
}

func (r *loopbackRelay) Subscribe(ctx context.Context, deliver func(*Delivery)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-r.ch:
			deliver(d)
		}
	}
}

func (r *loopbackRelay) Close() error { return nil }

func TestRelayedDelivery(t *testing.T) {
	relay := &loopbackRelay{ch: make(chan *Delivery, 8)}
	h := newTestHub(WithRelay(relay))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- h.Run(ctx) }()

	a := newTestClient(h, "")
	b := newTestClient(h, "")
	dispatch(t, h, b, types.SignalJoinChat, "r")
	dispatch(t, h, a, types.SignalTyping, "r")
	assert.Equal(t, types.SignalTyping, receive(t, b).Event)
	assertNothing(t, a)

	relay.Lock()
	assert.Equal(t, 1, relay.published)
	relay.Unlock()

	cancel()
	assert.NoError(t, <-done)
}

// stalledRelay never completes a publish before its context ends.
type stalledRelay struct{}

func (stalledRelay) Publish(ctx context.Context, d *Delivery) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledRelay) Subscribe(ctx context.Context, deliver func(*Delivery)) error {
	<-ctx.Done()
	return nil
}

func (stalledRelay) Close() error { return nil }

func TestStalledRelayDoesNotBlockDispatch(t *testing.T) {
	h := NewHub(config.RealtimeConfig{SendBuffer: 16, WriteWait: 500 * time.Millisecond}, WithRelay(stalledRelay{}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Run(ctx) }()

	a := newTestClient(h, "")
	b := newTestClient(h, "")
	dispatch(t, h, b, types.SignalJoinChat, "r")

	start := time.Now()
	dispatch(t, h, a, types.SignalTyping, "r")
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	// delivered locally once the publish times out
	assert.Equal(t, types.SignalTyping, receive(t, b).Event)
	assertNothing(t, a)
}

type countingSessions struct {
	compacted int
}

func (s *countingSessions) Sessions() (int, error) { return 3, nil }

func (s *countingSessions) Compact() error {
	s.compacted++
	return nil
}

func TestStatsCompactsSessions(t *testing.T) {
	sessions := &countingSessions{}
	h := newTestHub(WithSessionStore(sessions))
	newTestClient(h, "")
	h.logStats()
	assert.Equal(t, 1, sessions.compacted)
}

func TestRunRejectsInvalidCronSpec(t *testing.T) {
	h := NewHub(config.RealtimeConfig{StatsCron: "every now and then"})
	assert.Error(t, h.Run(context.Background()))
}

func TestServeRoundTrip(t *testing.T) {
	h := NewHub(config.RealtimeConfig{PingTimeout: 10 * time.Second})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Serve(conn, "")
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	dial := func(user string) *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
		require.NoError(t, conn.WriteJSON(types.WebsocketMessage{Event: types.SignalJoinChat, Data: json.RawMessage(`"chat-1"`)}))
		require.NoError(t, conn.WriteJSON(types.WebsocketMessage{Event: types.SignalSetup, Data: json.RawMessage(`{"_id":"` + user + `"}`)}))
		m := types.WebsocketMessage{}
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&m))
		require.Equal(t, types.SignalConnected, m.Event)
		return conn
	}
	alice := dial("alice")
	defer alice.Close()
	bob := dial("bob")
	defer bob.Close()

	require.NoError(t, alice.WriteJSON(types.WebsocketMessage{Event: types.SignalTyping, Data: json.RawMessage(`"chat-1"`)}))
	m := types.WebsocketMessage{}
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, bob.ReadJSON(&m))
	assert.Equal(t, types.SignalTyping, m.Event)
	assert.JSONEq(t, `"chat-1"`, string(m.Data))

	connections, _ := h.registry.Stats()
	assert.Equal(t, 2, connections)

	require.NoError(t, alice.Close())
	assert.Eventually(t, func() bool {
		connections, _ := h.registry.Stats()
		return connections == 1
	}, 2*time.Second, 10*time.Millisecond)
}
