// Package ws implements the realtime fan-out: per-user and per-chat rooms over websocket connections.
package ws

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"github.com/tcriess/bingo-chat/config"
	"github.com/tcriess/bingo-chat/globals"
	"github.com/tcriess/bingo-chat/types"
)

const (
	defaultPongWait       = 60 * time.Second
	defaultWriteWait      = 10 * time.Second
	defaultMaxMessageSize = 64 * 1024
	defaultSendBuffer     = 256
	relayQueueSize        = 1024
)

// SessionStore is the part of the session store the stats job maintains.
type SessionStore interface {
	Sessions() (int, error)
	Compact() error
}

type Hub struct {
	registry *Registry
	relay    Relay
	outbox   chan *Delivery
	sessions SessionStore
	logger   hclog.Logger

	pongWait       time.Duration
	pingPeriod     time.Duration
	writeWait      time.Duration
	maxMessageSize int64
	sendBuffer     int
	statsCron      string
}

type Option func(*Hub)

// WithRelay makes the hub publish every delivery through relay. Hub.Run must be running to receive them back.
func WithRelay(relay Relay) Option {
	return func(h *Hub) {
		h.relay = relay
	}
}

// WithSessionStore lets the stats job report and compact the session store.
func WithSessionStore(sessions SessionStore) Option {
	return func(h *Hub) {
		h.sessions = sessions
	}
}

func NewHub(cfg config.RealtimeConfig, opts ...Option) *Hub {
	h := &Hub{
		registry:       NewRegistry(),
		logger:         globals.AppLogger.Named("hub"),
		pongWait:       cfg.PingTimeout,
		writeWait:      cfg.WriteWait,
		maxMessageSize: cfg.MaxMessageSize,
		sendBuffer:     cfg.SendBuffer,
		statsCron:      cfg.StatsCron,
	}
	if h.pongWait <= 0 {
		h.pongWait = defaultPongWait
	}
	if h.writeWait <= 0 {
		h.writeWait = defaultWriteWait
	}
	if h.maxMessageSize <= 0 {
		h.maxMessageSize = defaultMaxMessageSize
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = defaultSendBuffer
	}
	// Send pings to peer with this period. Must be less than pongWait.
	h.pingPeriod = h.pongWait * 9 / 10
	for _, opt := range opts {
		opt(h)
	}
	if h.relay != nil {
		h.outbox = make(chan *Delivery, relayQueueSize)
	}
	return h
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run runs the stats job and, if configured, receives the deliveries of the relay. It blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	cronRunner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if h.statsCron != "" {
		if _, err := cronRunner.AddFunc(h.statsCron, h.logStats); err != nil {
			return fmt.Errorf("invalid stats cron spec %q: %w", h.statsCron, err)
		}
	}
	cronRunner.Start()
	defer func() {
		<-cronRunner.Stop().Done()
	}()
	if h.relay == nil {
		<-ctx.Done()
		return nil
	}
	go h.forward(ctx)
	return h.relay.Subscribe(ctx, h.deliver)
}

// forward publishes the queued deliveries through the relay, so that the read loops never wait on the relay.
func (h *Hub) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-h.outbox:
			publishCtx, cancel := context.WithTimeout(ctx, h.writeWait)
			err := h.relay.Publish(publishCtx, d)
			cancel()
			if err != nil {
				h.logger.Error("could not relay delivery, delivering locally", "room", d.Room, "error", err)
				h.deliver(d)
			}
		}
	}
}

func (h *Hub) logStats() {
	connections, rooms := h.registry.Stats()
	fields := []interface{}{"connections", connections, "rooms", rooms}
	if h.sessions != nil {
		if n, err := h.sessions.Sessions(); err != nil {
			h.logger.Error("could not count sessions", "error", err)
		} else {
			fields = append(fields, "sessions", n)
		}
		if err := h.sessions.Compact(); err != nil {
			h.logger.Error("could not compact session store", "error", err)
		}
	}
	h.logger.Info("stats", fields...)
}

// Serve runs a client on conn until the connection is closed. authUserId is the user the connection was
// authenticated as, empty for anonymous connections.
func (h *Hub) Serve(conn *websocket.Conn, authUserId string) {
	c := newClient(h, conn, authUserId)
	h.registry.Register(c)
	h.logger.Debug("client connected", "conn", c.Id, "user", authUserId)
	c.Add(1)
	go c.WriteLoop()
	c.ReadLoop()
	rooms := h.registry.Unregister(c)
	c.close()
	c.Wait()
	h.logger.Debug("client disconnected", "conn", c.Id, "rooms", len(rooms))
}

// Dispatch handles one inbound signal of c. An error means the signal was dropped.
func (h *Hub) Dispatch(c *Client, message *types.WebsocketMessage) error {
	switch message.Event {
	case types.SignalSetup:
		s, err := decodeSetup(message.Data)
		if err != nil {
			return fmt.Errorf("invalid setup: %w", err)
		}
		if c.authUserId != "" && s.UserId != c.authUserId {
			return fmt.Errorf("setup for user %s on a connection authenticated as %s", s.UserId, c.authUserId)
		}
		if previous := c.UserId(); previous != "" && previous != s.UserId {
			h.registry.Leave(c, previous)
		}
		h.registry.Join(c, s.UserId)
		c.setUserId(s.UserId)
		frame, err := types.NewWebsocketMessage(types.SignalConnected, nil)
		if err != nil {
			return err
		}
		c.trySend(frame)

	case types.SignalJoinChat:
		s, err := decodeRoom(message.Data)
		if err != nil {
			return fmt.Errorf("invalid join chat: %w", err)
		}
		if h.registry.Join(c, s.Room) {
			h.logger.Trace("joined room", "conn", c.Id, "room", s.Room)
		}

	case types.SignalTyping, types.SignalStopTyping:
		s, err := decodeRoom(message.Data)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", message.Event, err)
		}
		frame, err := types.NewWebsocketMessage(message.Event, s.Room)
		if err != nil {
			return err
		}
		h.publish(s.Room, c.Id, frame)

	case types.SignalNewMessage:
		s, err := decodeNewMessage(message.Data)
		if err != nil {
			return fmt.Errorf("invalid new message: %w", err)
		}
		senderId := c.UserId()
		if s.Sender != nil {
			senderId = s.Sender.Id
		}
		if c.authUserId != "" && senderId != c.authUserId {
			return fmt.Errorf("message from %s on a connection authenticated as %s", senderId, c.authUserId)
		}
		frame, err := types.NewWebsocketMessage(types.SignalMessageReceived, message.Data)
		if err != nil {
			return err
		}
		recipients := lo.Uniq(lo.FilterMap(s.Chat.Users, func(u signalUser, _ int) (string, bool) {
			return u.Id, u.Id != senderId
		}))
		for _, userId := range recipients {
			h.publish(userId, c.Id, frame)
		}

	default:
		return fmt.Errorf("unknown event %q", message.Event)
	}
	return nil
}

// publish delivers frame to the subscribers of room. With a relay the delivery is queued for Run, a full queue
// falls back to local delivery.
func (h *Hub) publish(room, exclude string, frame []byte) {
	d := &Delivery{Room: room, Exclude: exclude, Payload: frame}
	if h.outbox == nil {
		h.deliver(d)
		return
	}
	select {
	case h.outbox <- d:
	default:
		h.logger.Warn("relay queue full, delivering locally", "room", room)
		h.deliver(d)
	}
}

func (h *Hub) deliver(d *Delivery) {
	for _, c := range h.registry.Subscribers(d.Room, d.Exclude) {
		c.trySend(d.Payload)
	}
}
