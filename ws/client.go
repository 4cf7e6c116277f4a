package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tcriess/bingo-chat/types"
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	// Id identifies the connection, it is unique across hub instances.
	Id string

	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames. It is never closed, the write loop stops on done.
	Send chan []byte

	// user the connection was authenticated as when it was opened, may be empty
	authUserId string

	userLock sync.RWMutex
	userId   string

	done      chan struct{}
	closeOnce sync.Once

	// WaitGroup which keeps track of the running write loop.
	sync.WaitGroup
}

func newClient(hub *Hub, conn *websocket.Conn, authUserId string) *Client {
	return &Client{
		Id:         uuid.NewString(),
		hub:        hub,
		conn:       conn,
		Send:       make(chan []byte, hub.sendBuffer),
		authUserId: authUserId,
		done:       make(chan struct{}),
	}
}

// UserId returns the user set up on this connection, empty while the connection is anonymous.
func (c *Client) UserId() string {
	c.userLock.RLock()
	defer c.userLock.RUnlock()
	return c.userId
}

func (c *Client) setUserId(userId string) {
	c.userLock.Lock()
	c.userId = userId
	c.userLock.Unlock()
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// trySend enqueues frame without blocking. The frame is dropped if the client is gone or its buffer is full.
func (c *Client) trySend(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- frame:
		return true
	default:
		c.hub.logger.Warn("send buffer full, dropping frame", "conn", c.Id)
		return false
	}
}

// ReadLoop pumps signals from the websocket connection to the hub.
//
// The application runs ReadLoop in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadLoop() {
	defer c.conn.Close()
	c.conn.SetReadLimit(c.hub.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.logger.Info("ws closed unexpectedly", "conn", c.Id, "error", err)
			}
			return
		}
		message := &types.WebsocketMessage{}
		if err := json.Unmarshal(raw, message); err != nil {
			c.hub.logger.Warn("could not unmarshal ws message", "conn", c.Id, "error", err)
			continue
		}
		if err := c.hub.Dispatch(c, message); err != nil {
			c.hub.logger.Warn("dropped signal", "conn", c.Id, "event", message.Event, "error", err)
		}
	}
}

// WriteLoop pumps frames from the hub to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.Done()
	}()
	for {
		select {
		case frame := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.hub.logger.Debug("could not write to ws connection, exiting write loop", "conn", c.Id, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("could not send ping message, exiting write loop", "conn", c.Id)
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
