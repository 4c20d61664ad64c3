package outbox

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// WSSubscriber adapts a raw gorilla websocket connection to the Subscriber
// interface the Hub fans events out to.
type WSSubscriber struct {
	id         string
	facilityID uuid.UUID
	conn       *websocket.Conn
	hub        *Hub
	send       chan []byte
	closed     bool
	mu         sync.RWMutex
	closeOnce  sync.Once
}

// NewWSSubscriber creates a new websocket subscriber watching facilityID.
func NewWSSubscriber(conn *websocket.Conn, facilityID uuid.UUID, hub *Hub) *WSSubscriber {
	return &WSSubscriber{
		id:         uuid.New().String(),
		facilityID: facilityID,
		conn:       conn,
		hub:        hub,
		send:       make(chan []byte, 256),
	}
}

func (c *WSSubscriber) ID() string            { return c.id }
func (c *WSSubscriber) FacilityID() uuid.UUID { return c.facilityID }

// Send queues a message to be delivered to the subscriber.
func (c *WSSubscriber) Send(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrClientClosed
	}
}

// Close closes the subscriber's connection. Safe to call more than once.
func (c *WSSubscriber) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		closeErr = c.conn.Close()
	})
	return closeErr
}

// ReadPump drains (and discards) client frames, watching for connection
// close. Run in its own goroutine per connection.
func (c *WSSubscriber) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("subscriber_id", c.id).
					Str("facility_id", c.facilityID.String()).
					Msg("outbox websocket unexpected close")
			}
			break
		}
	}
}

// WritePump delivers queued events (and periodic pings) to the connection.
// Run in its own goroutine per connection.
func (c *WSSubscriber) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().
					Err(err).
					Str("subscriber_id", c.id).
					Str("facility_id", c.facilityID.String()).
					Msg("outbox websocket write error")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
