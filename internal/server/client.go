package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/leonfresh/pawnsquare-sub003/internal/game"
	"github.com/leonfresh/pawnsquare-sub003/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	outboxSize     = 64

	// Inbound frames beyond this rate are dropped like malformed ones.
	inboundRate  = 40
	inboundBurst = 80
)

// Client wraps one websocket connection. Outbound frames go through a
// buffered outbox drained by a single writer goroutine; when the outbox is
// full the frame is dropped so a dead receiver never stalls a broadcast.
type Client struct {
	id      string
	socket  *websocket.Conn
	outbox  chan model.Message
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
}

func NewClient(id string, socket *websocket.Conn) *Client {
	socket.SetReadLimit(maxMessageSize)
	socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	return &Client{
		id:      id,
		socket:  socket,
		outbox:  make(chan model.Message, outboxSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(inboundRate), inboundBurst),
	}
}

func (c *Client) ID() string { return c.id }

// Send enqueues a frame without blocking.
func (c *Client) Send(msg model.Message) {
	select {
	case c.outbox <- msg:
	default:
		log.Debug().Str("connId", c.id).Str("type", msg.Type).Msg("outbox full, dropping frame")
	}
}

// Close sends a close frame with the given reason and shuts the connection
// down. Safe to call more than once.
func (c *Client) Close(reason string) {
	c.once.Do(func() {
		close(c.done)
		c.socket.SetWriteDeadline(time.Now().Add(writeWait))
		c.socket.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
		c.socket.Close()
	})
}

// WritePump drains the outbox and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close("")
	}()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.outbox:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump feeds inbound frames to the hub until the connection dies.
func (c *Client) ReadPump(mgr *game.Manager, room *game.Room) {
	defer func() {
		mgr.Disconnect(room, c.id)
		c.Close("")
	}()
	for {
		_, raw, err := c.socket.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			log.Debug().Str("connId", c.id).Msg("rate limit exceeded, dropping frame")
			continue
		}
		mgr.HandleMessage(room, c.id, raw)
	}
}
