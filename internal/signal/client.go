package signal

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/leonfresh/pawnsquare-sub003/internal/model"
)

const (
	writeWait  = 10 * time.Second
	outboxSize = 64
)

// Handler consumes the raw payload of one inbound message kind.
type Handler func(payload json.RawMessage)

// Client is the client half of the hub transport: it joins one room over a
// websocket, fans inbound messages out to registered handlers and queues
// outbound frames without blocking the caller.
type Client struct {
	socket *websocket.Conn
	outbox chan model.Message
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	handlers map[string][]Handler
	you      string
}

// Dial connects to the hub for the given room. baseURL is the websocket
// endpoint, e.g. "ws://host:8080/ws".
func Dial(baseURL, roomID string) (*Client, error) {
	socket, _, err := websocket.DefaultDialer.Dial(baseURL+"?room="+url.QueryEscape(roomID), nil)
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}
	c := &Client{
		socket:   socket,
		outbox:   make(chan model.Message, outboxSize),
		done:     make(chan struct{}),
		handlers: make(map[string][]Handler),
	}
	c.On(model.KindSync, func(payload json.RawMessage) {
		var snap model.SyncPayload
		if err := json.Unmarshal(payload, &snap); err != nil {
			return
		}
		c.mu.Lock()
		c.you = snap.You
		c.mu.Unlock()
	})
	go c.writePump()
	return c, nil
}

// On registers a handler for an inbound message kind. Handlers run on the
// read loop goroutine, in registration order.
func (c *Client) On(kind string, h Handler) {
	c.mu.Lock()
	c.handlers[kind] = append(c.handlers[kind], h)
	c.mu.Unlock()
}

// You returns the connection id assigned by the hub, empty until the sync
// snapshot arrives.
func (c *Client) You() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.you
}

// Send enqueues a frame without blocking; frames are dropped when the outbox
// is full.
func (c *Client) Send(msg model.Message) {
	select {
	case c.outbox <- msg:
	default:
		log.Debug().Str("type", msg.Type).Msg("signal outbox full, dropping frame")
	}
}

// Run reads frames and dispatches them until the connection dies.
func (c *Client) Run() error {
	defer c.Close()
	for {
		_, raw, err := c.socket.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return nil
			default:
				return fmt.Errorf("read hub frame: %w", err)
			}
		}
		var in model.Inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			log.Debug().Err(err).Msg("dropping malformed hub frame")
			continue
		}
		c.mu.Lock()
		hs := append([]Handler(nil), c.handlers[in.Type]...)
		c.mu.Unlock()
		for _, h := range hs {
			h(in.Payload)
		}
	}
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.socket.SetWriteDeadline(time.Now().Add(writeWait))
		c.socket.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.socket.Close()
	})
}

func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.outbox:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}
