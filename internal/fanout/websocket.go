package fanout

import (
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// Control message types exchanged with WebSocket clients.
const (
	TypeJoin   = "join"
	TypeLeave  = "leave"
	TypePing   = "ping"
	TypePong   = "pong"
	TypeJoined = "joined"
	TypeLeft   = "left"
	TypeError  = "error"
)

// Default transport settings.
const (
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 60 * time.Second
	defaultMaxMessageSize = 4096 // control messages are small
	defaultSendBuffer     = 256
)

// Options configures the WebSocket transport.
type Options struct {
	// PingInterval is how often protocol-level pings are sent.
	PingInterval time.Duration

	// PongTimeout is how long to wait for any traffic before the
	// connection is considered dead.
	PongTimeout time.Duration

	// MaxMessageSize bounds inbound control messages.
	MaxMessageSize int64

	// SendBuffer is the per-client outbound queue length. A full
	// queue drops messages for that client only.
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = defaultPongTimeout
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	return o
}

// controlMessage is what clients send to manage room membership.
type controlMessage struct {
	Type  string   `json:"type"`
	Rooms []string `json:"rooms,omitempty"`
}

// controlReply acknowledges a control message.
type controlReply struct {
	Type      string   `json:"type"`
	Rooms     []string `json:"rooms,omitempty"`
	Message   string   `json:"message,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// Client is one WebSocket connection registered with the Hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	opts Options

	closeOnce sync.Once
}

// ServeWS returns the HTTP handler that upgrades connections and wires
// them into the hub. Clients join rooms with
// {"type":"join","rooms":["device-7"]} and leave with "leave".
func (h *Hub) ServeWS(opts Options) http.HandlerFunc {
	opts = opts.withDefaults()

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error("websocket upgrade failed", "error", err)
			return
		}

		client := &Client{
			hub:  h,
			conn: conn,
			send: make(chan []byte, opts.SendBuffer),
			opts: opts,
		}

		h.Register(client)

		go client.writePump()
		go client.readPump()
	}
}

// Deliver queues one envelope without blocking. It reports false when
// the client's buffer is full or the client is closing.
func (c *Client) Deliver(data []byte) (delivered bool) {
	defer func() {
		if recover() != nil {
			// Send on closed channel: client disconnected mid-delivery
			delivered = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		// Client buffer full, drop for this recipient only
		return false
	}
}

// Close releases the client's outbound queue. Safe to call more than
// once; the write pump shuts the connection down when the queue drains.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// readPump reads control messages from the connection until it drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
		c.conn.Close()
	}()

	deadline := c.opts.PingInterval + c.opts.PongTimeout
	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		c.handleControl(message)
	}
}

// writePump writes queued envelopes and keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Queue closed: say goodbye and drop the connection
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.PongTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.PongTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleControl processes one inbound control message.
func (c *Client) handleControl(data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.replyError("invalid JSON message")
		return
	}

	switch msg.Type {
	case TypeJoin:
		for _, room := range msg.Rooms {
			if room != "" {
				c.hub.Join(room, c)
			}
		}
		c.reply(controlReply{Type: TypeJoined, Rooms: msg.Rooms})
	case TypeLeave:
		for _, room := range msg.Rooms {
			if room != "" {
				c.hub.Leave(room, c)
			}
		}
		c.reply(controlReply{Type: TypeLeft, Rooms: msg.Rooms})
	case TypePing:
		c.reply(controlReply{Type: TypePong})
	default:
		c.replyError("unknown message type: " + msg.Type)
	}
}

func (c *Client) reply(r controlReply) {
	r.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.Deliver(data)
}

func (c *Client) replyError(message string) {
	c.reply(controlReply{Type: TypeError, Message: message})
}
