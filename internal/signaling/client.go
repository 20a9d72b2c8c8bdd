package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for WebRTC SDP messages
)

// Client is a wrapper for a single websocket connection (one participant).
type Client struct {
	// ID is the room-scoped participant id.
	ID string

	// Conn is the websocket connection.
	Conn *websocket.Conn

	// send carries pre-serialized outbound frames. The write pump is the
	// only reader; broadcasters enqueue without blocking.
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient wraps conn with an outbound queue of the given size.
func NewClient(id string, conn *websocket.Conn, queueSize int) *Client {
	return &Client{
		ID:   id,
		Conn: conn,
		send: make(chan []byte, queueSize),
	}
}

// Enqueue hands a frame to the write pump. It reports false when the client
// is already closed or its queue is full; callers treat either as a
// delivery failure for this recipient.
func (c *Client) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// CloseSend shuts the outbound queue, stopping the write pump once it has
// drained. Safe to call more than once and concurrently with Enqueue.
func (c *Client) CloseSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// WritePump pumps frames from the send queue to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	// When this function exits, stop the ticker and close the connection
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		// Case 1: We have a frame to send from our 'send' channel
		case frame, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The handler closed the queue.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return // Exit on write error
			}

		// Case 2: The ticker's timer has fired, so we send a ping
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Exit on ping error
			}
		}
	}
}
