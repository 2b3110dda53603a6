package app

import (
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 128
)

// Client is one live websocket connection of a user. Outbound writes go
// through a buffered channel consumed by a single write loop, so fan-out
// from concurrent event handlers never interleaves frames.
type Client struct {
	ID     string
	UserID string

	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

// NewClient wraps a websocket connection for the given user.
func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// Start launches the write loop. Call exactly once.
func (c *Client) Start() {
	go c.writeLoop()
}

// Send enqueues an already-marshaled event. A slow client with a full
// buffer is closed to keep backpressure bounded; its cleanup happens
// lazily through the read loop's disconnect path.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	case c.send <- payload:
		return nil
	default:
		c.Close()
		return errors.New("send buffer full")
	}
}

// Close terminates the connection and stops the write loop. Idempotent.
// The socket teardown runs off the caller's goroutine; Close never blocks
// on the peer, so fan-out paths that close slow clients keep moving.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		conn := c.conn
		if conn == nil {
			return
		}
		go func() {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			_ = conn.Close()
		}()
	})
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
