package broadcast

import (
	"errors"
	"sync"
)

var (
	ErrBackpressure = errors.New("client send buffer full")
	ErrClientClosed = errors.New("client closed")
)

// Client is one subscriber of the hub. Frames are queued on a bounded
// channel drained by the transport's write loop.
type Client struct {
	ID string

	mu     sync.RWMutex
	send   chan []byte
	closed bool
}

// NewClient creates a client with a send buffer of the given size.
func NewClient(id string, buffer int) *Client {
	if buffer < 1 {
		buffer = 1
	}
	return &Client{ID: id, send: make(chan []byte, buffer)}
}

// Frames returns the channel the write loop drains. It is closed by Close.
func (c *Client) Frames() <-chan []byte {
	return c.send
}

// TrySend queues a frame without blocking.
func (c *Client) TrySend(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close stops delivery. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
