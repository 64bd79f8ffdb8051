package ws

import (
	"context"
	"sync"
	"time"

	"messenger/internal/core/domain"
)

// RuntimeClient serialises all writes to one socket through writeLoop.
// Send only queues; a failed write closes the client so later sends fail fast.
type RuntimeClient struct {
	ws   *WebSocket
	out  chan []byte
	done chan struct{}
	once sync.Once

	closeCode   int
	closeReason string
}

func NewClient(ws *WebSocket, buffer int) *RuntimeClient {
	if buffer <= 0 {
		buffer = 256
	}
	c := &RuntimeClient{
		ws:   ws,
		out:  make(chan []byte, buffer),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *RuntimeClient) Send(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return domain.ErrClientClosed
	default:
	}
	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return domain.ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes frames already queued, then sends a close frame with code and reason.
// Only the first call has any effect.
func (c *RuntimeClient) Close(code int, reason string) {
	c.once.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

// Done is closed once the client stops accepting frames.
func (c *RuntimeClient) Done() <-chan struct{} {
	return c.done
}

func (c *RuntimeClient) writeLoop() {
	defer c.ws.Close()

	var ping <-chan time.Time
	if period := c.ws.PingPeriod(); period > 0 {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		select {
		case data := <-c.out:
			if err := c.ws.WriteMessage(data); err != nil {
				c.Close(0, "")
				return
			}
		case <-ping:
			if err := c.ws.WritePing(); err != nil {
				c.Close(0, "")
				return
			}
		case <-c.done:
			c.flush()
			if c.closeCode != 0 {
				_ = c.ws.WriteClose(c.closeCode, c.closeReason)
			}
			return
		}
	}
}

func (c *RuntimeClient) flush() {
	for {
		select {
		case data := <-c.out:
			if err := c.ws.WriteMessage(data); err != nil {
				return
			}
		default:
			return
		}
	}
}
