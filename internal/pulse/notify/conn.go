package notify

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/pulse/internal/pulse/domain"
	"github.com/aussiebroadwan/pulse/pkg/jwtx"
)

// CloseReason says why the hub dropped a connection.
type CloseReason string

const (
	ReasonUnauthorized CloseReason = "unauthorized"
	ReasonRevoked      CloseReason = "session revoked"
	ReasonExpired      CloseReason = "token expired"
	ReasonSlowConsumer CloseReason = "slow consumer"
	ReasonWriteFailed  CloseReason = "write failed"
	ReasonClientGone   CloseReason = "client disconnected"
	ReasonShutdown     CloseReason = "server shutting down"
)

// Conn is the transport side of a live connection. WriteEvent is only ever
// called from one goroutine; Close may race with it.
type Conn interface {
	WriteEvent(ctx context.Context, e domain.Event) error
	Close(reason CloseReason) error
}

// Client is an admitted connection.
type Client struct {
	ID     string
	UserID int64

	token  string
	claims jwtx.Claims
	conn   Conn
	send   chan domain.Event

	once   sync.Once
	done   chan struct{}
	reason CloseReason
}

// Done is closed once the hub has let go of the client.
func (c *Client) Done() <-chan struct{} { return c.done }

// Reason is only meaningful after Done is closed.
func (c *Client) Reason() CloseReason {
	<-c.done
	return c.reason
}

// enqueue never blocks. It reports false when the buffer is full or the
// client is already stopping.
func (c *Client) enqueue(e domain.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- e:
		return true
	default:
		return false
	}
}

// stop reports whether this call did the stopping.
func (c *Client) stop(reason CloseReason) bool {
	stopped := false
	c.once.Do(func() {
		c.reason = reason
		close(c.done)
		stopped = true
	})
	return stopped
}
