// Package notify keeps the set of live, authenticated realtime connections
// and fans events out to them.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/pulse/internal/pulse/domain"
	"github.com/aussiebroadwan/pulse/internal/pulse/service"
	"github.com/aussiebroadwan/pulse/pkg/idx"
	"github.com/aussiebroadwan/pulse/pkg/jwtx"
)

var (
	ErrRejected = errors.New("notify: handshake rejected")
	ErrClosed   = errors.New("notify: hub closed")
)

// Verifier authenticates the token presented during the handshake.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (jwtx.Claims, error)
}

// Observer receives hub events for metrics. All methods must be cheap.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed(reason CloseReason)
	EventDelivered()
	EventDropped()
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened()            {}
func (nopObserver) ConnectionClosed(CloseReason) {}
func (nopObserver) EventDelivered()              {}
func (nopObserver) EventDropped()                {}

type Config struct {
	// SendBuffer is the per connection queue. A full queue closes the
	// connection.
	SendBuffer int

	// WriteTimeout bounds a single write to a peer.
	WriteTimeout time.Duration
}

const (
	DefaultSendBuffer   = 16
	DefaultWriteTimeout = 10 * time.Second
)

// Hub is the registry of admitted connections keyed by user id.
type Hub struct {
	verifier Verifier
	logger   *slog.Logger
	observer Observer
	cfg      Config

	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	closed  bool

	// revoked is the highest watermark generation seen per user. A handshake
	// whose token predates it is refused even if verification raced the
	// revocation.
	revoked map[int64]int64

	writers sync.WaitGroup
}

var (
	_ service.Notifier           = (*Hub)(nil)
	_ service.RevocationListener = (*Hub)(nil)
)

func NewHub(v Verifier, logger *slog.Logger, obs Observer, cfg Config) *Hub {
	if obs == nil {
		obs = nopObserver{}
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Hub{
		verifier: v,
		logger:   logger,
		observer: obs,
		cfg:      cfg,
		clients:  make(map[int64]map[*Client]struct{}),
		revoked:  make(map[int64]int64),
	}
}

// Handshake authenticates conn with token and, on success, adds it to the
// addressable set. A rejected conn is closed and never registered.
func (h *Hub) Handshake(ctx context.Context, conn Conn, token string) (*Client, error) {
	claims, err := h.verifier.VerifyToken(ctx, token)
	if err != nil {
		h.logger.Warn("realtime handshake rejected", "error", err)
		_ = conn.Close(ReasonUnauthorized)
		return nil, errors.Join(ErrRejected, err)
	}

	c := &Client{
		ID:     idx.New().String(),
		UserID: claims.UserID,
		token:  token,
		claims: claims,
		conn:   conn,
		send:   make(chan domain.Event, h.cfg.SendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close(ReasonShutdown)
		return nil, ErrClosed
	}
	if claims.Generation < h.revoked[c.UserID] {
		h.mu.Unlock()
		h.logger.Warn("realtime handshake rejected", "user_id", c.UserID, "error", service.ErrTokenRevoked)
		_ = conn.Close(ReasonRevoked)
		return nil, errors.Join(ErrRejected, service.ErrTokenRevoked)
	}
	set, ok := h.clients[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.UserID] = set
	}
	set[c] = struct{}{}
	h.writers.Add(1)
	h.mu.Unlock()

	h.observer.ConnectionOpened()
	h.logger.Debug("realtime connection admitted", "user_id", c.UserID, "conn_id", c.ID)

	go h.writeLoop(c)
	return c, nil
}

func (h *Hub) writeLoop(c *Client) {
	defer h.writers.Done()
	defer func() {
		h.remove(c)
		_ = c.conn.Close(c.reason)
		h.observer.ConnectionClosed(c.reason)
		h.logger.Debug("realtime connection closed",
			"user_id", c.UserID,
			"conn_id", c.ID,
			"reason", string(c.reason),
		)
	}()

	for {
		select {
		case <-c.done:
			return
		case e := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), h.cfg.WriteTimeout)
			err := c.conn.WriteEvent(ctx, e)
			cancel()
			if err != nil {
				h.observer.EventDropped()
				c.stop(ReasonWriteFailed)
				return
			}
			h.observer.EventDelivered()
			if e.Type == domain.EventSessionRevoked {
				c.stop(ReasonRevoked)
				return
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.UserID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
}

// snapshot copies a user's clients so fan-out never holds the lock while
// touching a connection.
func (h *Hub) snapshot(userID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.clients[userID]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Send queues e on every connection of userID. A connection whose queue is
// full is closed; the others are unaffected.
func (h *Hub) Send(userID int64, e domain.Event) {
	for _, c := range h.snapshot(userID) {
		if c.enqueue(e) {
			continue
		}
		h.observer.EventDropped()
		if h.Disconnect(c, ReasonSlowConsumer) {
			h.logger.Warn("realtime slow consumer closed", "user_id", userID, "conn_id", c.ID)
		}
	}
}

// Disconnect removes c from the registry and closes it. It reports whether
// this call closed the client.
func (h *Hub) Disconnect(c *Client, reason CloseReason) bool {
	h.remove(c)
	return c.stop(reason)
}

// UserRevoked tells every connection of the user that its session ended and
// then closes it. Connections that cannot take the event are closed at once.
func (h *Hub) UserRevoked(userID int64, w domain.Watermark) {
	h.mu.Lock()
	if w.Generation > h.revoked[userID] {
		h.revoked[userID] = w.Generation
	}
	h.mu.Unlock()

	e := domain.NewEvent(userID, domain.EventSessionRevoked, map[string]any{
		"generation": w.Generation,
	})
	for _, c := range h.snapshot(userID) {
		h.remove(c)
		if !c.enqueue(e) {
			c.stop(ReasonRevoked)
		}
	}
}

// Sweep re-authenticates every connection and closes those whose token has
// expired or been revoked elsewhere. Infrastructure errors keep the
// connection; the next sweep tries again.
func (h *Hub) Sweep(ctx context.Context) int {
	h.mu.RLock()
	all := make([]*Client, 0)
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	closed := 0
	for _, c := range all {
		_, err := h.verifier.VerifyToken(ctx, c.token)
		switch {
		case err == nil:
			continue
		case errors.Is(err, service.ErrTokenExpired):
			if h.Disconnect(c, ReasonExpired) {
				closed++
			}
		case errors.Is(err, service.ErrUnauthorized):
			if h.Disconnect(c, ReasonRevoked) {
				closed++
			}
		default:
			h.logger.Warn("realtime sweep could not verify connection", "conn_id", c.ID, "error", err)
		}
	}
	return closed
}

// RunSweeper calls Sweep on every tick until ctx is done.
func (h *Hub) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := h.Sweep(ctx); n > 0 {
				h.logger.Info("realtime sweep closed connections", "closed", n)
			}
		}
	}
}

// Connections returns how many connections userID has.
func (h *Hub) Connections(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Len returns the total number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Shutdown closes every connection and refuses new ones. It waits for the
// writers to finish or for ctx to end.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	var all []*Client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.clients = make(map[int64]map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.stop(ReasonShutdown)
	}

	done := make(chan struct{})
	go func() {
		h.writers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
