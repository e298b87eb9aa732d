package notify

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/pulse/internal/pulse/domain"
	"github.com/aussiebroadwan/pulse/pkg/httpx"
	"github.com/aussiebroadwan/pulse/pkg/slogx"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// wsConn adapts a websocket connection to Conn. Events are JSON text frames.
type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) WriteEvent(ctx context.Context, e domain.Event) error {
	return wsjson.Write(ctx, w.c, e)
}

func (w *wsConn) Close(reason CloseReason) error {
	return w.c.Close(closeStatus(reason), string(reason))
}

func closeStatus(r CloseReason) websocket.StatusCode {
	switch r {
	case ReasonUnauthorized, ReasonRevoked, ReasonExpired:
		return websocket.StatusPolicyViolation
	case ReasonSlowConsumer:
		return websocket.StatusTryAgainLater
	case ReasonShutdown:
		return websocket.StatusGoingAway
	case ReasonWriteFailed:
		return websocket.StatusInternalError
	}
	return websocket.StatusNormalClosure
}

// HandlerConfig controls the upgrade.
type HandlerConfig struct {
	// OriginPatterns are host patterns allowed in the Origin header besides
	// the request's own host.
	OriginPatterns []string
}

// Handler upgrades the request and runs the handshake. The token comes from
// the Authorization header or, for browsers that cannot set headers on a
// websocket, the access_token query parameter. The connection is read only
// from the server's point of view; anything the client sends is discarded.
func (h *Hub) Handler(cfg HandlerConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := slogx.FromContext(r.Context())

		token, ok := httpx.BearerToken(r)
		if !ok {
			token = r.URL.Query().Get("access_token")
		}
		if token == "" {
			httpx.ErrInvalidToken.WithDescription("missing access token").WriteError(w)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			l.Warn("websocket upgrade failed", "error", err)
			return
		}

		ctx := c.CloseRead(r.Context())

		client, err := h.Handshake(ctx, &wsConn{c: c}, token)
		if err != nil {
			return
		}

		select {
		case <-ctx.Done():
			h.Disconnect(client, ReasonClientGone)
		case <-client.Done():
		}
	})
}
