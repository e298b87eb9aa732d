package http

import (
	"log/slog"
	"net/http"
	"time"

	_ "github.com/aussiebroadwan/pulse/api/pulse" // Swagger docs
	"github.com/aussiebroadwan/pulse/internal/pulse/metrics"
	"github.com/aussiebroadwan/pulse/internal/pulse/notify"
	"github.com/aussiebroadwan/pulse/internal/pulse/service"
	"github.com/aussiebroadwan/pulse/internal/pulse/store"
	"github.com/aussiebroadwan/pulse/pkg/httpx"
	"github.com/aussiebroadwan/pulse/pkg/ratelimit"
	"github.com/aussiebroadwan/pulse/pkg/slogx"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers. Set the exported
// fields, then call ApplyRoutes once.
type Router struct {
	Mux     *http.ServeMux
	handler http.Handler

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	AuthService   *service.AuthService
	UserService   *service.UserService
	AvatarService *service.AvatarService // nil disables uploads

	Hub       *notify.Hub // nil disables /ws
	WSOrigins []string

	Limiter   *ratelimit.Limiter // nil disables rate limiting
	ClientKey httpx.KeyExtractor

	Metrics *metrics.Metrics

	// Media serves locally stored avatars under /media/.
	Media http.Handler
}

func NewRouter(st store.Store, logger *slog.Logger, buildVersion string) *Router {
	return &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
		ClientKey:    httpx.ClientKeyExtractor(httpx.ClientKeyConfig{}),
	}
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerProfile()
	r.registerRealtime()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())

	middlewares := []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover(),
	}
	if r.Limiter != nil {
		middlewares = append(middlewares, r.rateLimit(ratelimit.BucketGeneral))
	}
	r.handler = httpx.Chain(r.Mux, middlewares...)
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title						Pulse API
//	@version					0.1.0
//	@description				Account authentication with per-user realtime notifications.
//	@description
//	@description				Access tokens are HS256 JWTs. Logout and password changes revoke every token issued before them.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/pulse
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func (r *Router) rateLimit(bucket string) httpx.Middleware {
	if r.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	cfg := httpx.RateLimitConfig{Limiter: r.Limiter, Bucket: bucket, Key: r.ClientKey}
	if r.Metrics != nil {
		cfg.OnLimited = r.Metrics.RateLimited
	}
	return httpx.RateLimitMiddleware(cfg)
}

func (r *Router) authn() httpx.Middleware {
	return httpx.AuthnMiddleware(r.AuthService.Tokens, writeError)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{AuthService: r.AuthService, Metrics: r.Metrics}

	// Credential endpoints share the tight auth bucket.
	r.Mux.Handle("POST /register", httpx.Chain(http.HandlerFunc(h.HandleRegister), r.rateLimit(ratelimit.BucketAuth)))
	r.Mux.Handle("POST /login", httpx.Chain(http.HandlerFunc(h.HandleLogin), r.rateLimit(ratelimit.BucketAuth)))
	r.Mux.Handle("POST /token/refresh", httpx.Chain(http.HandlerFunc(h.HandleRefresh), r.rateLimit(ratelimit.BucketAuth)))

	r.Mux.Handle("POST /password/change",
		httpx.Chain(http.HandlerFunc(h.HandlePasswordChange),
			r.rateLimit(ratelimit.BucketAuth),
			r.authn(),
		),
	)

	r.Mux.Handle("GET /verify-token", httpx.Chain(http.HandlerFunc(h.HandleVerify), r.authn()))

	r.Mux.Handle("POST /logout/{userId}",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			r.authn(),
			httpx.RequireOwner("userId"),
		),
	)
}

func (r *Router) registerProfile() {
	h := &ProfileHandler{UserService: r.UserService, AvatarService: r.AvatarService}

	owned := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn, r.authn(), httpx.RequireOwner("userId"))
	}

	r.Mux.Handle("GET /me", httpx.Chain(http.HandlerFunc(h.HandleMe), r.authn()))
	r.Mux.Handle("GET /profile/{userId}", owned(h.HandleGet))
	r.Mux.Handle("PATCH /profile/{userId}", owned(h.HandlePatch))
	r.Mux.Handle("PATCH /subscription/{userId}", owned(h.HandleSubscription))
	r.Mux.Handle("POST /avatar/{userId}", owned(h.HandleAvatar))

	if r.Media != nil {
		r.Mux.Handle("GET /media/", http.StripPrefix("/media/", r.Media))
	}
}

// registerRealtime mounts the websocket upgrade. The hub authenticates the
// token itself, so there is no authn middleware here.
//
//	@Summary		Realtime notifications
//	@Description	Websocket upgrade. Send the access token as a bearer header or the access_token query parameter.
//	@Tags			Realtime
//	@Param			access_token	query	string	false	"access token"
//	@Success		101
//	@Failure		401	{object}	ErrorResponse
//	@Router			/ws [get].
func (r *Router) registerRealtime() {
	if r.Hub == nil {
		return
	}
	r.Mux.Handle("GET /ws", r.Hub.Handler(notify.HandlerConfig{OriginPatterns: r.WSOrigins}))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.Hub != nil))
	r.Mux.Handle("GET /init-table", InitTableHandler(r.store))

	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics.Handler())
	}
}
