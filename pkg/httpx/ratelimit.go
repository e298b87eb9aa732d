package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/pulse/pkg/ratelimit"
	"github.com/aussiebroadwan/pulse/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig wires a limiter bucket into a middleware.
type RateLimitConfig struct {
	Limiter *ratelimit.Limiter
	Bucket  string
	Key     KeyExtractor

	// OnLimited is called for every rejected request, typically a metric.
	OnLimited func(bucket string)
}

// RateLimitMiddleware rejects requests over the bucket's ceiling with 429
// before they reach the wrapped handler. Nothing is queued.
func RateLimitMiddleware(cfg RateLimitConfig) Middleware {
	// Under attack every request is rejected, one warning per second is plenty.
	logLimited := &rate.Sometimes{Interval: time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			key := cfg.Key(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			d, err := cfg.Limiter.Admit(key, cfg.Bucket)
			if err != nil {
				log.Error("rate limit: admit failed, allowing request", "bucket", cfg.Bucket, "err", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				if cfg.OnLimited != nil {
					cfg.OnLimited(cfg.Bucket)
				}
				logLimited.Do(func() {
					log.Warn("rate limit exceeded",
						"bucket", cfg.Bucket,
						"key", key,
						"endpoint", r.URL.Path,
						"retry_after", d.RetryAfter.String(),
					)
				})

				e := *ErrRateLimited
				e.RetryAfter = d.RetryAfter
				e.WriteError(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
