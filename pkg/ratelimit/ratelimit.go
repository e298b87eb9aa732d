// Package ratelimit implements fixed-window admission counters keyed by
// (bucket, client key). State lives in process memory only.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// Well-known bucket names.
const (
	BucketGeneral = "general"
	BucketAuth    = "auth"
)

var ErrUnknownBucket = errors.New("ratelimit: unknown bucket")

// Bucket is a named window configuration.
type Bucket struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Decision is the outcome of a single Admit call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the current window resets. Zero when allowed.
	RetryAfter time.Duration
	ResetAt    time.Time
}

type windowKey struct {
	bucket string
	client string
}

type window struct {
	start time.Time
	count int
}

// Limiter holds every live window. The zero value is not usable, use New.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]Bucket
	windows map[windowKey]*window

	now        func() time.Time
	sweepEvery time.Duration
	lastSweep  time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New builds a limiter for the given buckets. Buckets with a non-positive
// limit or window are ignored.
func New(buckets []Bucket, opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[string]Bucket, len(buckets)),
		windows: make(map[windowKey]*window),
		now:     time.Now,
	}
	for _, b := range buckets {
		if b.Limit <= 0 || b.Window <= 0 {
			continue
		}
		l.buckets[b.Name] = b
		l.sweepEvery = max(l.sweepEvery, b.Window)
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// Bucket returns the configuration of a bucket.
func (l *Limiter) Bucket(name string) (Bucket, bool) {
	b, ok := l.buckets[name]
	return b, ok
}

// Admit counts one request for key in bucket and reports whether it fits in
// the current window. Rejected requests do not extend or consume the window.
func (l *Limiter) Admit(key, bucket string) (Decision, error) {
	b, ok := l.buckets[bucket]
	if !ok {
		return Decision{}, ErrUnknownBucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeSweep(now)

	k := windowKey{bucket: bucket, client: key}
	w, ok := l.windows[k]
	if !ok || now.Sub(w.start) >= b.Window {
		w = &window{start: now}
		l.windows[k] = w
	}

	reset := w.start.Add(b.Window)
	if w.count >= b.Limit {
		return Decision{
			Allowed:    false,
			Limit:      b.Limit,
			RetryAfter: reset.Sub(now),
			ResetAt:    reset,
		}, nil
	}

	w.count++
	return Decision{
		Allowed:   true,
		Limit:     b.Limit,
		Remaining: b.Limit - w.count,
		ResetAt:   reset,
	}, nil
}

// Len returns the number of live windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// maybeSweep drops expired windows at most once per longest window so the
// map does not grow with every client ever seen. Caller holds l.mu.
func (l *Limiter) maybeSweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.sweepEvery {
		return
	}
	l.lastSweep = now

	for k, w := range l.windows {
		if now.Sub(w.start) >= l.buckets[k.bucket].Window {
			delete(l.windows, k)
		}
	}
}
