// Package ratelimit throttles operations per subject (an automation id, a
// caller). Limiters live in a TTL store so idle subjects are forgotten.
package ratelimit

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Limiter decides whether subject may proceed now.
type Limiter interface {
	Allow(subject string) bool
}

// Unlimited allows everything.
type Unlimited struct{}

func (Unlimited) Allow(string) bool { return true }

type Config struct {
	PerMinute int
	Burst     int
	IdleTTL   time.Duration
}

// Keyed holds one token bucket per subject.
type Keyed struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	ttl   time.Duration
	store *gocache.Cache
}

func NewKeyed(cfg Config) *Keyed {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 6
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	return &Keyed{
		limit: rate.Every(time.Minute / time.Duration(cfg.PerMinute)),
		burst: cfg.Burst,
		ttl:   cfg.IdleTTL,
		store: gocache.New(cfg.IdleTTL, cfg.IdleTTL/2),
	}
}

func (k *Keyed) Allow(subject string) bool {
	return k.AllowAt(subject, time.Now())
}

// AllowAt is Allow with an explicit clock.
func (k *Keyed) AllowAt(subject string, now time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	var l *rate.Limiter
	if v, ok := k.store.Get(subject); ok {
		l = v.(*rate.Limiter)
	} else {
		l = rate.NewLimiter(k.limit, k.burst)
	}
	// refresh the idle deadline on every use
	k.store.Set(subject, l, k.ttl)
	return l.AllowN(now, 1)
}

// Subjects returns the number of tracked subjects.
func (k *Keyed) Subjects() int {
	return k.store.ItemCount()
}
