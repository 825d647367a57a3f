// Package ratelimit implements the shared identify gate. The platform caps
// how many new sessions may be opened per interval, keyed by
// shard_id % max_concurrency; every shard acquires the gate before it moves
// from dialing into the handshake.
// Thread-safe. No background goroutines; tokens are refilled lazily.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned by Allow when the bucket has no tokens.
var ErrRateLimited = errors.New("identify rate limit exceeded")

// Config configures the identify gate.
type Config struct {
	PerBucket      time.Duration // Interval between identifies per bucket. 0 = 5s default.
	MaxConcurrency int           // Number of independent buckets. 0 = 1.
}

// Gate is the shared identify rate limiter. Each bucket gets an independent
// token stream; shards hash into buckets by id % MaxConcurrency.
type Gate struct {
	mu             sync.Mutex
	buckets        map[int]*bucket
	perBucket      time.Duration
	maxConcurrency int
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// NewGate creates an identify gate with the given configuration.
func NewGate(cfg Config) *Gate {
	per := cfg.PerBucket
	if per <= 0 {
		per = 5 * time.Second
	}
	mc := cfg.MaxConcurrency
	if mc <= 0 {
		mc = 1
	}
	return &Gate{
		buckets:        make(map[int]*bucket),
		perBucket:      per,
		maxConcurrency: mc,
	}
}

// BucketFor maps a shard id to its bucket key.
func (g *Gate) BucketFor(shardID int) int {
	return shardID % g.maxConcurrency
}

// Allow consumes one token from the shard's bucket, refilling lazily based
// on elapsed time. Returns ErrRateLimited when the bucket is empty.
func (g *Gate) Allow(shardID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fill(g.BucketFor(shardID), time.Now()) {
		return nil
	}
	return ErrRateLimited
}

// Wait blocks until a token is available for the shard's bucket or ctx is
// done. Under contention the wait is a sleep-and-retry on the refill
// interval; identify attempts are rare enough that precision doesn't matter.
func (g *Gate) Wait(ctx context.Context, shardID int) error {
	key := g.BucketFor(shardID)
	for {
		g.mu.Lock()
		ok := g.fill(key, time.Now())
		g.mu.Unlock()
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.perBucket / 4):
		}
	}
}

// fill refills the bucket for the elapsed time and tries to consume one
// token. Caller holds g.mu.
func (g *Gate) fill(key int, now time.Time) bool {
	b, ok := g.buckets[key]
	if !ok {
		// First identify on this bucket: start with a full token.
		b = &bucket{tokens: 1, lastFill: now}
		g.buckets[key] = b
	}

	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed / g.perBucket.Seconds()
	if b.tokens > 1 {
		b.tokens = 1
	}
	b.lastFill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
