/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"sync"
	"time"
)

// bucket is a token bucket that is refilled to its full capacity once per window.
// Windows are anchored at the bucket creation time.
type bucket struct {
	mu          sync.Mutex
	capacity    int64
	window      time.Duration
	tokens      int64
	windowStart time.Time
}

func newBucket(bw Bandwidth, now time.Time) *bucket {
	return &bucket{capacity: bw.Capacity, window: bw.Window, tokens: bw.Capacity, windowStart: now}
}

// tryConsume takes one token. If there are no tokens left,
// it returns the time remaining until the next refill.
func (b *bucket) tryConsume(now time.Time) (consumed bool, wait time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if elapsed := now.Sub(b.windowStart); elapsed >= b.window {
		b.windowStart = b.windowStart.Add(elapsed - elapsed%b.window)
		b.tokens = b.capacity
	}
	if b.tokens > 0 {
		b.tokens--
		return true, 0
	}
	return false, b.windowStart.Add(b.window).Sub(now)
}
