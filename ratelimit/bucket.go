package ratelimit

import "golang.org/x/time/rate"

// limiterHandle wraps a *rate.Limiter with the two operations this
// package needs: non-blocking admission, and a "provably full" check used
// by the keyed sweep to tell quiescent buckets apart from ones currently
// being throttled.
type limiterHandle struct {
	burst int
	rl    *rate.Limiter
}

func newLimiterHandle(q Quota) *limiterHandle {
	return &limiterHandle{burst: q.Burst, rl: rate.NewLimiter(q.Rate, q.Burst)}
}

func (h *limiterHandle) allow() bool {
	return h.rl.Allow()
}

// full reports whether the bucket currently holds no token debt, i.e. it
// has replenished back up to its burst capacity. Such a bucket is
// behaviorally identical to one that was never created, so it is safe to
// evict.
func (h *limiterHandle) full() bool {
	return h.rl.Tokens() >= float64(h.burst)
}
