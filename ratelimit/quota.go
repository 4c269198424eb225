// Package ratelimit implements the direct and keyed token-bucket admission
// control used to gate gossip wants, error emission and membership churn.
// Admission is non-blocking: callers get Ok or TooSoon back immediately
// and decide for themselves whether to drop or retry.
package ratelimit

import "golang.org/x/time/rate"

// Quota is (replenish_rate, burst_capacity) over monotonic time, the
// static configuration shared by every token bucket this package creates.
type Quota struct {
	Rate  rate.Limit
	Burst int
}

// PerSecond builds a Quota that replenishes n tokens per second.
func PerSecond(n float64, burst int) Quota {
	return Quota{Rate: rate.Limit(n), Burst: burst}
}

// PerMinute builds a Quota that replenishes n tokens per minute.
func PerMinute(n float64, burst int) Quota {
	return Quota{Rate: rate.Limit(n / 60), Burst: burst}
}

func (q Quota) newLimiter() *rate.Limiter {
	return rate.NewLimiter(q.Rate, q.Burst)
}

// Config groups the three quotas spec'd for this node: membership churn,
// per-peer-per-subject gossip fetches, and the storage-facing error/want
// admission pair.
type Config struct {
	Membership Quota
	// GossipFetchesPerPeerAndURN bounds how often this peer will issue a
	// fetch want for the same subject to the same remote.
	GossipFetchesPerPeerAndURN Quota
	StorageErrors              Quota
	StorageWants               Quota
}

// DefaultConfig sets the default quotas: membership at 1 msg/s burst 10,
// gossip fetches at 1/min burst 5, storage errors at a global 10/min,
// storage wants at 30/min per peer.
func DefaultConfig() Config {
	return Config{
		Membership:                 PerSecond(1, 10),
		GossipFetchesPerPeerAndURN: PerMinute(1, 5),
		StorageErrors:              PerMinute(10, 10),
		StorageWants:               PerMinute(30, 30),
	}
}
