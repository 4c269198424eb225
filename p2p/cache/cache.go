// Package cache provides the two LRU-backed reference collections State
// keeps for itself: a replay-protection nonce bag and a per-subject
// gossip cache, in the same shape as P2PSyncClient.trusted,
// P2PSyncClient.quarantine and P2PReqRespServer.peerRateLimits.
//
// Both types are generic over their key type rather than importing the
// root p2p package's PeerId/Nonce/URN aliases directly, so that package
// can in turn depend on this one without an import cycle.
package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultNonceCapacity bounds the replay-protection nonce bag. A nonce is
// short-lived by construction, so a capacity-bounded LRU is sufficient —
// the oldest nonce evicted is, by the time the bag is full, long past any
// replay window.
const DefaultNonceCapacity = 100_000

// NonceBag tracks nonces seen recently to reject replays. It is safe for
// concurrent use.
type NonceBag[K comparable] struct {
	mu  sync.Mutex
	lru *simplelru.LRU[K, struct{}]
}

// NewNonceBag builds a bag with the given capacity.
func NewNonceBag[K comparable](capacity int) *NonceBag[K] {
	lru, _ := simplelru.NewLRU[K, struct{}](capacity, nil) // never errors for capacity > 0
	return &NonceBag[K]{lru: lru}
}

// Seen records n and reports whether it had already been seen (a replay).
func (b *NonceBag[K]) Seen(n K) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lru.Contains(n) {
		return true
	}
	b.lru.Add(n, struct{}{})
	return false
}

// entry is one cached gossip update: its payload and when it was cached,
// so callers can decide whether a cached copy is still worth serving
// without re-fetching from storage.
type entry struct {
	payload []byte
	at      time.Time
}

// GossipCache holds the most recent update seen per subject, bounded by
// capacity, evicting least-recently-used subjects first — exactly the
// role teacher's `quarantine *simplelru.LRU[common.Hash, syncResult]`
// plays for sync results, generalized to gossip subjects.
type GossipCache[K comparable] struct {
	mu  sync.Mutex
	lru *simplelru.LRU[K, entry]
}

// NewGossipCache builds a cache with the given capacity.
func NewGossipCache[K comparable](capacity int) *GossipCache[K] {
	lru, _ := simplelru.NewLRU[K, entry](capacity, nil)
	return &GossipCache[K]{lru: lru}
}

// Put records payload as the latest known content for subject.
func (c *GossipCache[K]) Put(subject K, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(subject, entry{payload: payload, at: time.Now()})
}

// Get returns the cached payload for subject and how long ago it was
// cached, if present.
func (c *GossipCache[K]) Get(subject K) (payload []byte, age time.Duration, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Get(subject)
	if !ok {
		return nil, 0, false
	}
	return e.payload, time.Since(e.at), true
}

// Len reports the number of cached subjects.
func (c *GossipCache[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
