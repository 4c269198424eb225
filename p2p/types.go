// Package p2p aggregates the peer runtime state: identity, connection
// endpoint, membership view, storage pool, gossip caches, event bus and
// rate limiters, bound into a single shared, cheaply-clonable handle.
package p2p

import (
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// PeerId is the stable, content-addressed identifier of a remote peer. It
// has total equality and ordering (string comparison) and is a valid map
// key.
type PeerId = peer.ID

// Addr is an address hint used when dialing a peer for the first time.
type Addr = multiaddr.Multiaddr

// URN is an opaque subject identifier used by gossip; the core treats it
// as an opaque byte string.
type URN string

// Nonce is a short-lived, replay-protection token. The bag indexing it
// only needs the key type to shape its own LRU-backed reference bag
// (p2p/cache).
type Nonce string

// Want is a gossip-layer request for an artifact identified by a URN,
// addressed to a specific recipient.
type Want struct {
	URN       URN
	Recipient PeerId
}

// Limit names which admission predicate a Storage[S] caller is asking
// about.
type Limit struct {
	kind      limitKind
	recipient PeerId
}

type limitKind int

const (
	limitErrors limitKind = iota
	limitWants
)

// Errors names the global error-emission admission limit.
func Errors() Limit { return Limit{kind: limitErrors} }

// Wants names the per-recipient want-emission admission limit.
func Wants(recipient PeerId) Limit { return Limit{kind: limitWants, recipient: recipient} }
