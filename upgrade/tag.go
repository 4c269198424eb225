// Package upgrade implements the one-way, per-stream sub-protocol tag
// exchanged before any application bytes flow on a freshly opened
// bidirectional stream, allowing a single connection to carry
// heterogeneous sub-protocols (gossip, repository transfer, membership,
// interrogation, request-pull).
package upgrade

import "fmt"

// Tag identifies the sub-protocol negotiated for a stream.
type Tag uint8

const (
	Gossip        Tag = 0
	Git           Tag = 1
	Membership    Tag = 2
	Interrogation Tag = 3
	// RequestPull is carried by the wire codec for backward compatibility
	// with peers that still announce it, but the negotiator's responder
	// rejects it explicitly.
	RequestPull Tag = 200
)

func (t Tag) String() string {
	switch t {
	case Gossip:
		return "gossip"
	case Git:
		return "git"
	case Membership:
		return "membership"
	case Interrogation:
		return "interrogation"
	case RequestPull:
		return "request-pull"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// knownTags enumerates every Tag the codec accepts. Any discriminator
// outside this set is an UnknownVariant error.
var knownTags = map[Tag]struct{}{
	Gossip:        {},
	Git:           {},
	Membership:    {},
	Interrogation: {},
	RequestPull:   {},
}

func isKnown(t Tag) bool {
	_, ok := knownTags[t]
	return ok
}
