package p2p

import (
	"context"
	"time"

	"github.com/radicle-link/linkd/upgrade"
)

// BoxedStream is a raw, not-yet-upgraded bidirectional stream as handed
// back by a Connection.
type BoxedStream = upgrade.Stream

// GitStream is the type-tagged stream handed to the repository-transfer
// sub-protocol once negotiation has completed.
type GitStream = upgrade.UpgradedStream[upgrade.GitProtocol]

// IngressStream is the source of streams a remote peer opens on a
// connection this peer initiated. State.OpenStream spawns a detached task
// draining it into the shared demultiplexer as soon as a connection is
// established, so inbound streams on that connection are not missed.
type IngressStream interface {
	Accept(ctx context.Context) (BoxedStream, error)
}

// Connection is a single established transport connection to a peer.
type Connection interface {
	RemotePeer() PeerId
	OpenBidi(ctx context.Context) (BoxedStream, error)
}

// Endpoint is the QUIC transport surface the core consumes. It is
// responsible for connection reuse and establishment; the core never
// speaks QUIC directly.
type Endpoint interface {
	// GetConnection returns an already-open connection to id, if any.
	GetConnection(id PeerId) (Connection, bool)
	// Connect dials id using addrHints, returning the new connection plus
	// a source of streams the remote peer opens on it.
	Connect(ctx context.Context, id PeerId, addrHints []Addr) (Connection, IngressStream, error)
}

// PutResult reports the outcome of a LocalStorage.Put call.
type PutResult int

const (
	// PutApplied means the update was new and has been stored.
	PutApplied PutResult = iota
	// PutStale means the update was already known and was not reapplied.
	PutStale
	// PutRejected means the update failed validation.
	PutRejected
)

// LocalStorage is the gossip-facing repository storage backend. The core
// wraps it in Storage[S] to add admission control without altering its
// contract: Put and Ask are forwarded verbatim, never reordered, retried
// or dropped.
type LocalStorage interface {
	Put(ctx context.Context, provider PeerId, update []byte) (PutResult, error)
	Ask(ctx context.Context, want Want) (bool, error)
}

// Event is anything the peer runtime can emit to the event bus. Concrete
// event types are defined by the membership/gossip layers; the core only
// needs to forward them. It is a plain alias (not a new interface type)
// so any bus implementation built around `any`/`interface{}` — such as
// events.Bus, which wraps go-ethereum's event.Feed — satisfies EventBus
// without an adaptor.
type Event = any

// EventBus is a fire-and-forget multicast sink. Emit must never block the
// caller and must never fail; a bus that is full simply drops the event.
type EventBus interface {
	Emit(events ...Event)
}

// JoinHandle is returned by Spawner.Spawn so a caller can optionally wait
// for detached work, though most callers detach and never look at it
// again.
type JoinHandle interface {
	Wait(ctx context.Context) error
}

// Spawner is the task-spawning capability the core relies on for all
// concurrent work; it must never be used to perform blocking I/O directly
// on the caller's goroutine.
type Spawner interface {
	Spawn(ctx context.Context, task func(ctx context.Context)) JoinHandle
	// SpawnBlocking dispatches a blocking call to a dedicated worker so it
	// never stalls the cooperative scheduler.
	SpawnBlocking(ctx context.Context, task func(ctx context.Context) error) JoinHandle
}

// Tock is a scheduled side-effect emitted by the membership/gossip state
// machine, consumed by State.Tick in submission order. Like Event, it is
// a plain alias so handler implementations can use `any` directly.
type Tock = any

// TockHandler dispatches a single Tock using a fresh clone of the peer
// state. Errors are handled by the handler itself; the core does not
// inspect them.
type TockHandler[S any] interface {
	Tock(ctx context.Context, state State[S], tock Tock)
}

// Membership is the external membership-protocol state machine. The core
// only needs enough of its surface to route input through the rate
// limiter and to know which peers are currently members.
type Membership interface {
	Peers() []PeerId
}

// ReplicationConfig and FetchConfig are the two halves of State.config;
// their fields are deliberately minimal since tuning their content is
// delegated to the gossip/replication layers.
type ReplicationConfig struct {
	// Factor is how many replicas of a repository this peer aims to hold.
	Factor int
}

type FetchConfig struct {
	// Timeout bounds a single repository fetch.
	Timeout time.Duration
}

type Config struct {
	Replication ReplicationConfig
	Fetch       FetchConfig
}
