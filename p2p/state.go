package p2p

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
	"github.com/radicle-link/linkd/metrics"
	"github.com/radicle-link/linkd/p2p/cache"
	"github.com/radicle-link/linkd/ratelimit"
	"github.com/radicle-link/linkd/upgrade"
)

// GitHandler dispatches an inbound, already-upgraded Git stream to the
// repository-transfer sub-protocol. It is an external collaborator: the
// core only needs somewhere to hand the stream off to.
type GitHandler interface {
	HandleGit(ctx context.Context, stream *GitStream, from PeerId)
}

// GitStreamFactory is the sole surface by which the repository-transfer
// sub-protocol obtains a transport to a given peer.
type GitStreamFactory interface {
	OpenStream(ctx context.Context, to PeerId, addrHints []Addr) (*GitStream, bool)
}

// State is the peer runtime: a shared, cheaply-clonable aggregate binding
// a peer's identity, its connection endpoint, membership view, storage,
// event bus and rate limiters into one coordinated instance. Every field
// is a pointer, an interface over a synchronized type, or an immutable
// value, so copying a State by value produces an independent handle to the same
// backing resources — there is no exterior lock over State itself, and a
// process may host any number of independent instances.
type State[S LocalStorage] struct {
	LocalID PeerId

	Endpoint   Endpoint
	Git        GitHandler
	Membership Membership
	Storage    *Storage[S]
	Phone      EventBus
	Config     Config

	Nonces *cache.NonceBag[Nonce]
	Caches *cache.GossipCache[URN]

	Spawner Spawner

	// Limits gates membership-churn admission, keyed per peer. Separate
	// from Storage's own limiter pair, which covers errors/wants.
	Limits *ratelimit.Keyed[PeerId]

	Log log.Logger
}

// New constructs a State for localID. logger may be nil, in which case
// the root logger (log.Root()) is used.
func New[S LocalStorage](localID PeerId, endpoint Endpoint, git GitHandler, membership Membership, storage *Storage[S], phone EventBus, cfg Config, spawner Spawner, membershipQuota ratelimit.Quota, logger log.Logger) *State[S] {
	if logger == nil {
		logger = log.Root()
	}
	return &State[S]{
		LocalID:    localID,
		Endpoint:   endpoint,
		Git:        git,
		Membership: membership,
		Storage:    storage,
		Phone:      phone,
		Config:     cfg,
		Nonces:     cache.NewNonceBag[Nonce](cache.DefaultNonceCapacity),
		Caches:     cache.NewGossipCache[URN](cache.DefaultNonceCapacity),
		Spawner:    spawner,
		Limits:     ratelimit.NewKeyed[PeerId](membershipQuota, nil),
		Log:        logger.New("local", localID),
	}
}

// OpenStream implements GitStreamFactory: it reuses an
// existing connection to to if one is open, otherwise establishes a new
// one, then opens a fresh bidirectional stream on it and negotiates the
// Git sub-protocol. Every failure is logged and reported as (nil, false);
// connection-establishment and stream-open failures are never fatal to
// the peer.
func (s State[S]) OpenStream(ctx context.Context, to PeerId, addrHints []Addr) (*GitStream, bool) {
	plog := s.Log.New("peer", to)

	conn, ok := s.Endpoint.GetConnection(to)
	if !ok {
		var ingress IngressStream
		var err error
		conn, ingress, err = s.Endpoint.Connect(ctx, to, addrHints)
		if err != nil {
			plog.Debug("open_stream: connect failed", "err", err)
			metrics.ObserveOpenStream("connect_failed")
			return nil, false
		}
		s.Spawner.Spawn(context.Background(), func(ctx context.Context) {
			s.consumeIngress(ctx, ingress, to)
		})
	}

	raw, err := conn.OpenBidi(ctx)
	if err != nil {
		plog.Debug("open_stream: open_bidi failed", "err", err)
		metrics.ObserveOpenStream("open_bidi_failed")
		return nil, false
	}

	git, err := upgrade.Upgrade[upgrade.GitProtocol](raw, upgrade.Git)
	if err != nil {
		plog.Debug("open_stream: upgrade failed", "err", err)
		metrics.ObserveOpenStream("upgrade_failed")
		metrics.ObserveUpgrade("initiator", "error")
		return nil, false
	}
	metrics.ObserveOpenStream("ok")
	metrics.ObserveUpgrade("initiator", "ok")
	return git, true
}

// consumeIngress drains streams the remote peer opens back on a
// connection this peer just established, dispatching each through the
// shared demultiplexer, until the ingress source is exhausted or ctx is
// done. This is the detached task spawned by step 2 of OpenStream's
// algorithm.
func (s State[S]) consumeIngress(ctx context.Context, ingress IngressStream, from PeerId) {
	for {
		stream, err := ingress.Accept(ctx)
		if err != nil {
			return
		}
		s.demux(ctx, stream, from)
	}
}

// demux reads the upgrade tag off an inbound raw stream and dispatches it
// to the matching sub-protocol handler. Only Git has a dedicated handler
// in this core; other sub-protocols are the membership/gossip layers'
// responsibility and are logged, not dropped silently, so a missing
// handler is observable.
func (s State[S]) demux(ctx context.Context, raw BoxedStream, from PeerId) {
	plog := s.Log.New("peer", from)

	up, err := upgrade.WithUpgraded(raw)
	if err != nil {
		plog.Debug("demux: upgrade failed", "err", err)
		metrics.ObserveUpgrade("responder", "error")
		return
	}
	metrics.ObserveUpgrade("responder", "ok")

	switch up.Tag {
	case upgrade.Git:
		git, ok := up.AsGit()
		if !ok {
			plog.Error("demux: Git tag decoded but AsGit failed")
			return
		}
		if s.Git == nil {
			plog.Warn("demux: no Git handler registered, dropping stream")
			return
		}
		s.Git.HandleGit(ctx, git, from)
	default:
		plog.Debug("demux: no handler for sub-protocol", "tag", up.Tag)
	}
}

// Emit forwards each event to the event bus after any conversion the
// caller has already applied. It never blocks and never fails: an
// overloaded bus drops the overflow.
func (s State[S]) Emit(events ...Event) {
	s.Phone.Emit(events...)
}

// Tick processes tocks sequentially, in submission order, each against a
// fresh clone of state — State is passed by value here and to
// handler.Tock, so each call sees an independent copy of the aggregate
// sharing the same underlying handles.
func (s State[S]) Tick(ctx context.Context, tocks []Tock, handler TockHandler[S]) {
	for _, t := range tocks {
		handler.Tock(ctx, s, t)
	}
}
