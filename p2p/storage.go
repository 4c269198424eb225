package p2p

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/radicle-link/linkd/metrics"
	"github.com/radicle-link/linkd/ratelimit"
)

// StorageLimits is the admission-control pair embedded in Storage[S]:
// a global bucket for error emission and a per-peer keyed bucket for
// want emission.
type StorageLimits struct {
	errors *ratelimit.Direct
	wants  *ratelimit.Keyed[PeerId]
}

// NewStorageLimits builds the limiter pair from cfg, wiring sweep
// durations into observe (may be nil; see metrics.ObserveSweep).
func NewStorageLimits(cfg ratelimit.Config, observe ratelimit.SweepObserver) StorageLimits {
	return StorageLimits{
		errors: ratelimit.NewDirect(cfg.StorageErrors),
		wants:  ratelimit.NewKeyed[PeerId](cfg.StorageWants, observe),
	}
}

// Storage wraps a gossip-facing storage backend S with admission control.
// Put and Ask forward to inner verbatim: the wrapper never reorders,
// retries or drops an operation, it only reports whether emitting a
// *new* message would exceed quota via IsRateLimitBreached.
type Storage[S LocalStorage] struct {
	inner  S
	limits StorageLimits
}

// NewStorage borrows inner and pairs it with limits.
func NewStorage[S LocalStorage](inner S, limits StorageLimits) *Storage[S] {
	return &Storage[S]{inner: inner, limits: limits}
}

// Put forwards to inner verbatim.
func (s *Storage[S]) Put(ctx context.Context, provider PeerId, update []byte) (PutResult, error) {
	return s.inner.Put(ctx, provider, update)
}

// Ask forwards to inner verbatim.
func (s *Storage[S]) Ask(ctx context.Context, want Want) (bool, error) {
	return s.inner.Ask(ctx, want)
}

// IsRateLimitBreached reports whether emitting a message under limit
// would exceed quota, consuming a token if not. Admission is advisory:
// the gossip layer consults it before generating new messages, but must
// still process incoming protocol messages regardless of the result.
func (s *Storage[S]) IsRateLimitBreached(limit Limit) bool {
	switch limit.kind {
	case limitErrors:
		return s.limits.errors.Check() == ratelimit.TooSoon
	case limitWants:
		return s.limits.wants.CheckKey(limit.recipient) == ratelimit.TooSoon
	default:
		return false
	}
}

// sweepObserverFor adapts a ratelimit.SweepObserver into one tagged with
// a subsystem label, the shape metrics.ObserveSweep and the ambient
// logger both expect.
func sweepObserverFor(subsystem string, logger log.Logger, record func(subsystem string, removed, remaining int, took time.Duration)) ratelimit.SweepObserver {
	return func(removed, remaining int, took time.Duration) {
		if logger != nil {
			logger.Debug("swept keyed rate limiter", "subsystem", subsystem, "removed", removed, "remaining", remaining, "took", took)
		}
		if record != nil {
			record(subsystem, removed, remaining, took)
		}
	}
}

// DefaultStorageLimits builds the limiter pair used outside of tests:
// sweeps are logged via logger and recorded to the Prometheus metrics
// package.
func DefaultStorageLimits(cfg ratelimit.Config, logger log.Logger) StorageLimits {
	return StorageLimits{
		errors: ratelimit.NewDirect(cfg.StorageErrors),
		wants:  ratelimit.NewKeyed[PeerId](cfg.StorageWants, sweepObserverFor("storage.wants", logger, func(subsystem string, removed, remaining int, took time.Duration) {
			metrics.ObserveSweep(subsystem, removed, remaining, took)
		})),
	}
}
