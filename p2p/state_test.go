package p2p

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radicle-link/linkd/ratelimit"
	"github.com/radicle-link/linkd/upgrade"
)

// pipeStream adapts net.Conn (from net.Pipe) to upgrade.Stream by adding
// degraded half-close semantics, exactly as upgrade/negotiate_test.go
// does for its own fixtures.
type pipeStream struct{ net.Conn }

func (p pipeStream) CloseRead() error  { return p.Conn.Close() }
func (p pipeStream) CloseWrite() error { return p.Conn.Close() }

func newPipe() (upgrade.Stream, upgrade.Stream) {
	a, b := net.Pipe()
	return pipeStream{a}, pipeStream{b}
}

// memStorage is a minimal in-memory LocalStorage double.
type memStorage struct{}

func (memStorage) Put(ctx context.Context, provider PeerId, update []byte) (PutResult, error) {
	return PutApplied, nil
}
func (memStorage) Ask(ctx context.Context, want Want) (bool, error) { return true, nil }

func newTestStorage() *Storage[memStorage] {
	return NewStorage[memStorage](memStorage{}, NewStorageLimits(ratelimit.DefaultConfig(), nil))
}

// noopBus and noopMembership satisfy EventBus/Membership without pulling
// in events.Bus or a real membership implementation.
type noopBus struct{ emitted int32 }

func (b *noopBus) Emit(events ...Event) { atomic.AddInt32(&b.emitted, int32(len(events))) }

type noopMembership struct{}

func (noopMembership) Peers() []PeerId { return nil }

// recordingSpawner counts detached Spawn calls before running each task
// on its own goroutine, so bootstrap tests can assert "spawns exactly one
// detached ingress consumer" deterministically.
type recordingSpawner struct {
	spawnN int32
}

func (r *recordingSpawner) Spawn(ctx context.Context, task func(ctx context.Context)) JoinHandle {
	atomic.AddInt32(&r.spawnN, 1)
	go task(ctx)
	return immediateHandle{}
}

func (r *recordingSpawner) SpawnBlocking(ctx context.Context, task func(ctx context.Context) error) JoinHandle {
	atomic.AddInt32(&r.spawnN, 1)
	go task(ctx)
	return immediateHandle{}
}

type immediateHandle struct{}

func (immediateHandle) Wait(ctx context.Context) error { return nil }

// fakeConnection and fakeEndpoint let tests script exactly how many times
// GetConnection/Connect/OpenBidi are invoked, to check the reuse and
// bootstrap code paths.
type fakeConnection struct {
	remote    PeerId
	openBidiN int32
	openErr   error
	initiator upgrade.Stream // handed back from OpenBidi
	mu        sync.Mutex
}

func (c *fakeConnection) RemotePeer() PeerId { return c.remote }

func (c *fakeConnection) OpenBidi(ctx context.Context) (BoxedStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	atomic.AddInt32(&c.openBidiN, 1)
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.initiator, nil
}

type fakeIngress struct {
	streams chan BoxedStream
}

func (i *fakeIngress) Accept(ctx context.Context) (BoxedStream, error) {
	select {
	case s, ok := <-i.streams:
		if !ok {
			return nil, io.EOF
		}
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fakeEndpoint struct {
	mu          sync.Mutex
	conns       map[PeerId]Connection
	connectN    int32
	connectErr  error
	connectResp func() (Connection, IngressStream, error)
}

func (e *fakeEndpoint) GetConnection(id PeerId) (Connection, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[id]
	return c, ok
}

func (e *fakeEndpoint) Connect(ctx context.Context, id PeerId, hints []Addr) (Connection, IngressStream, error) {
	atomic.AddInt32(&e.connectN, 1)
	if e.connectErr != nil {
		return nil, nil, e.connectErr
	}
	return e.connectResp()
}

func TestStateCloneIsAHandle(t *testing.T) {
	peerA := PeerId("peer-a")
	bus := &noopBus{}
	s := New[memStorage](peerA, &fakeEndpoint{}, nil, noopMembership{}, newTestStorage(), bus, Config{}, &recordingSpawner{}, ratelimit.DefaultConfig().Membership, nil)

	clone := *s

	other := PeerId("peer-other")
	clone.Limits.CheckKey(other)

	// Both handles share the same *ratelimit.Keyed backing map: a
	// mutation observed through the clone must be visible through the
	// original.
	require.Equal(t, 1, s.Limits.Len())
	require.Equal(t, s.Limits.Len(), clone.Limits.Len())

	s.Emit("via-original")
	clone.Emit("via-clone")
	require.EqualValues(t, 2, atomic.LoadInt32(&bus.emitted))
}

func TestOpenStreamReuse(t *testing.T) {
	peerSelf := PeerId("self")
	peerP := PeerId("p")

	initiator, responder := newPipe()
	conn := &fakeConnection{remote: peerP, initiator: initiator}
	ep := &fakeEndpoint{conns: map[PeerId]Connection{peerP: conn}}

	sp := &recordingSpawner{}
	s := New[memStorage](peerSelf, ep, nil, noopMembership{}, newTestStorage(), &noopBus{}, Config{}, sp, ratelimit.DefaultConfig().Membership, nil)

	done := make(chan struct{})
	var got upgrade.Upgraded
	var gotErr error
	go func() {
		got, gotErr = upgrade.WithUpgraded(responder)
		close(done)
	}()

	stream, ok := s.OpenStream(context.Background(), peerP, nil)
	require.True(t, ok)
	require.NotNil(t, stream)

	<-done
	require.NoError(t, gotErr)
	require.Equal(t, upgrade.Git, got.Tag)

	require.EqualValues(t, 0, atomic.LoadInt32(&ep.connectN))
	require.EqualValues(t, 1, atomic.LoadInt32(&conn.openBidiN))
	require.EqualValues(t, 0, atomic.LoadInt32(&sp.spawnN))
}

func TestOpenStreamBootstrapSuccess(t *testing.T) {
	peerSelf := PeerId("self")
	peerP := PeerId("p")

	initiator, responder := newPipe()
	conn := &fakeConnection{remote: peerP, initiator: initiator}
	ingress := &fakeIngress{streams: make(chan BoxedStream, 1)}
	close(ingress.streams) // nothing to drain; the consumer exits immediately

	ep := &fakeEndpoint{
		conns: map[PeerId]Connection{},
		connectResp: func() (Connection, IngressStream, error) {
			return conn, ingress, nil
		},
	}

	sp := &recordingSpawner{}
	s := New[memStorage](peerSelf, ep, nil, noopMembership{}, newTestStorage(), &noopBus{}, Config{}, sp, ratelimit.DefaultConfig().Membership, nil)

	done := make(chan struct{})
	go func() {
		_, _ = upgrade.WithUpgraded(responder)
		close(done)
	}()

	stream, ok := s.OpenStream(context.Background(), peerP, nil)
	require.True(t, ok)
	require.NotNil(t, stream)
	<-done

	require.EqualValues(t, 1, atomic.LoadInt32(&ep.connectN))
	require.EqualValues(t, 1, atomic.LoadInt32(&conn.openBidiN))
	require.EqualValues(t, 1, atomic.LoadInt32(&sp.spawnN))
}

func TestOpenStreamBootstrapFailureDoesNotSpawn(t *testing.T) {
	peerSelf := PeerId("self")
	peerP := PeerId("p")

	ep := &fakeEndpoint{
		conns:      map[PeerId]Connection{},
		connectErr: errors.New("boom"),
	}

	sp := &recordingSpawner{}
	s := New[memStorage](peerSelf, ep, nil, noopMembership{}, newTestStorage(), &noopBus{}, Config{}, sp, ratelimit.DefaultConfig().Membership, nil)

	stream, ok := s.OpenStream(context.Background(), peerP, nil)
	require.False(t, ok)
	require.Nil(t, stream)
	require.EqualValues(t, 1, atomic.LoadInt32(&ep.connectN))
	require.EqualValues(t, 0, atomic.LoadInt32(&sp.spawnN))
}

// TestEndToEndGitStream exercises a mock endpoint with a connection
// already open returning a piped stream pair; bytes written to the
// returned stream after the Git prefix must appear on the responder side
// once WithUpgraded resolves to the Git variant.
func TestEndToEndGitStream(t *testing.T) {
	peerSelf := PeerId("self")
	peerP := PeerId("p")

	initiator, responder := newPipe()
	conn := &fakeConnection{remote: peerP, initiator: initiator}
	ep := &fakeEndpoint{conns: map[PeerId]Connection{peerP: conn}}

	sp := &recordingSpawner{}
	s := New[memStorage](peerSelf, ep, nil, noopMembership{}, newTestStorage(), &noopBus{}, Config{}, sp, ratelimit.DefaultConfig().Membership, nil)

	result := make(chan upgrade.Upgraded, 1)
	go func() {
		up, err := upgrade.WithUpgraded(responder)
		require.NoError(t, err)
		result <- up
	}()

	gitStream, ok := s.OpenStream(context.Background(), peerP, nil)
	require.True(t, ok)

	up := <-result
	_, ok = up.AsGit()
	require.True(t, ok)

	payload := []byte("pack-data")
	go func() { _, _ = gitStream.Write(payload) }()

	buf := make([]byte, len(payload))
	_, err := io.ReadFull(up.Stream, buf)
	require.NoError(t, err)
	require.Equal(t, payload, buf)
}

// TestEndToEndResponderDemux checks a responder negotiating a
// non-Git sub-protocol sees the right tag and bytes on its side of the
// pipe.
func TestEndToEndResponderDemux(t *testing.T) {
	a, b := newPipe()

	go func() {
		_, _ = upgrade.Upgrade[upgrade.MembershipProtocol](a, upgrade.Membership)
		_, _ = a.Write([]byte("payload"))
	}()

	up, err := upgrade.WithUpgraded(b)
	require.NoError(t, err)
	require.Equal(t, upgrade.Membership, up.Tag)
	_, ok := up.AsMembership()
	require.True(t, ok)

	buf := make([]byte, len("payload"))
	_, err = io.ReadFull(up.Stream, buf)
	require.NoError(t, err)
	require.Equal(t, "payload", string(buf))
}

// TestEndToEndWantsAdmission checks the default storage.wants quota of
// 30/min: the 31st immediate call is refused.
// Token replenishment over time is covered by ratelimit's own timed
// tests (ratelimit/limiter_test.go); this one only checks the boundary
// that belongs to Storage's wiring of the quota.
func TestEndToEndWantsAdmission(t *testing.T) {
	storage := newTestStorage()
	recipient := PeerId("p")

	for i := 0; i < 30; i++ {
		require.False(t, storage.IsRateLimitBreached(Wants(recipient)), "call %d should be admitted", i)
	}
	require.True(t, storage.IsRateLimitBreached(Wants(recipient)))
}
