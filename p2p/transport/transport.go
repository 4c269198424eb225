// Package transport provides the reference Endpoint/Connection adaptor
// over a libp2p host.Host, the stand-in this module ships for the QUIC
// transport treated as an external collaborator. go-libp2p negotiates
// QUIC (quic-v1) as one of its registered transports, so a QUIC endpoint
// is realized without this module hand-rolling any QUIC framing.
//
// This adaptor is deliberately a reference, not the tested surface: the
// core's own tests exercise p2p.Endpoint/p2p.Connection/p2p.IngressStream
// directly against lightweight doubles (see p2p/state_test.go), keeping
// the transport out of the core's test surface entirely.
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/radicle-link/linkd/p2p"
)

// LibP2PEndpoint adapts a libp2p host.Host to p2p.Endpoint. Streams the
// remote end opens on a connection this endpoint dialed are routed to
// that connection's IngressStream by demuxProtocol, registered once per
// endpoint.
type LibP2PEndpoint struct {
	Host host.Host

	mu       sync.Mutex
	ingress  map[libp2ppeer.ID]*ingress
	fallback func(network.Stream) // streams with no pending ingress (e.g. inbound connections)
}

// NewLibP2PEndpoint wires the demux handler for demuxProtocol onto host.
// fallback receives streams that arrive before (or without) a matching
// Connect call — ordinarily the top-level inbound demultiplexer in the
// main State event loop.
func NewLibP2PEndpoint(h host.Host, demuxProtocol protocol.ID, fallback func(network.Stream)) *LibP2PEndpoint {
	e := &LibP2PEndpoint{Host: h, ingress: make(map[libp2ppeer.ID]*ingress), fallback: fallback}
	h.SetStreamHandler(demuxProtocol, e.handleIncoming)
	return e
}

func (e *LibP2PEndpoint) handleIncoming(s network.Stream) {
	remote := s.Conn().RemotePeer()
	e.mu.Lock()
	ing, ok := e.ingress[remote]
	e.mu.Unlock()
	if ok {
		ing.deliver(s)
		return
	}
	if e.fallback != nil {
		e.fallback(s)
		return
	}
	_ = s.Reset()
}

// GetConnection returns an already-open connection to id, if any, taking
// the last one ConnsToPeer lists (the most recently opened) when several
// exist.
func (e *LibP2PEndpoint) GetConnection(id p2p.PeerId) (p2p.Connection, bool) {
	conns := e.Host.Network().ConnsToPeer(id)
	if len(conns) == 0 {
		return nil, false
	}
	return &libp2pConn{conn: conns[len(conns)-1]}, true
}

// Connect dials id using addrHints and returns the new connection plus an
// ingress stream source draining streams the remote peer opens back on
// it.
func (e *LibP2PEndpoint) Connect(ctx context.Context, id p2p.PeerId, addrHints []p2p.Addr) (p2p.Connection, p2p.IngressStream, error) {
	e.Host.Peerstore().AddAddrs(id, addrHints, peerstoreTTL)
	if err := e.Host.Connect(ctx, libp2ppeer.AddrInfo{ID: id, Addrs: addrHints}); err != nil {
		return nil, nil, fmt.Errorf("transport: connect to %s: %w", id, err)
	}
	conns := e.Host.Network().ConnsToPeer(id)
	if len(conns) == 0 {
		return nil, nil, fmt.Errorf("transport: connect to %s reported success with no connection", id)
	}
	conn := conns[len(conns)-1]

	ing := newIngress()
	e.mu.Lock()
	e.ingress[id] = ing
	e.mu.Unlock()

	return &libp2pConn{conn: conn}, ing, nil
}

type libp2pConn struct {
	conn network.Conn
}

func (c *libp2pConn) RemotePeer() p2p.PeerId { return c.conn.RemotePeer() }

func (c *libp2pConn) OpenBidi(ctx context.Context) (p2p.BoxedStream, error) {
	s, err := c.conn.NewStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: open stream to %s: %w", c.conn.RemotePeer(), err)
	}
	return s, nil
}

// ingress relays streams the remote peer opens on a connection this
// endpoint dialed.
type ingress struct {
	streams chan network.Stream
}

func newIngress() *ingress {
	return &ingress{streams: make(chan network.Stream, 16)}
}

func (i *ingress) Accept(ctx context.Context) (p2p.BoxedStream, error) {
	select {
	case s, ok := <-i.streams:
		if !ok {
			return nil, fmt.Errorf("transport: ingress closed")
		}
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (i *ingress) deliver(s network.Stream) {
	select {
	case i.streams <- s:
	default:
		_ = s.Reset()
	}
}

const peerstoreTTL = 0 // the peerstore ignores a non-positive TTL; hints reach it through the AddrInfo passed to Host.Connect
