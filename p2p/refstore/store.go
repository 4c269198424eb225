// Package refstore is the reference LocalStorage backend this module
// ships so cmd/linkd has something real to run against. The gossip-facing
// storage backend is treated only through the interfaces the core
// consumes; this package is supplemental, not core, grounded in
// original_source/link-replication/src/transmit.rs's want/have
// bookkeeping over ref tips, generalized to the opaque (provider, update)
// shape p2p.LocalStorage actually exposes.
//
// Updates are persisted with github.com/ipfs/go-datastore, backed on
// disk by github.com/ipfs/go-ds-leveldb, with the stored payload
// compressed using github.com/golang/snappy.
package refstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-ds-leveldb"
	"github.com/golang/snappy"

	"github.com/radicle-link/linkd/p2p"
)

// Store is a LocalStorage backed by a datastore.Datastore. The zero value
// is not usable; construct with Open or New.
type Store struct {
	ds ds.Datastore
}

// Open opens (creating if absent) a leveldb-backed Store rooted at dir.
func Open(dir string) (*Store, error) {
	backend, err := leveldb.NewDatastore(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("refstore: open %s: %w", dir, err)
	}
	return New(backend), nil
}

// New wraps an arbitrary datastore.Datastore, e.g. an in-memory one for
// tests (ds.NewMapDatastore()).
func New(backend ds.Datastore) *Store {
	return &Store{ds: backend}
}

// Close releases the underlying datastore.
func (s *Store) Close() error {
	return s.ds.Close()
}

// envelope is a decoded update blob: which URN the update concerns, the
// peer passed to Put (not persisted: only the Encode'd blob is stored, so
// Get decodes with an empty provider), and the decompressed payload.
// p2p.LocalStorage.Put receives only (provider, update) with no separate
// URN argument — the URN is opaque to the core — so this backend expects
// update to already be framed as an envelope via Encode.
type envelope struct {
	urn      p2p.URN
	provider p2p.PeerId
	payload  []byte
}

// Encode frames a payload for urn as an update blob suitable for Put.
// Callers above the core (gossip layer) are expected to produce this
// framing; the core itself never inspects update's contents.
func Encode(urn p2p.URN, payload []byte) []byte {
	var buf bytes.Buffer
	writeLP(&buf, []byte(urn))
	writeLP(&buf, snappy.Encode(nil, payload))
	return buf.Bytes()
}

func decode(provider p2p.PeerId, update []byte) (envelope, error) {
	urn, rest, err := readLP(update)
	if err != nil {
		return envelope{}, fmt.Errorf("refstore: malformed update (urn): %w", err)
	}
	compressed, _, err := readLP(rest)
	if err != nil {
		return envelope{}, fmt.Errorf("refstore: malformed update (payload): %w", err)
	}
	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return envelope{}, fmt.Errorf("refstore: snappy decode: %w", err)
	}
	return envelope{urn: p2p.URN(urn), provider: provider, payload: payload}, nil
}

func writeLP(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func readLP(b []byte) (field, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("short buffer")
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint32(len(b)) < n {
		return nil, nil, fmt.Errorf("short buffer")
	}
	return b[:n], b[n:], nil
}

func key(urn p2p.URN) ds.Key {
	return ds.NewKey("/refs/" + string(urn))
}

// Put stores update, keyed by the URN it was Encode'd with. A byte-
// identical update already on disk is reported PutStale rather than
// rewritten.
func (s *Store) Put(ctx context.Context, provider p2p.PeerId, update []byte) (p2p.PutResult, error) {
	env, err := decode(provider, update)
	if err != nil {
		return p2p.PutRejected, err
	}

	k := key(env.urn)
	if existing, err := s.ds.Get(ctx, k); err == nil {
		if prev, perr := decode(provider, existing); perr == nil && bytes.Equal(prev.payload, env.payload) {
			return p2p.PutStale, nil
		}
	}

	if err := s.ds.Put(ctx, k, update); err != nil {
		return p2p.PutRejected, fmt.Errorf("refstore: put %s: %w", env.urn, err)
	}
	return p2p.PutApplied, nil
}

// Ask reports whether want.URN is held locally, regardless of which peer
// originally provided it.
func (s *Store) Ask(ctx context.Context, want p2p.Want) (bool, error) {
	ok, err := s.ds.Has(ctx, key(want.URN))
	if err != nil {
		return false, fmt.Errorf("refstore: has %s: %w", want.URN, err)
	}
	return ok, nil
}

// Get returns the decompressed payload most recently stored for urn.
func (s *Store) Get(ctx context.Context, urn p2p.URN) ([]byte, bool, error) {
	raw, err := s.ds.Get(ctx, key(urn))
	if err != nil {
		if err == ds.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("refstore: get %s: %w", urn, err)
	}
	env, err := decode("", raw)
	if err != nil {
		return nil, false, err
	}
	return env.payload, true, nil
}
