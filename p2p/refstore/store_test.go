package refstore

import (
	"context"
	"testing"

	ds "github.com/ipfs/go-datastore"
	"github.com/stretchr/testify/require"

	"github.com/radicle-link/linkd/p2p"
)

func TestPutAskRoundTrip(t *testing.T) {
	store := New(ds.NewMapDatastore())
	ctx := context.Background()
	provider := p2p.PeerId("provider")
	want := p2p.Want{URN: "rad:git:hnrk...", Recipient: provider}

	ok, err := store.Ask(ctx, want)
	require.NoError(t, err)
	require.False(t, ok)

	update := Encode(want.URN, []byte("pack bytes"))
	result, err := store.Put(ctx, provider, update)
	require.NoError(t, err)
	require.Equal(t, p2p.PutApplied, result)

	ok, err = store.Ask(ctx, want)
	require.NoError(t, err)
	require.True(t, ok)

	payload, found, err := store.Get(ctx, want.URN)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "pack bytes", string(payload))
}

func TestPutIdempotent(t *testing.T) {
	store := New(ds.NewMapDatastore())
	ctx := context.Background()
	provider := p2p.PeerId("provider")
	urn := p2p.URN("rad:git:hnrk...")

	update := Encode(urn, []byte("v1"))
	result, err := store.Put(ctx, provider, update)
	require.NoError(t, err)
	require.Equal(t, p2p.PutApplied, result)

	result, err = store.Put(ctx, provider, update)
	require.NoError(t, err)
	require.Equal(t, p2p.PutStale, result)

	update2 := Encode(urn, []byte("v2"))
	result, err = store.Put(ctx, provider, update2)
	require.NoError(t, err)
	require.Equal(t, p2p.PutApplied, result)
}

func TestPutRejectsMalformedUpdate(t *testing.T) {
	store := New(ds.NewMapDatastore())
	_, err := store.Put(context.Background(), p2p.PeerId("p"), []byte("not an envelope"))
	require.Error(t, err)
}
