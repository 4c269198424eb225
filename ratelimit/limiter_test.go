package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// TestDirectAdmissionUnderQuota exercises a Quota(1/s, burst 5) style
// limiter, scaled down to milliseconds so the test stays fast: five
// immediate checks succeed, the sixth is refused, and after one
// replenish interval a further check succeeds again.
func TestDirectAdmissionUnderQuota(t *testing.T) {
	q := Quota{Rate: rate.Every(50 * time.Millisecond), Burst: 5}
	d := NewDirect(q)

	for i := 0; i < 5; i++ {
		require.Equal(t, Ok, d.Check(), "call %d should be admitted within burst", i)
	}
	require.Equal(t, TooSoon, d.Check())

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, Ok, d.Check())
}

func TestKeyedIsolation(t *testing.T) {
	q := Quota{Rate: rate.Every(time.Second), Burst: 1}
	k := NewKeyed[string](q, nil)

	require.Equal(t, Ok, k.CheckKey("peer-a"))
	require.Equal(t, TooSoon, k.CheckKey("peer-a"))
	// peer-b's bucket is independent of peer-a's exhausted one.
	require.Equal(t, Ok, k.CheckKey("peer-b"))
}

func TestKeyedSweep(t *testing.T) {
	q := Quota{Rate: rate.Every(time.Second), Burst: 5}
	k := NewKeyed[int](q, nil)

	for i := 0; i < SweepThreshold+10; i++ {
		k.buckets[i] = newLimiterHandle(q) // fresh bucket: full, provably quiescent
	}
	require.Equal(t, SweepThreshold+10, k.Len())

	// an actively-limited peer: its bucket has token debt and must
	// survive the sweep so its admission history is not forgotten.
	limited := newLimiterHandle(q)
	limited.allow()
	k.buckets[-1] = limited

	var sweptRemoved, sweptRemaining int
	var sweptDuration time.Duration
	k.observe = func(removed, remaining int, took time.Duration) {
		sweptRemoved, sweptRemaining, sweptDuration = removed, remaining, took
	}

	got := k.CheckKey(SweepThreshold + 1000)
	require.Equal(t, Ok, got)
	require.Less(t, k.Len(), SweepThreshold)
	require.Positive(t, sweptRemoved)
	require.Equal(t, k.Len(), sweptRemaining+1) // +1 for the key CheckKey just inserted
	require.GreaterOrEqual(t, sweptDuration, time.Duration(0))

	_, stillThere := k.buckets[-1]
	require.True(t, stillThere, "actively-limited peer must survive the sweep")
}
