package upgrade

import (
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	for _, tag := range []Tag{Gossip, Git, Membership, Interrogation, RequestPull} {
		got, err := Decode(Encode(tag))
		require.NoError(t, err)
		require.Equal(t, tag, got)
	}
}

func TestFixedLength(t *testing.T) {
	for _, tag := range []Tag{Gossip, Git, Membership, Interrogation, RequestPull} {
		require.Len(t, Encode(tag), EncodingLen)
	}
}

func TestBitExactVectors(t *testing.T) {
	cases := []struct {
		tag Tag
		hex []byte
	}{
		{Gossip, []byte{0x82, 0x00, 0x00, 0xFF}},
		{Git, []byte{0x82, 0x00, 0x01, 0xFF}},
		{Membership, []byte{0x82, 0x00, 0x02, 0xFF}},
		{Interrogation, []byte{0x82, 0x00, 0x03, 0xFF}},
		{RequestPull, []byte{0x82, 0x00, 0x18, 0xC8}},
	}
	for _, c := range cases {
		require.Equal(t, c.hex, Encode(c.tag), "tag %s", c.tag)
		got, err := Decode(c.hex)
		require.NoError(t, err)
		require.Equal(t, c.tag, got)
	}
}

func TestRejectsUnknownVariant(t *testing.T) {
	_, err := Decode([]byte{0x82, 0x00, 0x07, 0xFF})
	require.ErrorAs(t, err, &UnknownVariantError{})
	require.Equal(t, UnknownVariantError{Value: 0x07}, err)
}

func TestRejectsWrongVersion(t *testing.T) {
	_, err := Decode([]byte{0x82, 0x01, 0x00, 0xFF})
	require.ErrorAs(t, err, &UnknownVariantError{})
	require.Equal(t, UnknownVariantError{Value: 0x01}, err)
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := Decode([]byte{0x82})
	require.ErrorIs(t, err, ErrShortBuffer)
}

// TestDecodeNeverPanics fuzzes arbitrary 4-byte buffers through Decode and
// requires it to always return either a known Tag or a well-typed error,
// never panic.
func TestDecodeNeverPanics(t *testing.T) {
	f := fuzz.New()
	for i := 0; i < 2000; i++ {
		var buf [4]byte
		f.Fuzz(&buf)
		tag, err := Decode(buf[:])
		if err == nil {
			require.True(t, isKnown(tag))
		}
	}
}
