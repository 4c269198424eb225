package upgrade

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// DefaultTimeout is the hard deadline a responder waits for the 4-byte
// upgrade tag before giving up. It is a var, not a const, so it can be
// overridden in tests and exposed as a configuration knob, threaded
// through config.Config.UpgradeTimeout at startup.
var DefaultTimeout = 23 * time.Second

// Kind distinguishes the ways an upgrade can fail.
type Kind int

const (
	KindTimeout Kind = iota
	KindEncode
	KindDecode
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindEncode:
		return "encode"
	case KindDecode:
		return "decode"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error reports a failed upgrade. It retains the original stream so the
// caller can decide whether to reset or close it; the core never closes a
// stream on the caller's behalf after a failed negotiation.
type Error struct {
	Kind   Kind
	Err    error
	stream Stream
}

func (e *Error) Error() string {
	return fmt.Sprintf("upgrade: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Stream returns the stream the failed negotiation was attempted on.
func (e *Error) Stream() Stream { return e.stream }

// ErrDeprecatedProtocol is returned by WithUpgraded when the negotiated
// tag decodes successfully but names a sub-protocol the responder refuses
// to dispatch to. Only RequestPull currently triggers this: the decoder
// stays wire-compatible with peers that still announce it, but this
// responder does not implement it.
var ErrDeprecatedProtocol = errors.New("upgrade: protocol deprecated")

// Upgrade is the initiator side: it writes the encoded tag to s and, on
// success, returns s wrapped as an UpgradedStream[Protocol]. On failure
// the returned error retains s so the caller can close or reset it;
// Upgrade never closes s itself.
func Upgrade[Protocol any](s Stream, tag Tag) (*UpgradedStream[Protocol], error) {
	if _, err := s.Write(Encode(tag)); err != nil {
		return nil, &Error{Kind: KindIO, Err: err, stream: s}
	}
	return wrap[Protocol](s), nil
}

// WithUpgraded is the responder side: it reads exactly EncodingLen bytes
// off s under DefaultTimeout, decodes the tag, and returns the sum-typed
// Upgraded result. Every failure path returns s via Error so the caller
// can dispose of it.
func WithUpgraded(s Stream) (Upgraded, error) {
	deadline := time.Now().Add(DefaultTimeout)
	_ = s.SetReadDeadline(deadline) // streams that ignore deadlines still get correctness, just not the timeout guarantee

	buf := make([]byte, EncodingLen)
	_, err := io.ReadFull(s, buf)
	_ = s.SetReadDeadline(time.Time{})
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return Upgraded{}, &Error{Kind: KindTimeout, Err: err, stream: s}
		}
		return Upgraded{}, &Error{Kind: KindIO, Err: err, stream: s}
	}

	tag, err := Decode(buf)
	if err != nil {
		return Upgraded{}, &Error{Kind: KindDecode, Err: err, stream: s}
	}
	if tag == RequestPull {
		return Upgraded{}, &Error{Kind: KindDecode, Err: ErrDeprecatedProtocol, stream: s}
	}
	return Upgraded{Tag: tag, Stream: s}, nil
}
