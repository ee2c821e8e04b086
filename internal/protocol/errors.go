package protocol

import "fmt"

// ErrorKind enumerates the protocol-level failure modes a session or
// handshake processor can hit. Every kind is fatal to the offending
// session but never to the host process.
type ErrorKind int

const (
	// ErrMalformedFrame covers a bad length field, bad magic bytes, or a
	// body that is too short for its declared type.
	ErrMalformedFrame ErrorKind = iota
	// ErrUnknownType covers an unrecognized frame type tag.
	ErrUnknownType
	// ErrDuplicateKey covers a second Key message during handshake, or
	// any Key message received after handshake completion.
	ErrDuplicateKey
	// ErrDataBeforeKey covers a responder receiving UserInfo before the
	// initiator's Key message.
	ErrDataBeforeKey
	// ErrHandshakeAlreadyFinished covers input arriving at a processor
	// that already completed or errored.
	ErrHandshakeAlreadyFinished
	// ErrHandshakeTerminated covers the peer sending SessionEnd during
	// handshake.
	ErrHandshakeTerminated
	// ErrTransportClosed covers the transport reporting a disconnect.
	ErrTransportClosed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrMalformedFrame:
		return "malformed frame"
	case ErrUnknownType:
		return "unknown type"
	case ErrDuplicateKey:
		return "duplicate key"
	case ErrDataBeforeKey:
		return "data received before key"
	case ErrHandshakeAlreadyFinished:
		return "handshake already finished"
	case ErrHandshakeTerminated:
		return "handshake terminated by peer"
	case ErrTransportClosed:
		return "transport closed"
	default:
		return "unknown error"
	}
}

// Error is the protocol core's error type. Callers match on Kind with
// errors.As rather than string comparison.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// NewError builds a protocol Error, for callers outside this package
// (session dispatch) that need to report a protocol-level failure using
// the same Kind taxonomy as the frame codec and handshake.
func NewError(kind ErrorKind, msg string) *Error {
	return newError(kind, msg)
}

func newErrorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
