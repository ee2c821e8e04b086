// Package transport provides the byte-stream abstraction a qcchat session
// runs its framed protocol over. Two implementations are provided: a
// primary TCP transport (tcp.go) and a WebSocket transport (websocket.go)
// behind the same interface, following the callback/event style the
// teacher's internal/core.Connection exposes (SetOnQR, SetOnReady,
// SetOnClose) in place of a GUI framework's signal/slot system.
package transport

// Transport is a reliable, ordered, byte-stream connection carrying one
// qcchat session's framed traffic. Implementations own their underlying
// socket exclusively; nothing outside a Session reads or writes it
// directly, per spec.md §5's shared-resource policy.
type Transport interface {
	// Send writes one complete framed message. It must not be called
	// concurrently with another Send on the same Transport.
	Send(frame []byte) error

	// Close tears down the underlying connection. Idempotent.
	Close() error

	// Connected reports whether the underlying connection is currently
	// open (dial/accept has completed and no disconnect has been seen).
	Connected() bool

	// RemoteAddr returns a human-readable peer address for logging.
	RemoteAddr() string

	// SetOnMessage registers the callback invoked with each complete
	// framed message read off the wire, in stream order. Must be called
	// before Start.
	SetOnMessage(fn func(frame []byte))

	// SetOnDisconnected registers the callback invoked exactly once when
	// the connection is lost, whether by peer close, local Close, or a
	// read error; a failed Send does not invoke it. err is nil for a
	// clean local Close.
	SetOnDisconnected(fn func(err error))

	// SetOnConnected registers the callback invoked once the underlying
	// connection becomes open. If the Transport was constructed already
	// connected (e.g. wrapping an accepted net.Conn), Start invokes it
	// synchronously; for a Transport still dialing, it fires once the
	// dial completes.
	SetOnConnected(fn func())

	// Start begins reading frames off the wire and dispatching them to
	// the OnMessage callback. For an already-connected Transport this
	// also fires OnConnected synchronously before returning. For a
	// Transport still dialing, Start is a no-op — the dial goroutine
	// starts reading once it completes.
	Start()
}
