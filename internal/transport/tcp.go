package transport

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/qcchat/qcchat/internal/protocol"
)

// TCPTransport carries framed qcchat traffic over a net.Conn. It is
// grounded on the teacher's Connection (internal/core/connection.go):
// mutex-guarded state, SetOnX callback registration, and a dedicated
// read loop goroutine that decodes and dispatches inbound data.
type TCPTransport struct {
	mu     sync.Mutex
	conn   net.Conn
	logger *zap.SugaredLogger

	connected bool
	closed    bool

	decoder protocol.Decoder

	onMessage      func([]byte)
	onDisconnected func(error)
	onConnected    func()

	disconnectOnce sync.Once
}

// NewAcceptedTCPTransport wraps a net.Conn a listener has already
// accepted. Connected() is true immediately.
func NewAcceptedTCPTransport(conn net.Conn, logger *zap.SugaredLogger) *TCPTransport {
	return &TCPTransport{conn: conn, connected: true, logger: logger}
}

// NewDialingTCPTransport returns a transport that is not yet connected;
// call Dial to begin the outbound connection attempt.
func NewDialingTCPTransport(logger *zap.SugaredLogger) *TCPTransport {
	return &TCPTransport{logger: logger}
}

// Dial starts an outbound TCP connection in the background. On success
// it installs the connection, fires OnConnected, and begins the read
// loop; on failure it fires OnDisconnected with the dial error.
func (t *TCPTransport) Dial(host string, port int) {
	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			t.logger.Errorw("tcp dial failed", "addr", addr, "error", err)
			t.fireDisconnected(fmt.Errorf("dial %s: %w", addr, err))
			return
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			conn.Close()
			return
		}
		t.conn = conn
		t.connected = true
		t.mu.Unlock()

		if t.onConnected != nil {
			t.onConnected()
		}
		t.readLoop()
	}()
}

func (t *TCPTransport) SetOnMessage(fn func([]byte))     { t.onMessage = fn }
func (t *TCPTransport) SetOnDisconnected(fn func(error)) { t.onDisconnected = fn }
func (t *TCPTransport) SetOnConnected(fn func())         { t.onConnected = fn }

// Start begins reading from an already-connected transport. Dialing
// transports start their read loop from Dial once the connection opens.
func (t *TCPTransport) Start() {
	t.mu.Lock()
	conn := t.conn
	connected := t.connected
	t.mu.Unlock()

	if !connected || conn == nil {
		return
	}
	if t.onConnected != nil {
		t.onConnected()
	}
	go t.readLoop()
}

func (t *TCPTransport) readLoop() {
	buf := make([]byte, 16*1024)
	for {
		n, err := t.conn.Read(buf)
		if err != nil {
			t.fireDisconnected(err)
			return
		}

		frames, decodeErr := t.decoder.Feed(buf[:n])
		for _, f := range frames {
			if t.onMessage != nil {
				t.onMessage(protocol.EncodeFrame(f.Tag, f.Body))
			}
		}
		if decodeErr != nil {
			t.fireDisconnected(decodeErr)
			return
		}
	}
}

// Send writes one complete framed message to the connection.
func (t *TCPTransport) Send(frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	closed := t.closed
	t.mu.Unlock()

	if closed || conn == nil {
		return fmt.Errorf("tcp transport: not connected")
	}
	_, err := conn.Write(frame)
	return err
}

// Close tears down the connection. Idempotent; a second call is a no-op.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// Connected reports whether the underlying net.Conn is open.
func (t *TCPTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && !t.closed
}

// RemoteAddr returns the peer address, or "" before a connection exists.
func (t *TCPTransport) RemoteAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ""
	}
	return t.conn.RemoteAddr().String()
}

func (t *TCPTransport) fireDisconnected(err error) {
	t.mu.Lock()
	t.connected = false
	wasClosed := t.closed
	t.closed = true
	t.mu.Unlock()

	t.disconnectOnce.Do(func() {
		if t.onDisconnected != nil {
			if wasClosed {
				t.onDisconnected(nil)
				return
			}
			t.onDisconnected(err)
		}
	})
}
