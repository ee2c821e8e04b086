package transport

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/qcchat/qcchat/internal/protocol"
)

// WebSocketTransport carries framed qcchat traffic over a WebSocket
// binary-message stream, grounded on the teacher's use of
// nhooyr.io/websocket in internal/core/connection.go. Unlike the
// teacher's connection (which dials a fixed WhatsApp endpoint and speaks
// the Noise protocol on top), this dials an arbitrary host:port and
// carries the plain qcchat frame stream — binary WebSocket messages are
// treated as an undifferentiated byte stream and fed through the same
// protocol.Decoder the TCP transport uses, so a WebSocket message
// boundary need not line up with a frame boundary.
type WebSocketTransport struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	logger *zap.SugaredLogger

	connected bool
	closed    bool
	remote    string

	decoder protocol.Decoder

	onMessage      func([]byte)
	onDisconnected func(error)
	onConnected    func()

	disconnectOnce sync.Once
	cancel         context.CancelFunc
}

// NewAcceptedWebSocketTransport wraps a server-side *websocket.Conn
// already accepted from an incoming HTTP upgrade.
func NewAcceptedWebSocketTransport(conn *websocket.Conn, remote string, logger *zap.SugaredLogger) *WebSocketTransport {
	return &WebSocketTransport{conn: conn, connected: true, remote: remote, logger: logger}
}

// NewDialingWebSocketTransport returns a transport that is not yet
// connected; call Dial to open the outbound WebSocket connection.
func NewDialingWebSocketTransport(logger *zap.SugaredLogger) *WebSocketTransport {
	return &WebSocketTransport{logger: logger}
}

// Dial opens an outbound WebSocket connection to the given ws(s):// URL
// in the background.
func (t *WebSocketTransport) Dial(url string) {
	go func() {
		ctx := context.Background()
		conn, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			t.logger.Errorw("websocket dial failed", "url", url, "error", err)
			t.fireDisconnected(fmt.Errorf("dial %s: %w", url, err))
			return
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			conn.Close(websocket.StatusNormalClosure, "transport closed before dial completed")
			return
		}
		t.conn = conn
		t.connected = true
		t.remote = url
		t.mu.Unlock()

		if t.onConnected != nil {
			t.onConnected()
		}
		t.readLoop()
	}()
}

func (t *WebSocketTransport) SetOnMessage(fn func([]byte))     { t.onMessage = fn }
func (t *WebSocketTransport) SetOnDisconnected(fn func(error)) { t.onDisconnected = fn }
func (t *WebSocketTransport) SetOnConnected(fn func())         { t.onConnected = fn }

// Start begins reading from an already-connected transport.
func (t *WebSocketTransport) Start() {
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

func (t *WebSocketTransport) readLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	for {
		_, data, err := t.conn.Read(ctx)
		if err != nil {
			t.fireDisconnected(err)
			return
		}

		frames, decodeErr := t.decoder.Feed(data)
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

// Send writes one complete framed message as a single binary WebSocket
// message.
func (t *WebSocketTransport) Send(frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	closed := t.closed
	t.mu.Unlock()

	if closed || conn == nil {
		return fmt.Errorf("websocket transport: not connected")
	}
	return conn.Write(context.Background(), websocket.MessageBinary, frame)
}

// Close tears down the WebSocket connection. Idempotent.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.cancel != nil {
		t.cancel()
	}
	if t.conn != nil {
		return t.conn.Close(websocket.StatusNormalClosure, "session ended")
	}
	return nil
}

// Connected reports whether the underlying WebSocket connection is open.
func (t *WebSocketTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && !t.closed
}

// RemoteAddr returns the peer URL or address.
func (t *WebSocketTransport) RemoteAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remote
}

func (t *WebSocketTransport) fireDisconnected(err error) {
	t.mu.Lock()
	t.connected = false
	wasClosed := t.closed
	t.closed = true
	t.mu.Unlock()

	t.disconnectOnce.Do(func() {
		if t.onDisconnected == nil {
			return
		}
		if wasClosed {
			t.onDisconnected(nil)
			return
		}
		t.onDisconnected(err)
	})
}
