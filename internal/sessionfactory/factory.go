// Package sessionfactory implements the session factory described in
// spec.md §4.6: it owns a listening socket, wraps inbound connections in
// new sessions and surfaces them to the caller, and dials outbound
// connections on request. It is the Go rendering of the original's
// ChatSessionCreator (see SPEC_FULL.md's SUPPLEMENTED FEATURES section):
// allowConnections/disallowConnections/tryConnect/setUserInfo/setKeys
// map onto AllowConnections/DisallowConnections/TryConnect/SetUserInfo/
// SetKeys, and chatRequestReceived becomes a ChatRequests() channel —
// Go's idiomatic replacement for a Qt signal.
package sessionfactory

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/qcchat/qcchat/internal/protocol"
	"github.com/qcchat/qcchat/internal/session"
	"github.com/qcchat/qcchat/internal/transport"
)

// chatRequestBacklog bounds how many accepted-but-not-yet-claimed
// inbound sessions the factory will hold before it starts rejecting new
// ones; a caller is expected to drain ChatRequests promptly.
const chatRequestBacklog = 32

// Factory accepts inbound connections and constructs sessions from
// them, and initiates outbound connections on request. Updating user
// info or keys (SetUserInfo/SetKeys) only affects sessions created
// after the update, per spec.md §4.6.
type Factory struct {
	logger *zap.SugaredLogger

	mu       sync.Mutex
	listener net.Listener
	ownInfo  protocol.UserInfo
	ownKeys  *protocol.KeyPair

	chatRequests chan *session.Session
}

// New constructs a Factory with no listener and no keys/user info set;
// callers must call SetUserInfo and SetKeys before AllowConnections or
// TryConnect produce a usable session.
func New(logger *zap.SugaredLogger) *Factory {
	return &Factory{
		logger:       logger,
		chatRequests: make(chan *session.Session, chatRequestBacklog),
	}
}

// SetUserInfo updates the identity newly created sessions will present
// during handshake.
func (f *Factory) SetUserInfo(info protocol.UserInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ownInfo = info
}

// SetKeys updates the keypair newly created sessions will hand to their
// handshake processor.
func (f *Factory) SetKeys(keys *protocol.KeyPair) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ownKeys = keys
}

// ChatRequests returns the channel inbound sessions are surfaced on.
// The caller decides whether to attach a Responder processor and call
// Initialize on each one.
func (f *Factory) ChatRequests() <-chan *session.Session {
	return f.chatRequests
}

// AllowConnections starts listening on port and accepting connections
// in the background. Each accepted connection is wrapped in a new
// Session (with no handshake processor attached yet) and pushed onto
// ChatRequests.
func (f *Factory) AllowConnections(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("sessionfactory: listen on port %d: %w", port, err)
	}

	f.mu.Lock()
	f.listener = ln
	f.mu.Unlock()

	go f.acceptLoop(ln)
	return nil
}

// Addr returns the active listener's address, or nil if
// AllowConnections has not been called (or has since been undone by
// DisallowConnections). Useful for tests and for logging the bound
// port when AllowConnections was called with port 0.
func (f *Factory) Addr() net.Addr {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener == nil {
		return nil
	}
	return f.listener.Addr()
}

// DisallowConnections stops accepting new connections. Sessions already
// created are left running.
func (f *Factory) DisallowConnections() error {
	f.mu.Lock()
	ln := f.listener
	f.listener = nil
	f.mu.Unlock()

	if ln == nil {
		return nil
	}
	return ln.Close()
}

func (f *Factory) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed by DisallowConnections, or a transient
			// accept failure on shutdown; either way this loop is done.
			f.logger.Debugw("sessionfactory: accept loop exiting", "error", err)
			return
		}

		ownInfo, ownKeys := f.snapshotIdentity()
		tr := transport.NewAcceptedTCPTransport(conn, f.logger)
		sess := session.New(tr, ownInfo, ownKeys, f.logger)

		select {
		case f.chatRequests <- sess:
		default:
			f.logger.Warnw("sessionfactory: chat request backlog full, dropping inbound session", "remote", sess.RemoteAddr())
			sess.End()
		}
	}
}

// TryConnect initiates an outbound connection to host:port and returns
// a Session immediately, in PhaseConstructed. The caller attaches an
// Initiator processor and calls Initialize once connectionEstablished
// fires.
func (f *Factory) TryConnect(host string, port int) *session.Session {
	ownInfo, ownKeys := f.snapshotIdentity()

	tr := transport.NewDialingTCPTransport(f.logger)
	sess := session.New(tr, ownInfo, ownKeys, f.logger)
	tr.Dial(host, port)
	return sess
}

func (f *Factory) snapshotIdentity() (protocol.UserInfo, *protocol.KeyPair) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ownInfo, f.ownKeys
}
