// Package session implements the session controller described in
// spec.md §4.5: it binds a transport to a handshake processor, then
// replaces that processor with the data-phase dispatcher once the
// handshake completes, translating both into a small set of typed
// events — the Go stand-in for the original's Qt signal/slot wiring
// (spec.md §9's "Event signaling" redesign note).
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/qcchat/qcchat/internal/protocol"
	"github.com/qcchat/qcchat/internal/transport"
)

// ErrNotConnected is returned by Initialize when called before the
// transport has reached Connected. It mirrors the precondition error
// session.cpp's ChatSession::initialize() throws ("Connection has not
// been established yet.").
var ErrNotConnected = errors.New("session: connection has not been established yet")

// Phase is the session's position in its lifecycle, derived from the
// three independent phase flags below. It only ever moves forward.
type Phase int

const (
	PhaseConstructed Phase = iota
	PhaseConnected
	PhaseInitialized
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseConstructed:
		return "constructed"
	case PhaseConnected:
		return "connected"
	case PhaseInitialized:
		return "initialized"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// phaseFlags preserves the original's three independent booleans
// (connected_, initialized_, ended_) rather than collapsing them into a
// single linear state: a disconnect during handshake sets ended_
// without ever setting initialized_, and ended_ always takes precedence
// when a caller asks for the current Phase.
type phaseFlags struct {
	connected   atomic.Bool
	initialized atomic.Bool
	ended       atomic.Bool
}

func (f *phaseFlags) Phase() Phase {
	switch {
	case f.ended.Load():
		return PhaseEnded
	case f.initialized.Load():
		return PhaseInitialized
	case f.connected.Load():
		return PhaseConnected
	default:
		return PhaseConstructed
	}
}

// Session is the per-connection controller described in spec.md §4.5.
// It exclusively owns a Transport and, while handshaking, a
// *protocol.Processor. All state transitions happen on a single
// internal worker goroutine (the "owner thread" spec.md §3 refers to),
// so callers on other goroutines never race the phase flags, the active
// converter, or the handshake processor.
type Session struct {
	tr     transport.Transport
	logger *zap.SugaredLogger

	ownInfo protocol.UserInfo
	ownKeys *protocol.KeyPair

	flags phaseFlags

	jobs     chan func()
	quit     chan struct{}
	stopOnce sync.Once

	// Touched only inside run().
	converter protocol.Converter
	processor *protocol.Processor
	peerInfo  protocol.UserInfo

	onConnectionEstablished      func()
	onSessionInitialized         func()
	onSessionInitializationError func(error)
	onSessionEndedByOtherSide    func()
	onInvalidMessageReceived     func(error)
	onNewChatMessageReceived     func(protocol.NewChatMessage)
	onEditedChatMessageReceived  func(protocol.EditChatMessage)
}

// New constructs a Session around tr. If tr is already connected,
// connectionEstablished fires almost immediately (once the worker
// goroutine picks up the queued event); otherwise it fires when tr's
// dial completes.
func New(tr transport.Transport, ownInfo protocol.UserInfo, ownKeys *protocol.KeyPair, logger *zap.SugaredLogger) *Session {
	s := &Session{
		tr:        tr,
		logger:    logger,
		ownInfo:   ownInfo,
		ownKeys:   ownKeys,
		jobs:      make(chan func(), 256),
		quit:      make(chan struct{}),
		converter: protocol.NewPlainConverter(),
	}

	tr.SetOnConnected(func() { s.enqueue(s.handleConnected) })
	tr.SetOnMessage(func(frame []byte) { s.enqueue(func() { s.handleTransportMessage(frame) }) })
	tr.SetOnDisconnected(func(err error) { s.enqueue(func() { s.handleDisconnect(err) }) })

	go s.run()
	tr.Start()
	return s
}

// Phase returns the session's current lifecycle phase.
func (s *Session) Phase() Phase { return s.flags.Phase() }

// PeerInfo returns the peer's identity, valid once known (after the
// responder's or initiator's UserInfo has been received).
func (s *Session) PeerInfo() protocol.UserInfo {
	// Safe to read without synchronization from outside the worker
	// goroutine only after sessionInitialized or newer events have
	// fired; callers that need a stronger guarantee should read it from
	// inside an event callback, which always runs on the worker.
	return s.peerInfo
}

// OwnUserInfo returns the local identity this session was constructed
// with.
func (s *Session) OwnUserInfo() protocol.UserInfo { return s.ownInfo }

// RemoteAddr returns the transport's peer address, for logging.
func (s *Session) RemoteAddr() string { return s.tr.RemoteAddr() }

// OnConnectionEstablished registers fn on the worker goroutine; if the
// session is already connected by then, fn runs once right away.
func (s *Session) OnConnectionEstablished(fn func()) {
	s.enqueue(func() {
		s.onConnectionEstablished = fn
		if s.flags.connected.Load() {
			fn()
		}
	})
}

func (s *Session) OnSessionInitialized(fn func())          { s.onSessionInitialized = fn }
func (s *Session) OnInvalidMessageReceived(fn func(error)) { s.onInvalidMessageReceived = fn }

// OnSessionInitializationError and OnSessionEndedByOtherSide add fn to
// any callback already registered instead of replacing it, so the
// registry and a handler can both observe the same session.
func (s *Session) OnSessionInitializationError(fn func(error)) {
	prev := s.onSessionInitializationError
	s.onSessionInitializationError = func(err error) {
		if prev != nil {
			prev(err)
		}
		fn(err)
	}
}

func (s *Session) OnSessionEndedByOtherSide(fn func()) {
	prev := s.onSessionEndedByOtherSide
	s.onSessionEndedByOtherSide = func() {
		if prev != nil {
			prev()
		}
		fn()
	}
}

func (s *Session) OnNewChatMessageReceived(fn func(protocol.NewChatMessage)) {
	s.onNewChatMessageReceived = fn
}

func (s *Session) OnEditedChatMessageReceived(fn func(protocol.EditChatMessage)) {
	s.onEditedChatMessageReceived = fn
}

// Initialize wires a handshake processor to this session and starts the
// handshake, per spec.md §4.5. It fails with ErrNotConnected if the
// transport has not yet reached Connected.
func (s *Session) Initialize(processor *protocol.Processor) error {
	if s.flags.Phase() == PhaseConstructed && !s.tr.Connected() {
		return ErrNotConnected
	}
	s.enqueue(func() { s.startHandshake(processor) })
	return nil
}

// SendMessage serializes msg through the current converter and writes
// it to the transport. It is a no-op once the session has Ended.
func (s *Session) SendMessage(msg protocol.Message) {
	s.enqueue(func() { s.sendMessage(msg) })
}

// End idempotently terminates the session: if Initialized, it sends a
// SessionEnd frame; otherwise, if a handshake processor is attached, it
// asks the processor to emit its own SessionEnd. Either way the
// transport is then closed.
func (s *Session) End() {
	s.enqueue(s.end)
}

// --- worker goroutine ---

func (s *Session) enqueue(fn func()) {
	select {
	case <-s.quit:
		return
	default:
	}
	select {
	case s.jobs <- fn:
	case <-s.quit:
	}
}

func (s *Session) run() {
	for {
		select {
		case fn := <-s.jobs:
			fn()
		case <-s.quit:
			return
		}
	}
}

func (s *Session) stop() {
	s.stopOnce.Do(func() { close(s.quit) })
}

func (s *Session) handleConnected() {
	if s.flags.connected.Load() {
		return
	}
	s.flags.connected.Store(true)
	if s.onConnectionEstablished != nil {
		s.onConnectionEstablished()
	}
}

func (s *Session) startHandshake(processor *protocol.Processor) {
	if s.flags.ended.Load() {
		return
	}
	s.processor = processor
	s.applyHandshakeResult(processor.StartHandshake())
}

func (s *Session) applyHandshakeResult(result protocol.HandshakeResult) {
	for _, frame := range result.Emit {
		if err := s.tr.Send(frame); err != nil {
			s.logger.Errorw("session: send failed during handshake", "error", err)
			return
		}
	}
	if result.Err != nil {
		s.failHandshake(result.Err)
		return
	}
	if result.Finished {
		s.finishHandshake(result.Converter, result.PeerInfo)
	}
}

func (s *Session) finishHandshake(converter protocol.Converter, peerInfo protocol.UserInfo) {
	s.converter = converter
	s.peerInfo = peerInfo
	s.processor = nil
	s.flags.initialized.Store(true)
	if s.onSessionInitialized != nil {
		s.onSessionInitialized()
	}
}

// failHandshake tears down the processor wiring. Per spec.md §4.5 the
// connection itself is left for the caller to close; a disconnect or an
// explicit End() is what eventually tears it down.
func (s *Session) failHandshake(err error) {
	s.processor = nil
	if !s.flags.initialized.Load() {
		if s.onSessionInitializationError != nil {
			s.onSessionInitializationError(err)
		}
	}
}

func (s *Session) handleTransportMessage(frame []byte) {
	if s.flags.ended.Load() {
		return
	}
	if s.processor != nil {
		s.applyHandshakeResult(s.processor.ProcessMessage(frame))
		return
	}
	s.dispatchDataMessage(frame)
}

func (s *Session) dispatchDataMessage(frame []byte) {
	msg, err := s.converter.DecodeMessage(frame)
	if err != nil {
		if s.onInvalidMessageReceived != nil {
			s.onInvalidMessageReceived(err)
		}
		return
	}

	switch m := msg.(type) {
	case protocol.KeyMessage:
		if s.onInvalidMessageReceived != nil {
			s.onInvalidMessageReceived(protocol.NewError(protocol.ErrDuplicateKey, "key message received outside handshake"))
		}
	case protocol.UserInfoMessage:
		s.peerInfo = m.Info
	case protocol.SessionEndMessage:
		s.flags.ended.Store(true)
		if s.onSessionEndedByOtherSide != nil {
			s.onSessionEndedByOtherSide()
		}
		s.stop()
	case protocol.NewChatMessage:
		if s.onNewChatMessageReceived != nil {
			s.onNewChatMessageReceived(m)
		}
	case protocol.EditChatMessage:
		if s.onEditedChatMessageReceived != nil {
			s.onEditedChatMessageReceived(m)
		}
	default:
		if s.onInvalidMessageReceived != nil {
			s.onInvalidMessageReceived(fmt.Errorf("session: unhandled message type %T", msg))
		}
	}
}

func (s *Session) handleDisconnect(err error) {
	if s.flags.ended.Load() {
		return
	}
	s.processor = nil

	wasInitialized := s.flags.initialized.Load()
	s.flags.ended.Store(true)

	if wasInitialized {
		if s.onSessionEndedByOtherSide != nil {
			s.onSessionEndedByOtherSide()
		}
	} else {
		if s.onSessionInitializationError != nil {
			if err == nil {
				err = protocol.NewError(protocol.ErrTransportClosed, "")
			}
			s.onSessionInitializationError(err)
		}
	}
	s.stop()
}

func (s *Session) sendMessage(msg protocol.Message) {
	if s.flags.ended.Load() {
		return
	}
	frame, err := s.converter.EncodeMessage(msg)
	if err != nil {
		s.logger.Errorw("session: failed to encode outbound message", "error", err)
		return
	}
	if err := s.tr.Send(frame); err != nil {
		s.logger.Errorw("session: failed to send message", "error", err)
	}
}

func (s *Session) end() {
	if s.flags.ended.Load() {
		return
	}

	if s.flags.initialized.Load() {
		s.sendMessage(protocol.SessionEndMessage{})
	} else if s.processor != nil {
		if frame := s.processor.End(); frame != nil {
			if err := s.tr.Send(frame); err != nil {
				s.logger.Errorw("session: failed to send handshake SessionEnd", "error", err)
			}
		}
		s.processor = nil
	}

	s.flags.ended.Store(true)
	if err := s.tr.Close(); err != nil {
		s.logger.Debugw("session: transport close error", "error", err)
	}
	s.stop()
}
