// Package registry tracks the set of live sessions the API server can
// act on, since sessionfactory.Factory only ever surfaces a session once
// (on ChatRequests, or as TryConnect's return value) and then forgets
// about it. This is the qcchat analogue of the teacher's
// internal/client.SessionManager, scaled down from a persisted,
// reconnectable session table to an in-memory map of live sessions.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qcchat/qcchat/internal/session"
)

// Direction records which side opened a session.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Info is the JSON-friendly snapshot of a registered session.
type Info struct {
	ID           string    `json:"id"`
	Phase        string    `json:"phase"`
	Direction    Direction `json:"direction"`
	PeerUsername string    `json:"peerUsername,omitempty"`
	RemoteAddr   string    `json:"remoteAddr"`
	CreatedAt    time.Time `json:"createdAt"`
}

type entry struct {
	sess      *session.Session
	direction Direction
	createdAt time.Time
}

// Registry maps short ids to live sessions. It removes an entry on its
// own when the session is ended by the peer or its handshake fails; a
// session ended locally with End() stays listed until Forget is called.
type Registry struct {
	logger *zap.SugaredLogger

	mu       sync.RWMutex
	sessions map[string]*entry
}

// New returns an empty Registry.
func New(logger *zap.SugaredLogger) *Registry {
	return &Registry{
		logger:   logger,
		sessions: make(map[string]*entry),
	}
}

// Register assigns a new id to sess and tracks it until the session
// ends. It returns the assigned id.
func (r *Registry) Register(sess *session.Session, direction Direction) string {
	id := "sess_" + uuid.New().String()[:8]

	r.mu.Lock()
	r.sessions[id] = &entry{sess: sess, direction: direction, createdAt: time.Now()}
	r.mu.Unlock()

	sess.OnSessionEndedByOtherSide(func() { r.remove(id) })
	sess.OnSessionInitializationError(func(error) { r.remove(id) })

	return id
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		r.logger.Debugw("registry: session removed", "id", id)
	}
}

// Get returns the session registered under id, if any.
func (r *Registry) Get(id string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return e.sess, true
}

// List snapshots every currently registered session.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.sessions))
	for id, e := range r.sessions {
		out = append(out, Info{
			ID:           id,
			Phase:        e.sess.Phase().String(),
			Direction:    e.direction,
			PeerUsername: e.sess.PeerInfo().Username,
			RemoteAddr:   e.sess.RemoteAddr(),
			CreatedAt:    e.createdAt,
		})
	}
	return out
}

// Forget removes id without touching the underlying session, for the
// Disconnect handler: the session's own OnSessionEndedByOtherSide will
// not fire for a local End(), so the handler removes it explicitly.
func (r *Registry) Forget(id string) {
	r.remove(id)
}
