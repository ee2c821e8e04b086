package sessionfactory_test

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qcchat/qcchat/internal/protocol"
	"github.com/qcchat/qcchat/internal/session"
	"github.com/qcchat/qcchat/internal/sessionfactory"
)

const testTimeout = 3 * time.Second

func newFactory(t *testing.T, username string) (*sessionfactory.Factory, *protocol.KeyPair) {
	t.Helper()
	keys, err := protocol.GenerateKeyPair(protocol.DefaultRSAKeyBits)
	require.NoError(t, err)

	f := sessionfactory.New(zap.NewNop().Sugar())
	f.SetUserInfo(protocol.UserInfo{Username: username})
	f.SetKeys(keys)
	return f, keys
}

func TestFactoryAcceptAndDialHandshake(t *testing.T) {
	responderFactory, responderKeys := newFactory(t, "bob")
	initiatorFactory, initiatorKeys := newFactory(t, "alice")

	require.NoError(t, responderFactory.AllowConnections(0))
	defer responderFactory.DisallowConnections()

	addr := responderFactory.Addr().(*net.TCPAddr)
	initiatorSession := initiatorFactory.TryConnect("127.0.0.1", addr.Port)

	initiatorConnected := make(chan struct{})
	initiatorSession.OnConnectionEstablished(func() { close(initiatorConnected) })

	var responderSession *session.Session
	select {
	case responderSession = <-responderFactory.ChatRequests():
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for chat request")
	}

	select {
	case <-initiatorConnected:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for initiator connectionEstablished")
	}

	responderInitialized := make(chan struct{})
	initiatorInitialized := make(chan struct{})
	responderSession.OnSessionInitialized(func() { close(responderInitialized) })
	initiatorSession.OnSessionInitialized(func() { close(initiatorInitialized) })

	require.NoError(t, responderSession.Initialize(protocol.NewResponderProcessor(responderKeys, responderSession.OwnUserInfo())))
	require.NoError(t, initiatorSession.Initialize(protocol.NewInitiatorProcessor(initiatorKeys, initiatorSession.OwnUserInfo())))

	select {
	case <-responderInitialized:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for responder sessionInitialized")
	}
	select {
	case <-initiatorInitialized:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for initiator sessionInitialized")
	}

	assert.Equal(t, "alice", responderSession.PeerInfo().Username)
	assert.Equal(t, "bob", initiatorSession.PeerInfo().Username)
}

func TestFactoryDisallowConnectionsStopsAccepting(t *testing.T) {
	f, _ := newFactory(t, "bob")
	require.NoError(t, f.AllowConnections(0))
	addr := f.Addr().(*net.TCPAddr)

	require.NoError(t, f.DisallowConnections())

	_, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(addr.Port), 500*time.Millisecond)
	assert.Error(t, err)
}

func TestFactorySetUserInfoOnlyAffectsFutureSessions(t *testing.T) {
	keys, err := protocol.GenerateKeyPair(protocol.DefaultRSAKeyBits)
	require.NoError(t, err)

	f := sessionfactory.New(zap.NewNop().Sugar())
	f.SetKeys(keys)
	f.SetUserInfo(protocol.UserInfo{Username: "first"})

	first := f.TryConnect("127.0.0.1", 1) // will fail to connect; only identity matters here
	assert.Equal(t, "first", first.OwnUserInfo().Username)

	f.SetUserInfo(protocol.UserInfo{Username: "second"})
	second := f.TryConnect("127.0.0.1", 1)
	assert.Equal(t, "second", second.OwnUserInfo().Username)

	// The first session's identity must not have been mutated by the
	// later SetUserInfo call.
	assert.Equal(t, "first", first.OwnUserInfo().Username)
}
