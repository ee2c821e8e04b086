// Command qcchatd runs a qcchat node: it listens for and dials peer
// sessions per spec.md §4.6, and exposes an HTTP control plane
// (internal/api) for driving them.
package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/qcchat/qcchat/internal/api"
	"github.com/qcchat/qcchat/internal/api/registry"
	"github.com/qcchat/qcchat/internal/keystore"
	"github.com/qcchat/qcchat/internal/protocol"
	"github.com/qcchat/qcchat/internal/sessionfactory"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("🚀 qcchatd starting...")

	apiPort := envOr("PORT", "3200")
	listenPort := envIntOr("QCCHAT_LISTEN_PORT", 7700)
	username := envOr("QCCHAT_USERNAME", "anonymous")
	keyPath := envOr("QCCHAT_KEY_PATH", "qcchat_identity.pem")

	keys, err := keystore.New(keyPath).LoadOrGenerate(protocol.DefaultRSAKeyBits)
	if err != nil {
		sugar.Fatalf("failed to load or generate identity: %v", err)
	}

	factory := sessionfactory.New(sugar)
	factory.SetUserInfo(protocol.UserInfo{Username: username})
	factory.SetKeys(keys)

	reg := registry.New(sugar)

	if err := factory.AllowConnections(listenPort); err != nil {
		sugar.Fatalf("failed to listen for incoming sessions: %v", err)
	}
	sugar.Infof("👂 listening for peers on port %d as %q", listenPort, username)

	go acceptInboundSessions(factory, reg, keys, sugar)

	server := api.NewServer(api.ServerConfig{
		Port:     apiPort,
		Logger:   sugar,
		Factory:  factory,
		Registry: reg,
		Keys:     keys,
	})

	go func() {
		if err := server.Start(); err != nil {
			sugar.Fatalf("api server failed: %v", err)
		}
	}()
	sugar.Infof("✅ control plane listening at http://0.0.0.0:%s", apiPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Info("shutting down gracefully...")
	factory.DisallowConnections()
	server.Stop()
}

// acceptInboundSessions drains the factory's ChatRequests channel for
// the lifetime of the process, attaching a Responder processor to each
// inbound session and registering it so the control plane can see it.
func acceptInboundSessions(factory *sessionfactory.Factory, reg *registry.Registry, keys *protocol.KeyPair, logger *zap.SugaredLogger) {
	for sess := range factory.ChatRequests() {
		id := reg.Register(sess, registry.DirectionInbound)

		sess.OnSessionInitialized(func() {
			logger.Infow("session initialized", "id", id, "peer", sess.PeerInfo().Username)
		})
		sess.OnSessionInitializationError(func(err error) {
			logger.Warnw("inbound handshake failed", "id", id, "error", err)
		})

		if err := sess.Initialize(protocol.NewResponderProcessor(keys, sess.OwnUserInfo())); err != nil {
			logger.Errorw("failed to start inbound handshake", "id", id, "error", err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
