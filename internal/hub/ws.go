package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/breakdesk/breakdesk/internal/metrics"
	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
	"golang.org/x/net/websocket"
)

// DefaultAuthGrace is how long a connection may stay unauthenticated before
// it is evicted.
const DefaultAuthGrace = 30 * time.Second

// TokenVerifier resolves a credential token to the current user record.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*storage.User, error)
}

// clientMessage is the inbound frame shape on the live channel.
type clientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// WSGateway accepts websocket connections, runs the in-band authentication
// handshake, and registers authenticated peers with the hub.
//
// Unauthenticated connections are tracked in a TTL cache; when the grace
// period expires without a successful authenticate message the connection is
// closed.
type WSGateway struct {
	hub      *Hub
	verifier TokenVerifier
	grace    *ttlcache.Cache[*Peer, struct{}]
	logger   zerolog.Logger
}

// NewWSGateway creates a websocket gateway for the hub.
func NewWSGateway(h *Hub, verifier TokenVerifier, grace time.Duration, logger zerolog.Logger) *WSGateway {
	if grace <= 0 {
		grace = DefaultAuthGrace
	}

	g := &WSGateway{
		hub:      h,
		verifier: verifier,
		logger:   logger.With().Str("component", "ws-gateway").Logger(),
	}

	g.grace = ttlcache.New[*Peer, struct{}](
		ttlcache.WithTTL[*Peer, struct{}](grace),
		ttlcache.WithDisableTouchOnHit[*Peer, struct{}](),
	)
	g.grace.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[*Peer, struct{}]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		peer := item.Key()
		if !g.hub.Registered(peer) {
			g.logger.Debug().Msg("Closing connection that never authenticated")
			_ = peer.Close()
		}
	})

	return g
}

// Start begins the auth grace expiration loop.
func (g *WSGateway) Start() {
	go g.grace.Start()
}

// Stop stops the expiration loop.
func (g *WSGateway) Stop() {
	g.grace.Stop()
}

// Handler returns the websocket handler for the live channel endpoint.
func (g *WSGateway) Handler() websocket.Handler {
	return websocket.Handler(g.handle)
}

func (g *WSGateway) handle(conn *websocket.Conn) {
	peer := NewPeer(conn)
	g.grace.Set(peer, struct{}{}, ttlcache.DefaultTTL)

	defer func() {
		g.grace.Delete(peer)
		g.hub.Unregister(peer)
		_ = conn.Close()
	}()

	ctx := conn.Request().Context()
	decoder := json.NewDecoder(conn)

	for {
		var msg clientMessage
		if err := decoder.Decode(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "authenticate":
			user, err := g.verifier.Verify(ctx, msg.Token)
			if err != nil {
				metrics.AuthFailuresTotal.Inc()
				g.logger.Debug().Err(err).Msg("Live channel authentication failed")
				// Connection stays open so the client can retry.
				_ = peer.Send(Event{Type: EventError, Message: "Authentication failed"})
				continue
			}

			g.hub.Register(peer, user.ID, user.TeamID)
			g.grace.Delete(peer)
			_ = peer.Send(Event{Type: EventAuthenticated, Success: true})

		default:
			_ = peer.Send(Event{Type: EventError, Message: "Unknown message type"})
		}
	}
}
