package hub

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/breakdesk/breakdesk/internal/metrics"
	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/rs/zerolog"
)

// EventType identifies a live channel event kind.
const (
	EventPauseStarted  = "pause_started"
	EventPauseEnded    = "pause_ended"
	EventAuthenticated = "authenticated"
	EventError         = "error"
)

// ExceededFlags reports which daily budgets a user has surpassed.
type ExceededFlags struct {
	Lunch  bool `json:"lunch"`
	Screen bool `json:"screen"`
}

// Any reports whether either budget was exceeded.
func (f ExceededFlags) Any() bool {
	return f.Lunch || f.Screen
}

// Event is a single frame delivered over the live channel.
type Event struct {
	Type     string                `json:"type"`
	UserID   string                `json:"user_id,omitempty"`
	UserName string                `json:"user_name,omitempty"`
	Category storage.Category      `json:"category,omitempty"`
	Session  *storage.PauseSession `json:"session,omitempty"`
	Exceeded *ExceededFlags        `json:"exceeded,omitempty"`
	Success  bool                  `json:"success,omitempty"`
	Message  string                `json:"message,omitempty"`
}

// Peer is a single live connection with serialized frame writes.
type Peer struct {
	mu      sync.Mutex
	encoder *json.Encoder
	closer  io.Closer
}

// NewPeer wraps a transport connection as a live channel peer.
func NewPeer(rw io.ReadWriteCloser) *Peer {
	return &Peer{
		encoder: json.NewEncoder(rw),
		closer:  rw,
	}
}

// Send writes one event frame to the peer.
func (p *Peer) Send(event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(event)
}

// Close closes the underlying transport.
func (p *Peer) Close() error {
	return p.closer.Close()
}

type binding struct {
	userID string
	teamID string
}

// AdminResolver reports whether a user currently holds the admin role.
// Resolution happens at delivery time so role changes take effect without
// reconnecting.
type AdminResolver interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// StoreAdminResolver resolves admin status from the user store.
type StoreAdminResolver struct {
	Users storage.UserStore
}

func (r StoreAdminResolver) IsAdmin(ctx context.Context, userID string) (bool, error) {
	user, err := r.Users.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.IsAdmin, nil
}

// Hub owns the live connection registry and fans lifecycle events out to the
// right audience. The registry is guarded by a single mutex; team fan-out
// uses a per-team index instead of scanning every connection. Delivery is
// best effort: a failed write drops the frame, not the connection.
type Hub struct {
	mu     sync.RWMutex
	conns  map[*Peer]binding
	byTeam map[string]map[*Peer]struct{}

	admins AdminResolver
	logger zerolog.Logger
}

// New creates a hub with an empty registry.
func New(admins AdminResolver, logger zerolog.Logger) *Hub {
	return &Hub{
		conns:  make(map[*Peer]binding),
		byTeam: make(map[string]map[*Peer]struct{}),
		admins: admins,
		logger: logger.With().Str("component", "hub").Logger(),
	}
}

// Register binds an authenticated peer to a user and team.
func (h *Hub) Register(peer *Peer, userID, teamID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.conns[peer]; ok {
		h.removeFromTeamLocked(peer, prev.teamID)
	}

	h.conns[peer] = binding{userID: userID, teamID: teamID}
	if teamID != "" {
		set, ok := h.byTeam[teamID]
		if !ok {
			set = make(map[*Peer]struct{})
			h.byTeam[teamID] = set
		}
		set[peer] = struct{}{}
	}

	metrics.LiveConnections.Set(float64(len(h.conns)))
}

// Unregister removes a peer from the registry. Safe to call for peers that
// never authenticated.
func (h *Hub) Unregister(peer *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.conns[peer]
	if !ok {
		return
	}
	delete(h.conns, peer)
	h.removeFromTeamLocked(peer, b.teamID)

	metrics.LiveConnections.Set(float64(len(h.conns)))
}

func (h *Hub) removeFromTeamLocked(peer *Peer, teamID string) {
	if teamID == "" {
		return
	}
	set, ok := h.byTeam[teamID]
	if !ok {
		return
	}
	delete(set, peer)
	if len(set) == 0 {
		delete(h.byTeam, teamID)
	}
}

// Registered reports whether the peer is currently authenticated.
func (h *Hub) Registered(peer *Peer) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[peer]
	return ok
}

// BroadcastToTeam delivers an event to every authenticated connection bound
// to the team. Writes happen outside the registry lock.
func (h *Hub) BroadcastToTeam(teamID string, event Event) {
	h.mu.RLock()
	targets := make([]*Peer, 0, len(h.byTeam[teamID]))
	for peer := range h.byTeam[teamID] {
		targets = append(targets, peer)
	}
	h.mu.RUnlock()

	for _, peer := range targets {
		if err := peer.Send(event); err != nil {
			h.logger.Debug().Err(err).Str("team_id", teamID).Msg("Dropped team event frame")
			continue
		}
		metrics.BroadcastsTotal.WithLabelValues("team").Inc()
	}
}

// BroadcastToAdmins delivers an event to every connection whose bound user is
// currently an administrator. Admin status is re-resolved per delivery.
func (h *Hub) BroadcastToAdmins(ctx context.Context, event Event) {
	h.mu.RLock()
	targets := make(map[*Peer]string, len(h.conns))
	for peer, b := range h.conns {
		targets[peer] = b.userID
	}
	h.mu.RUnlock()

	for peer, userID := range targets {
		isAdmin, err := h.admins.IsAdmin(ctx, userID)
		if err != nil {
			h.logger.Debug().Err(err).Str("user_id", userID).Msg("Admin resolution failed")
			continue
		}
		if !isAdmin {
			continue
		}
		if err := peer.Send(event); err != nil {
			h.logger.Debug().Err(err).Str("user_id", userID).Msg("Dropped admin event frame")
			continue
		}
		metrics.BroadcastsTotal.WithLabelValues("admin").Inc()
	}
}
