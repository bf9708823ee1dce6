package hub

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/rs/zerolog"
)

// testPeer is a hub peer backed by an in-memory pipe, with the far end
// decoding frames into a channel.
type testPeer struct {
	peer   *Peer
	events chan Event
}

func newTestPeer(t *testing.T) *testPeer {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	tp := &testPeer{
		peer:   NewPeer(local),
		events: make(chan Event, 16),
	}

	go func() {
		decoder := json.NewDecoder(remote)
		for {
			var event Event
			if err := decoder.Decode(&event); err != nil {
				return
			}
			tp.events <- event
		}
	}()

	return tp
}

func (tp *testPeer) expectEvent(t *testing.T, eventType string) Event {
	t.Helper()
	select {
	case event := <-tp.events:
		if event.Type != eventType {
			t.Fatalf("expected event %q, got %q", eventType, event.Type)
		}
		return event
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %q event", eventType)
		return Event{}
	}
}

func (tp *testPeer) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case event := <-tp.events:
		t.Fatalf("expected no event, got %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

// mapAdminResolver resolves admin status from a fixed map.
type mapAdminResolver map[string]bool

func (r mapAdminResolver) IsAdmin(_ context.Context, userID string) (bool, error) {
	return r[userID], nil
}

func TestBroadcastToTeamScoping(t *testing.T) {
	h := New(mapAdminResolver{}, zerolog.Nop())

	alice := newTestPeer(t)
	bob := newTestPeer(t)
	carol := newTestPeer(t)

	h.Register(alice.peer, "alice", "team-1")
	h.Register(bob.peer, "bob", "team-1")
	h.Register(carol.peer, "carol", "team-2")

	h.BroadcastToTeam("team-1", Event{Type: EventPauseStarted, UserID: "alice"})

	alice.expectEvent(t, EventPauseStarted)
	bob.expectEvent(t, EventPauseStarted)
	carol.expectSilence(t)
}

func TestBroadcastSkipsUnregistered(t *testing.T) {
	h := New(mapAdminResolver{}, zerolog.Nop())

	alice := newTestPeer(t)
	bob := newTestPeer(t)

	h.Register(alice.peer, "alice", "team-1")
	h.Register(bob.peer, "bob", "team-1")
	h.Unregister(bob.peer)

	h.BroadcastToTeam("team-1", Event{Type: EventPauseEnded})

	alice.expectEvent(t, EventPauseEnded)
	bob.expectSilence(t)
}

func TestBroadcastToAdmins(t *testing.T) {
	resolver := mapAdminResolver{"root": true}
	h := New(resolver, zerolog.Nop())

	admin := newTestPeer(t)
	member := newTestPeer(t)

	h.Register(admin.peer, "root", "team-1")
	h.Register(member.peer, "alice", "team-1")

	h.BroadcastToAdmins(context.Background(), Event{Type: EventPauseEnded, UserID: "alice"})

	admin.expectEvent(t, EventPauseEnded)
	member.expectSilence(t)
}

func TestBroadcastToAdminsReResolvesRole(t *testing.T) {
	resolver := mapAdminResolver{}
	h := New(resolver, zerolog.Nop())

	peer := newTestPeer(t)
	h.Register(peer.peer, "alice", "team-1")

	h.BroadcastToAdmins(context.Background(), Event{Type: EventPauseEnded})
	peer.expectSilence(t)

	// Promotion takes effect without reconnecting.
	resolver["alice"] = true
	h.BroadcastToAdmins(context.Background(), Event{Type: EventPauseEnded})
	peer.expectEvent(t, EventPauseEnded)
}

func TestRegisteredLifecycle(t *testing.T) {
	h := New(mapAdminResolver{}, zerolog.Nop())

	peer := newTestPeer(t)
	if h.Registered(peer.peer) {
		t.Fatal("peer must not be registered before authentication")
	}

	h.Register(peer.peer, "alice", "team-1")
	if !h.Registered(peer.peer) {
		t.Fatal("peer must be registered after authentication")
	}

	h.Unregister(peer.peer)
	if h.Registered(peer.peer) {
		t.Fatal("peer must not be registered after unregister")
	}
}

func TestStoreAdminResolver(t *testing.T) {
	users := &stubUserStore{users: map[string]*storage.User{
		"root":  {ID: "root", IsAdmin: true},
		"alice": {ID: "alice"},
	}}
	resolver := StoreAdminResolver{Users: users}

	isAdmin, err := resolver.IsAdmin(context.Background(), "root")
	if err != nil || !isAdmin {
		t.Fatalf("expected root to be admin, got %v, %v", isAdmin, err)
	}
	isAdmin, err = resolver.IsAdmin(context.Background(), "alice")
	if err != nil || isAdmin {
		t.Fatalf("expected alice to not be admin, got %v, %v", isAdmin, err)
	}
}

// stubUserStore implements just enough of storage.UserStore for resolver tests.
type stubUserStore struct {
	users map[string]*storage.User
}

func (s *stubUserStore) Get(_ context.Context, id string) (*storage.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return user, nil
}

func (s *stubUserStore) GetByEmail(_ context.Context, email string) (*storage.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *stubUserStore) List(_ context.Context) ([]storage.User, error) {
	users := make([]storage.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, *user)
	}
	return users, nil
}

func (s *stubUserStore) Upsert(_ context.Context, user storage.User) error {
	s.users[user.ID] = &user
	return nil
}

func (s *stubUserStore) Delete(_ context.Context, id string) error {
	delete(s.users, id)
	return nil
}

func (s *stubUserStore) SetTeam(_ context.Context, id string, teamID string) error {
	user, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	user.TeamID = teamID
	return nil
}

func (s *stubUserStore) SetBreakLimitExceeded(_ context.Context, id string, exceeded bool) error {
	user, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	user.BreakLimitExceeded = exceeded
	return nil
}
