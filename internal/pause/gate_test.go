package pause

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/breakdesk/breakdesk/internal/storage/bolt"
	"github.com/rs/zerolog"
)

func newGateFixture(t *testing.T, defaultLimit int) (*Gate, storage.Store) {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "breakdesk.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return NewGate(store.Sessions(), store.Teams(), defaultLimit, zerolog.Nop()), store
}

func seedActiveSessions(t *testing.T, store storage.Store, teamID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := store.Sessions().Create(context.Background(), storage.PauseSession{
			ID:        teamID + "-session-" + string(rune('a'+i)),
			UserID:    teamID + "-user-" + string(rune('a'+i)),
			TeamID:    teamID,
			Category:  storage.CategoryBreak,
			StartedAt: time.Now().UTC(),
			Active:    true,
		}); err != nil {
			t.Fatalf("seed session: %v", err)
		}
	}
}

func TestTryAdmitUnderCap(t *testing.T) {
	gate, store := newGateFixture(t, 6)

	ctx := context.Background()
	if err := store.Teams().Upsert(ctx, storage.Team{ID: "team-1", Name: "A", MaxConcurrentPauses: 3}); err != nil {
		t.Fatalf("upsert team: %v", err)
	}
	seedActiveSessions(t, store, "team-1", 2)

	decision, err := gate.TryAdmit(ctx, "team-1")
	if err != nil {
		t.Fatalf("try admit: %v", err)
	}
	if !decision.Admitted {
		t.Fatalf("expected admission, got %+v", decision)
	}
	if decision.Active != 2 || decision.Limit != 3 {
		t.Fatalf("expected 2/3, got %d/%d", decision.Active, decision.Limit)
	}
}

func TestTryAdmitAtCap(t *testing.T) {
	gate, store := newGateFixture(t, 6)

	ctx := context.Background()
	if err := store.Teams().Upsert(ctx, storage.Team{ID: "team-1", Name: "A", MaxConcurrentPauses: 2}); err != nil {
		t.Fatalf("upsert team: %v", err)
	}
	seedActiveSessions(t, store, "team-1", 2)

	decision, err := gate.TryAdmit(ctx, "team-1")
	if err != nil {
		t.Fatalf("try admit: %v", err)
	}
	if decision.Admitted {
		t.Fatalf("expected rejection at cap, got %+v", decision)
	}
}

func TestTryAdmitDefaultLimit(t *testing.T) {
	gate, store := newGateFixture(t, 4)

	ctx := context.Background()
	// Cap of zero means the team falls back to the configured default.
	if err := store.Teams().Upsert(ctx, storage.Team{ID: "team-1", Name: "A", MaxConcurrentPauses: 0}); err != nil {
		t.Fatalf("upsert team: %v", err)
	}

	decision, err := gate.TryAdmit(ctx, "team-1")
	if err != nil {
		t.Fatalf("try admit: %v", err)
	}
	if decision.Limit != 4 {
		t.Fatalf("expected default limit 4, got %d", decision.Limit)
	}
}

func TestTryAdmitUnknownTeam(t *testing.T) {
	gate, _ := newGateFixture(t, 6)

	if _, err := gate.TryAdmit(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
