package pause

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/breakdesk/breakdesk/internal/hub"
	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/breakdesk/breakdesk/internal/storage/bolt"
	"github.com/rs/zerolog"
)

// recordingBroadcaster captures emitted events for assertions.
type recordingBroadcaster struct {
	mu          sync.Mutex
	teamEvents  []hub.Event
	adminEvents []hub.Event
}

func (b *recordingBroadcaster) BroadcastToTeam(teamID string, event hub.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teamEvents = append(b.teamEvents, event)
}

func (b *recordingBroadcaster) BroadcastToAdmins(ctx context.Context, event hub.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.adminEvents = append(b.adminEvents, event)
}

func (b *recordingBroadcaster) team() []hub.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]hub.Event(nil), b.teamEvents...)
}

func (b *recordingBroadcaster) admin() []hub.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]hub.Event(nil), b.adminEvents...)
}

type managerFixture struct {
	store       storage.Store
	manager     *Manager
	broadcaster *recordingBroadcaster
}

func newManagerFixture(t *testing.T, budgets Budgets, teamLimit int) *managerFixture {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "breakdesk.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	logger := zerolog.Nop()
	broadcaster := &recordingBroadcaster{}
	gate := NewGate(store.Sessions(), store.Teams(), teamLimit, logger)
	ledger := NewLedger(store.Usage(), budgets, logger)
	manager := NewManager(store, gate, ledger, broadcaster, logger)

	return &managerFixture{store: store, manager: manager, broadcaster: broadcaster}
}

func (f *managerFixture) seedTeam(t *testing.T, id string, limit int) {
	t.Helper()
	if err := f.store.Teams().Upsert(context.Background(), storage.Team{
		ID:                  id,
		Name:                "Team " + id,
		MaxConcurrentPauses: limit,
		CreatedAt:           time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed team: %v", err)
	}
}

func (f *managerFixture) seedUser(t *testing.T, id, teamID string) {
	t.Helper()
	if err := f.store.Users().Upsert(context.Background(), storage.User{
		ID:        id,
		Email:     id + "@example.com",
		FirstName: id,
		TeamID:    teamID,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestStartPause(t *testing.T) {
	f := newManagerFixture(t, Budgets{LunchSeconds: 3600, ScreenSeconds: 1800}, 6)
	f.seedTeam(t, "team-1", 2)
	f.seedUser(t, "alice", "team-1")

	ctx := context.Background()

	session, err := f.manager.StartPause(ctx, "alice", storage.CategoryLunch)
	if err != nil {
		t.Fatalf("start pause: %v", err)
	}
	if !session.Active {
		t.Fatal("expected active session")
	}
	if session.TeamID != "team-1" {
		t.Fatalf("expected team-1, got %s", session.TeamID)
	}

	events := f.broadcaster.team()
	if len(events) != 1 || events[0].Type != hub.EventPauseStarted {
		t.Fatalf("expected one pause_started event, got %+v", events)
	}
	if events[0].UserName != "alice" {
		t.Fatalf("expected user name alice, got %q", events[0].UserName)
	}
}

func TestStartPauseRejectsSecondStart(t *testing.T) {
	f := newManagerFixture(t, Budgets{}, 6)
	f.seedTeam(t, "team-1", 5)
	f.seedUser(t, "alice", "team-1")

	ctx := context.Background()

	if _, err := f.manager.StartPause(ctx, "alice", storage.CategoryBreak); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := f.manager.StartPause(ctx, "alice", storage.CategoryLunch); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestStartPauseRequiresTeam(t *testing.T) {
	f := newManagerFixture(t, Budgets{}, 6)
	f.seedUser(t, "drifter", "")

	if _, err := f.manager.StartPause(context.Background(), "drifter", storage.CategoryBreak); !errors.Is(err, ErrNoTeam) {
		t.Fatalf("expected ErrNoTeam, got %v", err)
	}
}

func TestStartPauseInvalidCategory(t *testing.T) {
	f := newManagerFixture(t, Budgets{}, 6)
	f.seedTeam(t, "team-1", 5)
	f.seedUser(t, "alice", "team-1")

	if _, err := f.manager.StartPause(context.Background(), "alice", storage.Category("nap")); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestStartPauseTeamAtCapacity(t *testing.T) {
	f := newManagerFixture(t, Budgets{}, 6)
	f.seedTeam(t, "team-1", 2)
	for _, id := range []string{"u1", "u2", "u3"} {
		f.seedUser(t, id, "team-1")
	}

	ctx := context.Background()

	if _, err := f.manager.StartPause(ctx, "u1", storage.CategoryBreak); err != nil {
		t.Fatalf("start u1: %v", err)
	}
	if _, err := f.manager.StartPause(ctx, "u2", storage.CategoryLunch); err != nil {
		t.Fatalf("start u2: %v", err)
	}
	if _, err := f.manager.StartPause(ctx, "u3", storage.CategoryScreen); !errors.Is(err, ErrTeamAtCapacity) {
		t.Fatalf("expected ErrTeamAtCapacity, got %v", err)
	}

	// A slot freed by an end admits the next start.
	if _, _, err := f.manager.EndPause(ctx, "u1"); err != nil {
		t.Fatalf("end u1: %v", err)
	}
	if _, err := f.manager.StartPause(ctx, "u3", storage.CategoryScreen); err != nil {
		t.Fatalf("start u3 after slot freed: %v", err)
	}
}

func TestConcurrentStartsNeverExceedCap(t *testing.T) {
	const limit = 3
	const users = 12

	f := newManagerFixture(t, Budgets{}, 6)
	f.seedTeam(t, "team-1", limit)

	ids := make([]string, users)
	for i := range ids {
		ids[i] = string(rune('a' + i))
		f.seedUser(t, ids[i], "team-1")
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for _, id := range ids {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			if _, err := f.manager.StartPause(ctx, userID, storage.CategoryBreak); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	if admitted != limit {
		t.Fatalf("expected exactly %d admitted starts, got %d", limit, admitted)
	}

	count, err := f.store.Sessions().CountActiveByTeam(ctx, "team-1")
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if count != limit {
		t.Fatalf("expected %d active sessions, got %d", limit, count)
	}
}

func TestEndPauseFoldsUsage(t *testing.T) {
	f := newManagerFixture(t, Budgets{LunchSeconds: 3600, ScreenSeconds: 1800}, 6)
	f.seedTeam(t, "team-1", 5)
	f.seedUser(t, "alice", "team-1")

	ctx := context.Background()
	base := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	now := base
	f.manager.SetClock(func() time.Time { return now })

	if _, err := f.manager.StartPause(ctx, "alice", storage.CategoryLunch); err != nil {
		t.Fatalf("start: %v", err)
	}

	now = base.Add(20 * time.Minute)
	closed, report, err := f.manager.EndPause(ctx, "alice")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if closed.Active {
		t.Fatal("expected closed session to be inactive")
	}
	if report.LunchSecondsUsed != 1200 {
		t.Fatalf("expected 1200 lunch seconds, got %d", report.LunchSecondsUsed)
	}
	if report.Exceeded() {
		t.Fatal("did not expect exceeded budgets")
	}

	events := f.broadcaster.team()
	if len(events) != 2 {
		t.Fatalf("expected 2 team events, got %d", len(events))
	}
	if events[1].Type != hub.EventPauseEnded {
		t.Fatalf("expected pause_ended, got %s", events[1].Type)
	}
	if events[1].Exceeded == nil || events[1].Exceeded.Any() {
		t.Fatalf("expected clear exceeded flags, got %+v", events[1].Exceeded)
	}
}

func TestEndPauseFlagsExceededBudget(t *testing.T) {
	f := newManagerFixture(t, Budgets{LunchSeconds: 600, ScreenSeconds: 1800}, 6)
	f.seedTeam(t, "team-1", 5)
	f.seedUser(t, "alice", "team-1")

	ctx := context.Background()
	base := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	now := base
	f.manager.SetClock(func() time.Time { return now })

	if _, err := f.manager.StartPause(ctx, "alice", storage.CategoryLunch); err != nil {
		t.Fatalf("start: %v", err)
	}

	now = base.Add(11 * time.Minute)
	_, report, err := f.manager.EndPause(ctx, "alice")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if !report.LunchExceeded {
		t.Fatal("expected lunch budget exceeded")
	}

	user, err := f.store.Users().Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !user.BreakLimitExceeded {
		t.Fatal("expected exceeded flag on user")
	}

	admins := f.broadcaster.admin()
	if len(admins) != 1 {
		t.Fatalf("expected 1 admin event, got %d", len(admins))
	}
	if admins[0].Exceeded == nil || !admins[0].Exceeded.Lunch {
		t.Fatalf("expected admin event with lunch exceeded, got %+v", admins[0].Exceeded)
	}

	// Already flagged users do not trigger another admin notification.
	now = now.Add(time.Minute)
	if _, err := f.manager.StartPause(ctx, "alice", storage.CategoryLunch); err != nil {
		t.Fatalf("second start: %v", err)
	}
	now = now.Add(5 * time.Minute)
	if _, _, err := f.manager.EndPause(ctx, "alice"); err != nil {
		t.Fatalf("second end: %v", err)
	}
	if len(f.broadcaster.admin()) != 1 {
		t.Fatalf("expected still 1 admin event, got %d", len(f.broadcaster.admin()))
	}
}

func TestEndPauseWithoutActiveSession(t *testing.T) {
	f := newManagerFixture(t, Budgets{}, 6)
	f.seedTeam(t, "team-1", 5)
	f.seedUser(t, "alice", "team-1")

	if _, _, err := f.manager.EndPause(context.Background(), "alice"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestActiveSessionNilWhenIdle(t *testing.T) {
	f := newManagerFixture(t, Budgets{}, 6)
	f.seedTeam(t, "team-1", 5)
	f.seedUser(t, "alice", "team-1")

	session, err := f.manager.ActiveSession(context.Background(), "alice")
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if session != nil {
		t.Fatalf("expected nil session, got %+v", session)
	}
}

func TestClearExceededFlagIdempotent(t *testing.T) {
	f := newManagerFixture(t, Budgets{}, 6)
	f.seedUser(t, "alice", "")

	ctx := context.Background()

	if err := f.store.Users().SetBreakLimitExceeded(ctx, "alice", true); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	if err := f.manager.ClearExceededFlag(ctx, "alice"); err != nil {
		t.Fatalf("clear flag: %v", err)
	}
	// Clearing again must succeed.
	if err := f.manager.ClearExceededFlag(ctx, "alice"); err != nil {
		t.Fatalf("second clear: %v", err)
	}

	user, err := f.store.Users().Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.BreakLimitExceeded {
		t.Fatal("expected flag to be clear")
	}
}
