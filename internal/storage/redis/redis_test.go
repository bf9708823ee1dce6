package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/breakdesk/breakdesk/internal/config"
	"github.com/breakdesk/breakdesk/internal/storage"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so we use it directly
	cfg := config.RedisConfig{
		Host:         mr.Addr(), // Full address "host:port"
		Port:         0,         // Not used when host contains port
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func TestUserStore_UpsertAndEmailIndex(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	users := store.Users()

	user := storage.User{
		ID:           "user-1",
		Email:        "mia@example.com",
		FirstName:    "Mia",
		LastName:     "Ng",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}

	if err := users.Upsert(ctx, user); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	retrieved, err := users.GetByEmail(ctx, "mia@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if retrieved.ID != user.ID {
		t.Errorf("Expected ID %s, got %s", user.ID, retrieved.ID)
	}
	if retrieved.PasswordHash != "hash" {
		t.Errorf("Expected password hash to round-trip, got %q", retrieved.PasswordHash)
	}

	// Email change must drop the old index entry
	user.Email = "mia.ng@example.com"
	if err := users.Upsert(ctx, user); err != nil {
		t.Fatalf("Upsert with new email failed: %v", err)
	}

	if _, err := users.GetByEmail(ctx, "mia@example.com"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for stale email, got %v", err)
	}
}

func TestSessionStore_CreateAndClose(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	sessions := store.Sessions()

	session := storage.PauseSession{
		ID:        "session-1",
		UserID:    "user-1",
		TeamID:    "team-1",
		Category:  storage.CategoryScreen,
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
		Active:    true,
	}

	if err := sessions.Create(ctx, session); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	active, err := sessions.GetActiveByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetActiveByUser failed: %v", err)
	}
	if active.ID != "session-1" {
		t.Errorf("Expected session-1, got %s", active.ID)
	}
	if active.Category != storage.CategoryScreen {
		t.Errorf("Expected category screen, got %s", active.Category)
	}

	count, err := sessions.CountActiveByTeam(ctx, "team-1")
	if err != nil {
		t.Fatalf("CountActiveByTeam failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 active session, got %d", count)
	}

	closed, err := sessions.Close(ctx, "session-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if closed.Active {
		t.Error("Expected closed session to be inactive")
	}
	if closed.EndedAt == nil {
		t.Error("Expected EndedAt to be set")
	}

	if _, err := sessions.GetActiveByUser(ctx, "user-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after close, got %v", err)
	}

	count, err = sessions.CountActiveByTeam(ctx, "team-1")
	if err != nil {
		t.Fatalf("CountActiveByTeam after close failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 active sessions, got %d", count)
	}

	// Second close must report not found
	if _, err := sessions.Close(ctx, "session-1", time.Now().UTC()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second close, got %v", err)
	}
}

func TestSessionStore_ListActiveByTeam(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	sessions := store.Sessions()

	for _, s := range []storage.PauseSession{
		{ID: "s1", UserID: "u1", TeamID: "team-1", Category: storage.CategoryLunch, StartedAt: time.Now().UTC(), Active: true},
		{ID: "s2", UserID: "u2", TeamID: "team-1", Category: storage.CategoryBreak, StartedAt: time.Now().UTC(), Active: true},
		{ID: "s3", UserID: "u3", TeamID: "team-2", Category: storage.CategoryScreen, StartedAt: time.Now().UTC(), Active: true},
	} {
		if err := sessions.Create(ctx, s); err != nil {
			t.Fatalf("Create %s failed: %v", s.ID, err)
		}
	}

	list, err := sessions.ListActiveByTeam(ctx, "team-1")
	if err != nil {
		t.Fatalf("ListActiveByTeam failed: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("Expected 2 sessions for team-1, got %d", len(list))
	}
}

func TestUsageStore_IncrementDaily(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	usage := store.Usage()
	date := "2026-08-27"

	total, err := usage.IncrementDaily(ctx, date, "user-1", storage.CategoryLunch, 900)
	if err != nil {
		t.Fatalf("IncrementDaily failed: %v", err)
	}
	if total != 900 {
		t.Errorf("Expected total 900, got %d", total)
	}

	total, err = usage.IncrementDaily(ctx, date, "user-1", storage.CategoryLunch, 600)
	if err != nil {
		t.Fatalf("Second IncrementDaily failed: %v", err)
	}
	if total != 1500 {
		t.Errorf("Expected total 1500, got %d", total)
	}

	daily, err := usage.GetDaily(ctx, date, "user-1", storage.CategoryLunch)
	if err != nil {
		t.Fatalf("GetDaily failed: %v", err)
	}
	if daily.TotalSeconds != 1500 {
		t.Errorf("Expected 1500 seconds, got %d", daily.TotalSeconds)
	}
}

func TestUsageStore_ForDate(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	usage := store.Usage()
	date := "2026-08-27"

	if _, err := usage.IncrementDaily(ctx, date, "user-1", storage.CategoryLunch, 1200); err != nil {
		t.Fatalf("IncrementDaily lunch failed: %v", err)
	}
	if _, err := usage.IncrementDaily(ctx, date, "user-1", storage.CategoryScreen, 300); err != nil {
		t.Fatalf("IncrementDaily screen failed: %v", err)
	}
	// Other user's usage must not leak in
	if _, err := usage.IncrementDaily(ctx, date, "user-2", storage.CategoryLunch, 60); err != nil {
		t.Fatalf("IncrementDaily other user failed: %v", err)
	}

	usages, err := usage.ForDate(ctx, date, "user-1")
	if err != nil {
		t.Fatalf("ForDate failed: %v", err)
	}
	if len(usages) != 2 {
		t.Fatalf("Expected 2 usage buckets, got %d", len(usages))
	}

	totals := map[storage.Category]int64{}
	for _, u := range usages {
		totals[u.Category] = u.TotalSeconds
	}
	if totals[storage.CategoryLunch] != 1200 {
		t.Errorf("Expected lunch 1200, got %d", totals[storage.CategoryLunch])
	}
	if totals[storage.CategoryScreen] != 300 {
		t.Errorf("Expected screen 300, got %d", totals[storage.CategoryScreen])
	}
}

func TestTeamStore_Roundtrip(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	teams := store.Teams()

	team := storage.Team{
		ID:                  "team-1",
		Name:                "Support",
		MaxConcurrentPauses: 2,
		CreatedAt:           time.Now().UTC(),
	}
	if err := teams.Upsert(ctx, team); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := teams.Get(ctx, "team-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "Support" || got.MaxConcurrentPauses != 2 {
		t.Errorf("Unexpected team %+v", got)
	}

	if err := teams.Delete(ctx, "team-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := teams.Get(ctx, "team-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}
