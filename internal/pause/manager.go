package pause

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/breakdesk/breakdesk/internal/hub"
	"github.com/breakdesk/breakdesk/internal/metrics"
	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Broadcaster fans lifecycle events out to live viewers.
type Broadcaster interface {
	BroadcastToTeam(teamID string, event hub.Event)
	BroadcastToAdmins(ctx context.Context, event hub.Event)
}

// Manager drives a user's pause session through its lifecycle: Idle, Active
// on a successful start, back to Idle on end.
//
// Start and end for the same user are serialized with a per-user lock; the
// admission count-then-create sequence additionally holds the team's lock.
type Manager struct {
	store       storage.Store
	gate        *Gate
	ledger      *Ledger
	broadcaster Broadcaster
	userLocks   *keyedMutex
	logger      zerolog.Logger
	now         func() time.Time
}

// NewManager creates a session lifecycle manager.
func NewManager(store storage.Store, gate *Gate, ledger *Ledger, broadcaster Broadcaster, logger zerolog.Logger) *Manager {
	return &Manager{
		store:       store,
		gate:        gate,
		ledger:      ledger,
		broadcaster: broadcaster,
		userLocks:   newKeyedMutex(),
		logger:      logger.With().Str("component", "pause-manager").Logger(),
		now:         time.Now,
	}
}

// SetClock overrides the manager's time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// StartPause opens a new pause session for the user in the given category.
func (m *Manager) StartPause(ctx context.Context, userID string, category storage.Category) (*storage.PauseSession, error) {
	if !category.Valid() {
		return nil, ErrInvalidCategory
	}

	user, err := m.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user.TeamID == "" {
		return nil, ErrNoTeam
	}

	unlockUser := m.userLocks.Lock(userID)
	defer unlockUser()

	if _, err := m.store.Sessions().GetActiveByUser(ctx, userID); err == nil {
		metrics.PauseRejectionsTotal.WithLabelValues("already_active").Inc()
		return nil, ErrAlreadyActive
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get active session: %w", err)
	}

	// Hold the team lock across the capacity check and the create so two
	// concurrent starts cannot both observe a free slot.
	unlockTeam := m.gate.Serialize(user.TeamID)
	defer unlockTeam()

	decision, err := m.gate.TryAdmit(ctx, user.TeamID)
	if err != nil {
		return nil, err
	}
	if !decision.Admitted {
		metrics.PauseRejectionsTotal.WithLabelValues("team_at_capacity").Inc()
		return nil, ErrTeamAtCapacity
	}

	session := storage.PauseSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TeamID:    user.TeamID,
		Category:  category,
		StartedAt: m.now().UTC(),
		Active:    true,
	}
	if err := m.store.Sessions().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	metrics.PauseStartsTotal.WithLabelValues(string(category)).Inc()

	m.logger.Info().
		Str("user_id", user.ID).
		Str("team_id", user.TeamID).
		Str("category", string(category)).
		Str("session_id", session.ID).
		Msg("Pause started")

	m.broadcaster.BroadcastToTeam(user.TeamID, hub.Event{
		Type:     hub.EventPauseStarted,
		UserID:   user.ID,
		UserName: user.DisplayName(),
		Category: category,
		Session:  &session,
	})

	return &session, nil
}

// EndPause closes the user's active session, folds the elapsed time into the
// daily ledger, and flags the user when a budget is newly exceeded.
func (m *Manager) EndPause(ctx context.Context, userID string) (*storage.PauseSession, *DailyReport, error) {
	user, err := m.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("get user: %w", err)
	}

	unlockUser := m.userLocks.Lock(userID)
	defer unlockUser()

	active, err := m.store.Sessions().GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrNoActiveSession
		}
		return nil, nil, fmt.Errorf("get active session: %w", err)
	}

	endedAt := m.now().UTC()
	closed, err := m.store.Sessions().Close(ctx, active.ID, endedAt)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrNoActiveSession
		}
		return nil, nil, fmt.Errorf("close session: %w", err)
	}

	elapsed := int64(closed.EndedAt.Sub(closed.StartedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}

	date := storage.DateKey(*closed.EndedAt)
	if _, err := m.ledger.AddUsage(ctx, userID, date, closed.Category, elapsed); err != nil {
		return nil, nil, err
	}

	report, err := m.ledger.ReportForDate(ctx, userID, date)
	if err != nil {
		return nil, nil, err
	}

	if report.Exceeded() && !user.BreakLimitExceeded {
		// Advisory only: the user is flagged, never blocked.
		if err := m.store.Users().SetBreakLimitExceeded(ctx, userID, true); err != nil {
			return nil, nil, fmt.Errorf("set exceeded flag: %w", err)
		}
		if report.LunchExceeded {
			metrics.BudgetExceededTotal.WithLabelValues(string(storage.CategoryLunch)).Inc()
		}
		if report.ScreenExceeded {
			metrics.BudgetExceededTotal.WithLabelValues(string(storage.CategoryScreen)).Inc()
		}
		m.broadcaster.BroadcastToAdmins(ctx, hub.Event{
			Type:     hub.EventPauseEnded,
			UserID:   user.ID,
			UserName: user.DisplayName(),
			Category: closed.Category,
			Session:  closed,
			Exceeded: &hub.ExceededFlags{Lunch: report.LunchExceeded, Screen: report.ScreenExceeded},
		})
	}

	metrics.PauseEndsTotal.WithLabelValues(string(closed.Category)).Inc()

	m.logger.Info().
		Str("user_id", user.ID).
		Str("team_id", closed.TeamID).
		Str("session_id", closed.ID).
		Int64("elapsed_seconds", elapsed).
		Bool("exceeded", report.Exceeded()).
		Msg("Pause ended")

	m.broadcaster.BroadcastToTeam(closed.TeamID, hub.Event{
		Type:     hub.EventPauseEnded,
		UserID:   user.ID,
		UserName: user.DisplayName(),
		Category: closed.Category,
		Session:  closed,
		Exceeded: &hub.ExceededFlags{Lunch: report.LunchExceeded, Screen: report.ScreenExceeded},
	})

	return closed, report, nil
}

// ActiveSession returns the user's active session, or nil when idle.
func (m *Manager) ActiveSession(ctx context.Context, userID string) (*storage.PauseSession, error) {
	session, err := m.store.Sessions().GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return session, nil
}

// UsageToday returns the user's budget report for the current day.
func (m *Manager) UsageToday(ctx context.Context, userID string) (*DailyReport, error) {
	return m.ledger.ReportForDate(ctx, userID, storage.DateKey(m.now().UTC()))
}

// TeamActiveSessions lists the team's currently active pauses.
func (m *Manager) TeamActiveSessions(ctx context.Context, teamID string) ([]storage.PauseSession, error) {
	return m.store.Sessions().ListActiveByTeam(ctx, teamID)
}

// ClearExceededFlag unconditionally clears the user's exceeded flag.
// Clearing an already clear flag is a no-op, not an error.
func (m *Manager) ClearExceededFlag(ctx context.Context, userID string) error {
	if err := m.store.Users().SetBreakLimitExceeded(ctx, userID, false); err != nil {
		return fmt.Errorf("clear exceeded flag: %w", err)
	}
	return nil
}
