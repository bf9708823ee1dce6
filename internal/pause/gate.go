package pause

import (
	"context"
	"errors"
	"fmt"

	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/rs/zerolog"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Admitted bool
	Reason   string
	Active   int
	Limit    int
}

// Gate decides whether a team may host one more concurrent pause.
//
// The count-then-create sequence for one team must not interleave: callers
// hold the team's lock (Serialize) across TryAdmit and the session create.
type Gate struct {
	sessions     storage.SessionStore
	teams        storage.TeamStore
	defaultLimit int
	locks        *keyedMutex
	logger       zerolog.Logger
}

// NewGate creates an admission gate.
func NewGate(sessions storage.SessionStore, teams storage.TeamStore, defaultLimit int, logger zerolog.Logger) *Gate {
	if defaultLimit <= 0 {
		defaultLimit = 6
	}
	return &Gate{
		sessions:     sessions,
		teams:        teams,
		defaultLimit: defaultLimit,
		locks:        newKeyedMutex(),
		logger:       logger.With().Str("component", "admission-gate").Logger(),
	}
}

// Serialize acquires the team's admission lock and returns the unlock.
func (g *Gate) Serialize(teamID string) func() {
	return g.locks.Lock(teamID)
}

// TryAdmit counts the team's active pauses against its cap.
func (g *Gate) TryAdmit(ctx context.Context, teamID string) (Decision, error) {
	limit := g.defaultLimit
	team, err := g.teams.Get(ctx, teamID)
	switch {
	case err == nil:
		if team.MaxConcurrentPauses > 0 {
			limit = team.MaxConcurrentPauses
		}
	case errors.Is(err, storage.ErrNotFound):
		return Decision{}, fmt.Errorf("team %s: %w", teamID, storage.ErrNotFound)
	default:
		return Decision{}, fmt.Errorf("get team: %w", err)
	}

	active, err := g.sessions.CountActiveByTeam(ctx, teamID)
	if err != nil {
		return Decision{}, fmt.Errorf("count active sessions: %w", err)
	}

	decision := Decision{Active: active, Limit: limit}
	if active >= limit {
		decision.Reason = "team pause limit reached"
		g.logger.Debug().
			Str("team_id", teamID).
			Int("active", active).
			Int("limit", limit).
			Msg("Pause admission rejected")
		return decision, nil
	}

	decision.Admitted = true
	return decision, nil
}
