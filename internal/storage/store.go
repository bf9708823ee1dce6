package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Users() UserStore
	Teams() TeamStore
	Sessions() SessionStore
	Usage() UsageStore
}

// UserStore manages user accounts.
type UserStore interface {
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Upsert(ctx context.Context, user User) error
	Delete(ctx context.Context, id string) error
	SetTeam(ctx context.Context, id string, teamID string) error
	SetBreakLimitExceeded(ctx context.Context, id string, exceeded bool) error
}

// TeamStore manages teams.
type TeamStore interface {
	Get(ctx context.Context, id string) (*Team, error)
	List(ctx context.Context) ([]Team, error)
	Upsert(ctx context.Context, team Team) error
	Delete(ctx context.Context, id string) error
}

// SessionStore manages pause session records.
//
// Create must register the session as the user's single active session and
// add it to the team's active set in one atomic step. Close must clear both
// indexes together with the record update.
type SessionStore interface {
	Get(ctx context.Context, id string) (*PauseSession, error)
	Create(ctx context.Context, session PauseSession) error
	Close(ctx context.Context, id string, endedAt time.Time) (*PauseSession, error)
	GetActiveByUser(ctx context.Context, userID string) (*PauseSession, error)
	ListActiveByTeam(ctx context.Context, teamID string) ([]PauseSession, error)
	CountActiveByTeam(ctx context.Context, teamID string) (int, error)
	DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// UsageStore manages daily pause usage accumulation.
//
// IncrementDaily is an atomic add at the storage layer and returns the new
// total for the bucket. ForDate returns only buckets that exist; callers
// treat missing categories as zero.
type UsageStore interface {
	IncrementDaily(ctx context.Context, date string, userID string, category Category, seconds int64) (int64, error)
	GetDaily(ctx context.Context, date string, userID string, category Category) (*DailyUsage, error)
	ForDate(ctx context.Context, date string, userID string) ([]DailyUsage, error)
	DeleteBefore(ctx context.Context, cutoffDate string) (int, error)
}
