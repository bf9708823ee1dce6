package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Category identifies the kind of break a pause session belongs to.
type Category string

const (
	CategoryLunch  Category = "lunch"
	CategoryScreen Category = "screen"
	CategoryBreak  Category = "break"
)

// UnmarshalJSON implements json.Unmarshaler to normalize and validate categories.
func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	normalized := Category(strings.ToLower(s))

	switch normalized {
	case CategoryLunch, CategoryScreen, CategoryBreak:
		*c = normalized
		return nil
	default:
		return fmt.Errorf("invalid category: %s (must be lunch, screen, or break)", s)
	}
}

// MarshalJSON implements json.Marshaler to ensure lowercase output.
func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(c))
}

// Valid reports whether the category is one of the known break kinds.
func (c Category) Valid() bool {
	switch c {
	case CategoryLunch, CategoryScreen, CategoryBreak:
		return true
	}
	return false
}

// User represents an account known to the tracker.
type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	FirstName          string    `json:"first_name"`
	LastName           string    `json:"last_name"`
	PasswordHash       string    `json:"-"`
	IsAdmin            bool      `json:"is_admin"`
	TeamID             string    `json:"team_id,omitempty"`
	BreakLimitExceeded bool      `json:"break_limit_exceeded"`
	CreatedAt          time.Time `json:"created_at"`
}

// DisplayName returns the name shown to teammates in live events.
func (u *User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Team groups users and carries the concurrent-pause cap.
type Team struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	MaxConcurrentPauses int       `json:"max_concurrent_pauses"`
	CreatedAt           time.Time `json:"created_at"`
}

// PauseSession represents a single contiguous break interval.
// TeamID is denormalized at creation so ending a pause needs no team lookup.
type PauseSession struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TeamID    string     `json:"team_id"`
	Category  Category   `json:"category"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Active    bool       `json:"active"`
}

// DailyUsage aggregates pause seconds per day/user/category.
type DailyUsage struct {
	Date         string   `json:"date"`
	UserID       string   `json:"user_id"`
	Category     Category `json:"category"`
	TotalSeconds int64    `json:"total_seconds"`
}

// DateKey formats a timestamp as the daily usage bucket key.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
