package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/breakdesk/breakdesk/internal/storage"
)

// parseUser converts a Redis hash to User
func parseUser(data map[string]string) (*storage.User, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	createdAt, err := time.Parse(time.RFC3339Nano, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return &storage.User{
		ID:                 data["id"],
		Email:              data["email"],
		FirstName:          data["first_name"],
		LastName:           data["last_name"],
		PasswordHash:       data["password_hash"],
		IsAdmin:            data["is_admin"] == "1",
		TeamID:             data["team_id"],
		BreakLimitExceeded: data["break_limit_exceeded"] == "1",
		CreatedAt:          createdAt,
	}, nil
}

// parseTeam converts a Redis hash to Team
func parseTeam(data map[string]string) (*storage.Team, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	maxPauses, err := strconv.Atoi(data["max_concurrent_pauses"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse max_concurrent_pauses: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, data["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return &storage.Team{
		ID:                  data["id"],
		Name:                data["name"],
		MaxConcurrentPauses: maxPauses,
		CreatedAt:           createdAt,
	}, nil
}

// parsePauseSession converts a Redis hash to PauseSession
func parsePauseSession(data map[string]string) (*storage.PauseSession, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	startedAt, err := time.Parse(time.RFC3339Nano, data["started_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}

	var endedAt *time.Time
	if data["ended_at"] != "" {
		ended, err := time.Parse(time.RFC3339Nano, data["ended_at"])
		if err != nil {
			return nil, fmt.Errorf("failed to parse ended_at: %w", err)
		}
		endedAt = &ended
	}

	return &storage.PauseSession{
		ID:        data["id"],
		UserID:    data["user_id"],
		TeamID:    data["team_id"],
		Category:  storage.Category(data["category"]),
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Active:    data["active"] == "1",
	}, nil
}

// parseDailyUsage converts a Redis hash to DailyUsage
func parseDailyUsage(data map[string]string) (*storage.DailyUsage, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	totalSeconds, err := strconv.ParseInt(data["total_seconds"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total_seconds: %w", err)
	}

	return &storage.DailyUsage{
		Date:         data["date"],
		UserID:       data["user_id"],
		Category:     storage.Category(data["category"]),
		TotalSeconds: totalSeconds,
	}, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
