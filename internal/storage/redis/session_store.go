package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/redis/go-redis/v9"
)

type sessionStore struct {
	client *redis.Client
}

func sessionKey(id string) string {
	return fmt.Sprintf("breakdesk:pause:%s", id)
}

func activeUserKey(userID string) string {
	return fmt.Sprintf("breakdesk:pause:active:user:%s", userID)
}

func activeTeamKey(teamID string) string {
	return fmt.Sprintf("breakdesk:pause:active:team:%s", teamID)
}

func (s *sessionStore) Get(ctx context.Context, id string) (*storage.PauseSession, error) {
	data, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	return parsePauseSession(data)
}

// Create writes the session and both active indexes in one Lua script.
func (s *sessionStore) Create(ctx context.Context, session storage.PauseSession) error {
	script := redis.NewScript(createPauseSessionScript)

	keys := []string{
		sessionKey(session.ID),
		activeUserKey(session.UserID),
		activeTeamKey(session.TeamID),
	}
	args := []interface{}{
		session.ID,
		session.UserID,
		session.TeamID,
		string(session.Category),
		session.StartedAt.Format(time.RFC3339Nano),
	}

	return script.Run(ctx, s.client, keys, args...).Err()
}

// Close flips the session to ended and clears the indexes atomically.
func (s *sessionStore) Close(ctx context.Context, id string, endedAt time.Time) (*storage.PauseSession, error) {
	data, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	script := redis.NewScript(closePauseSessionScript)
	keys := []string{
		sessionKey(id),
		activeUserKey(data["user_id"]),
		activeTeamKey(data["team_id"]),
	}
	args := []interface{}{id, endedAt.Format(time.RFC3339Nano)}

	closed, err := script.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return nil, err
	}
	if closed == 0 {
		return nil, storage.ErrNotFound
	}

	return s.Get(ctx, id)
}

func (s *sessionStore) GetActiveByUser(ctx context.Context, userID string) (*storage.PauseSession, error) {
	id, err := s.client.Get(ctx, activeUserKey(userID)).Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *sessionStore) ListActiveByTeam(ctx context.Context, teamID string) ([]storage.PauseSession, error) {
	ids, err := s.client.SMembers(ctx, activeTeamKey(teamID)).Result()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []storage.PauseSession{}, nil
	}

	// Use pipeline for efficient batch retrieval
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	sessions := make([]storage.PauseSession, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		session, err := parsePauseSession(data)
		if err == nil {
			sessions = append(sessions, *session)
		}
	}

	return sessions, nil
}

func (s *sessionStore) CountActiveByTeam(ctx context.Context, teamID string) (int, error) {
	count, err := s.client.SCard(ctx, activeTeamKey(teamID)).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// DeleteClosedBefore scans for closed sessions older than the cutoff. With the
// 90-day TTL on closed sessions this is a safety net rather than the primary
// cleanup path.
func (s *sessionStore) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var cursor uint64
	deleted := 0

	for {
		var keys []string
		var err error
		keys, cursor, err = s.client.Scan(ctx, cursor, "breakdesk:pause:*", 100).Result()
		if err != nil {
			return deleted, err
		}

		// The scan pattern also matches the active index keys; skip them.
		sessionKeys := keys[:0]
		for _, key := range keys {
			if !strings.HasPrefix(key, "breakdesk:pause:active:") {
				sessionKeys = append(sessionKeys, key)
			}
		}
		keys = sessionKeys

		if len(keys) > 0 {
			pipe := s.client.Pipeline()
			cmds := make([]*redis.MapStringStringCmd, len(keys))
			for i, key := range keys {
				cmds[i] = pipe.HGetAll(ctx, key)
			}
			if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
				return deleted, err
			}

			toDelete := make([]string, 0)
			for i, cmd := range cmds {
				data, err := cmd.Result()
				if err != nil || len(data) == 0 {
					continue
				}
				if data["active"] == "1" {
					continue
				}
				startedAt, err := time.Parse(time.RFC3339Nano, data["started_at"])
				if err != nil {
					continue
				}
				if startedAt.Before(cutoff) {
					toDelete = append(toDelete, keys[i])
				}
			}

			if len(toDelete) > 0 {
				n, err := s.client.Del(ctx, toDelete...).Result()
				if err != nil {
					return deleted, err
				}
				deleted += int(n)
			}
		}

		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}
