package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/redis/go-redis/v9"
)

const emailKeyPrefix = "breakdesk:user:email:"

type userStore struct {
	client *redis.Client
}

func userKey(id string) string {
	return fmt.Sprintf("breakdesk:user:%s", id)
}

func emailKey(email string) string {
	return emailKeyPrefix + strings.ToLower(strings.TrimSpace(email))
}

func (s *userStore) Get(ctx context.Context, id string) (*storage.User, error) {
	data, err := s.client.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return nil, err
	}
	return parseUser(data)
}

func (s *userStore) GetByEmail(ctx context.Context, email string) (*storage.User, error) {
	id, err := s.client.Get(ctx, emailKey(email)).Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *userStore) List(ctx context.Context) ([]storage.User, error) {
	ids, err := s.client.SMembers(ctx, "breakdesk:users").Result()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []storage.User{}, nil
	}

	// Use pipeline for efficient batch retrieval
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, userKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	users := make([]storage.User, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		user, err := parseUser(data)
		if err == nil {
			users = append(users, *user)
		}
	}

	return users, nil
}

func (s *userStore) Upsert(ctx context.Context, user storage.User) error {
	script := redis.NewScript(upsertUserScript)

	email := strings.ToLower(strings.TrimSpace(user.Email))
	keys := []string{userKey(user.ID), emailKey(email), "breakdesk:users", emailKeyPrefix}
	args := []interface{}{
		user.ID,
		email,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		boolField(user.IsAdmin),
		user.TeamID,
		boolField(user.BreakLimitExceeded),
		user.CreatedAt.Format(time.RFC3339Nano),
	}

	return script.Run(ctx, s.client, keys, args...).Err()
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	data, err := s.client.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return storage.ErrNotFound
	}

	if email, ok := data["email"]; ok && email != "" {
		if err := s.client.Del(ctx, emailKey(email)).Err(); err != nil {
			return err
		}
	}
	if err := s.client.SRem(ctx, "breakdesk:users", id).Err(); err != nil {
		return err
	}
	return s.client.Del(ctx, userKey(id)).Err()
}

func (s *userStore) SetTeam(ctx context.Context, id string, teamID string) error {
	if err := s.ensureExists(ctx, id); err != nil {
		return err
	}
	return s.client.HSet(ctx, userKey(id), "team_id", teamID).Err()
}

func (s *userStore) SetBreakLimitExceeded(ctx context.Context, id string, exceeded bool) error {
	if err := s.ensureExists(ctx, id); err != nil {
		return err
	}
	return s.client.HSet(ctx, userKey(id), "break_limit_exceeded", boolField(exceeded)).Err()
}

func (s *userStore) ensureExists(ctx context.Context, id string) error {
	exists, err := s.client.Exists(ctx, userKey(id)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return storage.ErrNotFound
	}
	return nil
}
