package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/redis/go-redis/v9"
)

type teamStore struct {
	client *redis.Client
}

func teamKey(id string) string {
	return fmt.Sprintf("breakdesk:team:%s", id)
}

func (s *teamStore) Get(ctx context.Context, id string) (*storage.Team, error) {
	data, err := s.client.HGetAll(ctx, teamKey(id)).Result()
	if err != nil {
		return nil, err
	}
	return parseTeam(data)
}

func (s *teamStore) List(ctx context.Context) ([]storage.Team, error) {
	ids, err := s.client.SMembers(ctx, "breakdesk:teams").Result()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []storage.Team{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, teamKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	teams := make([]storage.Team, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		team, err := parseTeam(data)
		if err == nil {
			teams = append(teams, *team)
		}
	}

	return teams, nil
}

func (s *teamStore) Upsert(ctx context.Context, team storage.Team) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, teamKey(team.ID),
		"id", team.ID,
		"name", team.Name,
		"max_concurrent_pauses", team.MaxConcurrentPauses,
		"created_at", team.CreatedAt.Format(time.RFC3339Nano),
	)
	pipe.SAdd(ctx, "breakdesk:teams", team.ID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *teamStore) Delete(ctx context.Context, id string) error {
	exists, err := s.client.Exists(ctx, teamKey(id)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return storage.ErrNotFound
	}

	if err := s.client.SRem(ctx, "breakdesk:teams", id).Err(); err != nil {
		return err
	}
	return s.client.Del(ctx, teamKey(id)).Err()
}
