package redis

import (
	"context"
	"fmt"

	"github.com/breakdesk/breakdesk/internal/storage"
	"github.com/redis/go-redis/v9"
)

type usageStore struct {
	client *redis.Client
}

func usageKey(date, userID string, category storage.Category) string {
	return fmt.Sprintf("breakdesk:usage:%s:%s:%s", date, userID, category)
}

func usageIndexKey(date, userID string) string {
	return fmt.Sprintf("breakdesk:usage:index:%s:%s", date, userID)
}

// IncrementDaily atomically increments (or creates) a daily usage bucket and
// returns the new total.
func (s *usageStore) IncrementDaily(ctx context.Context, date string, userID string, category storage.Category, seconds int64) (int64, error) {
	script := redis.NewScript(incrementDailyUsageScript)

	keys := []string{usageKey(date, userID, category), usageIndexKey(date, userID)}
	args := []interface{}{date, userID, string(category), seconds}

	total, err := script.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *usageStore) GetDaily(ctx context.Context, date string, userID string, category storage.Category) (*storage.DailyUsage, error) {
	data, err := s.client.HGetAll(ctx, usageKey(date, userID, category)).Result()
	if err != nil {
		return nil, err
	}
	return parseDailyUsage(data)
}

func (s *usageStore) ForDate(ctx context.Context, date string, userID string) ([]storage.DailyUsage, error) {
	categories, err := s.client.SMembers(ctx, usageIndexKey(date, userID)).Result()
	if err != nil {
		return nil, err
	}

	if len(categories) == 0 {
		return []storage.DailyUsage{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(categories))
	for i, category := range categories {
		cmds[i] = pipe.HGetAll(ctx, usageKey(date, userID, storage.Category(category)))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	usages := make([]storage.DailyUsage, 0, len(categories))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		usage, err := parseDailyUsage(data)
		if err == nil {
			usages = append(usages, *usage)
		}
	}

	return usages, nil
}

// DeleteBefore is effectively a no-op: daily usage keys carry a 90-day TTL,
// so expiration handles cleanup. Kept for interface compatibility.
func (s *usageStore) DeleteBefore(ctx context.Context, cutoffDate string) (int, error) {
	return 0, nil
}
