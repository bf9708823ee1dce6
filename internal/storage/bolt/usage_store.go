package bolt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/breakdesk/breakdesk/internal/storage"
	"go.etcd.io/bbolt"
)

type usageStore struct {
	db *bbolt.DB
}

// IncrementDaily adds seconds to the (date, user, category) bucket inside a
// single write transaction and returns the new total.
func (s *usageStore) IncrementDaily(ctx context.Context, date string, userID string, category storage.Category, seconds int64) (int64, error) {
	key := dailyUsageKey(date, userID, category)
	var total int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDailyUsage))
		if b == nil {
			return fmt.Errorf("daily usage bucket missing")
		}
		var usage storage.DailyUsage
		if existing := b.Get([]byte(key)); existing != nil {
			if err := unmarshal(existing, &usage); err != nil {
				return err
			}
		} else {
			usage = storage.DailyUsage{
				Date:     date,
				UserID:   userID,
				Category: category,
			}
		}
		usage.TotalSeconds += seconds
		total = usage.TotalSeconds
		data, err := marshal(usage)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *usageStore) GetDaily(ctx context.Context, date string, userID string, category storage.Category) (*storage.DailyUsage, error) {
	key := dailyUsageKey(date, userID, category)
	return getBucketValue[storage.DailyUsage](ctx, s.db, bucketDailyUsage, key)
}

func (s *usageStore) ForDate(ctx context.Context, date string, userID string) ([]storage.DailyUsage, error) {
	prefix := []byte(date + "/" + userID + "/")
	usages := make([]storage.DailyUsage, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDailyUsage))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var usage storage.DailyUsage
			if err := unmarshal(v, &usage); err != nil {
				return err
			}
			usages = append(usages, usage)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return usages, nil
}

func (s *usageStore) DeleteBefore(ctx context.Context, cutoffDate string) (int, error) {
	cutoff, err := time.Parse("2006-01-02", cutoffDate)
	if err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}
	deleted := 0
	err = s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketDailyUsage))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var usage storage.DailyUsage
			if err := unmarshal(v, &usage); err != nil {
				return err
			}
			dateValue, err := time.Parse("2006-01-02", usage.Date)
			if err != nil {
				continue
			}
			if dateValue.Before(cutoff) {
				if err := c.Delete(); err != nil {
					return err
				}
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
