package bolt

import (
	"context"
	"time"

	"github.com/breakdesk/breakdesk/internal/storage"
	"go.etcd.io/bbolt"
)

type sessionStore struct {
	db *bbolt.DB
}

func (s *sessionStore) Get(ctx context.Context, id string) (*storage.PauseSession, error) {
	return getBucketValue[storage.PauseSession](ctx, s.db, bucketSessions, id)
}

// Create writes the session record and both active indexes in one transaction.
func (s *sessionStore) Create(ctx context.Context, session storage.PauseSession) error {
	data, err := marshal(session)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketSessions))
		if b == nil {
			return storage.ErrNotFound
		}
		if err := b.Put([]byte(session.ID), data); err != nil {
			return err
		}

		byUser, err := indexBucket(tx, indexActiveByUser)
		if err != nil {
			return err
		}
		if err := byUser.Put([]byte(session.UserID), []byte(session.ID)); err != nil {
			return err
		}

		byTeam, err := indexBucket(tx, indexActiveByTeam, session.TeamID)
		if err != nil {
			return err
		}
		return byTeam.Put([]byte(session.ID), []byte(session.UserID))
	})
}

// Close marks the session ended and clears the active indexes atomically.
func (s *sessionStore) Close(ctx context.Context, id string, endedAt time.Time) (*storage.PauseSession, error) {
	var closed *storage.PauseSession
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketSessions))
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get([]byte(id))
		if value == nil {
			return storage.ErrNotFound
		}

		var session storage.PauseSession
		if err := unmarshal(value, &session); err != nil {
			return err
		}
		if !session.Active {
			return storage.ErrNotFound
		}

		ended := endedAt
		session.EndedAt = &ended
		session.Active = false

		data, err := marshal(session)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(id), data); err != nil {
			return err
		}

		byUser, err := indexBucket(tx, indexActiveByUser)
		if err != nil {
			return err
		}
		if err := byUser.Delete([]byte(session.UserID)); err != nil {
			return err
		}

		byTeam, err := indexBucket(tx, indexActiveByTeam, session.TeamID)
		if err != nil {
			return err
		}
		if err := byTeam.Delete([]byte(session.ID)); err != nil {
			return err
		}

		closed = &session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

func (s *sessionStore) GetActiveByUser(ctx context.Context, userID string) (*storage.PauseSession, error) {
	var id string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		byUser := readIndexBucket(tx, indexActiveByUser)
		if byUser == nil {
			return storage.ErrNotFound
		}
		value := byUser.Get([]byte(userID))
		if value == nil {
			return storage.ErrNotFound
		}
		id = string(value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *sessionStore) ListActiveByTeam(ctx context.Context, teamID string) ([]storage.PauseSession, error) {
	sessions := make([]storage.PauseSession, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A team that never hosted a pause has no index sub-bucket yet.
		byTeam := readIndexBucket(tx, indexActiveByTeam, teamID)
		if byTeam == nil {
			return nil
		}
		b := tx.Bucket([]byte(bucketSessions))
		if b == nil {
			return nil
		}
		return byTeam.ForEach(func(k, _ []byte) error {
			value := b.Get(k)
			if value == nil {
				return nil
			}
			var session storage.PauseSession
			if err := unmarshal(value, &session); err != nil {
				return err
			}
			sessions = append(sessions, session)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *sessionStore) CountActiveByTeam(ctx context.Context, teamID string) (int, error) {
	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		byTeam := readIndexBucket(tx, indexActiveByTeam, teamID)
		if byTeam == nil {
			return nil
		}
		return byTeam.ForEach(func(_, _ []byte) error {
			count++
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *sessionStore) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketSessions))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var session storage.PauseSession
			if err := unmarshal(v, &session); err != nil {
				return err
			}
			if session.Active {
				continue
			}
			if session.StartedAt.Before(cutoff) {
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
