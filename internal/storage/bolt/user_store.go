package bolt

import (
	"context"
	"strings"
	"time"

	"github.com/breakdesk/breakdesk/internal/storage"
	"go.etcd.io/bbolt"
)

type userStore struct {
	db *bbolt.DB
}

// userRecord is the persisted shape of a user. storage.User hides the
// password hash from API encoding, so the record spells every field out
// explicitly instead of reusing the API type.
type userRecord struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	FirstName          string    `json:"first_name"`
	LastName           string    `json:"last_name"`
	PasswordHash       string    `json:"password_hash"`
	IsAdmin            bool      `json:"is_admin"`
	TeamID             string    `json:"team_id,omitempty"`
	BreakLimitExceeded bool      `json:"break_limit_exceeded"`
	CreatedAt          time.Time `json:"created_at"`
}

func encodeUser(user storage.User) ([]byte, error) {
	return marshal(userRecord{
		ID:                 user.ID,
		Email:              user.Email,
		FirstName:          user.FirstName,
		LastName:           user.LastName,
		PasswordHash:       user.PasswordHash,
		IsAdmin:            user.IsAdmin,
		TeamID:             user.TeamID,
		BreakLimitExceeded: user.BreakLimitExceeded,
		CreatedAt:          user.CreatedAt,
	})
}

func decodeUser(data []byte) (storage.User, error) {
	var rec userRecord
	if err := unmarshal(data, &rec); err != nil {
		return storage.User{}, err
	}
	return storage.User{
		ID:                 rec.ID,
		Email:              rec.Email,
		FirstName:          rec.FirstName,
		LastName:           rec.LastName,
		PasswordHash:       rec.PasswordHash,
		IsAdmin:            rec.IsAdmin,
		TeamID:             rec.TeamID,
		BreakLimitExceeded: rec.BreakLimitExceeded,
		CreatedAt:          rec.CreatedAt,
	}, nil
}

func (s *userStore) Get(ctx context.Context, id string) (*storage.User, error) {
	var user *storage.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketUsers))
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get([]byte(id))
		if value == nil {
			return storage.ErrNotFound
		}
		decoded, err := decodeUser(value)
		if err != nil {
			return err
		}
		user = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *userStore) GetByEmail(ctx context.Context, email string) (*storage.User, error) {
	var id string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		idx := readIndexBucket(tx, indexUserEmail)
		if idx == nil {
			return storage.ErrNotFound
		}
		value := idx.Get([]byte(normalizeEmail(email)))
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

func (s *userStore) List(ctx context.Context) ([]storage.User, error) {
	users := make([]storage.User, 0)
	return users, s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketUsers))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			user, err := decodeUser(v)
			if err != nil {
				return err
			}
			users = append(users, user)
			return nil
		})
	})
}

func (s *userStore) Upsert(ctx context.Context, user storage.User) error {
	data, err := encodeUser(user)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketUsers))
		if b == nil {
			return storage.ErrNotFound
		}

		// Keep the email index in step with the record.
		idx, err := indexBucket(tx, indexUserEmail)
		if err != nil {
			return err
		}
		if existing := b.Get([]byte(user.ID)); existing != nil {
			prev, err := decodeUser(existing)
			if err != nil {
				return err
			}
			if normalizeEmail(prev.Email) != normalizeEmail(user.Email) {
				if err := idx.Delete([]byte(normalizeEmail(prev.Email))); err != nil {
					return err
				}
			}
		}
		if err := idx.Put([]byte(normalizeEmail(user.Email)), []byte(user.ID)); err != nil {
			return err
		}

		return b.Put([]byte(user.ID), data)
	})
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketUsers))
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get([]byte(id))
		if value == nil {
			return storage.ErrNotFound
		}

		user, err := decodeUser(value)
		if err != nil {
			return err
		}
		idx, err := indexBucket(tx, indexUserEmail)
		if err != nil {
			return err
		}
		if err := idx.Delete([]byte(normalizeEmail(user.Email))); err != nil {
			return err
		}

		return b.Delete([]byte(id))
	})
}

func (s *userStore) SetTeam(ctx context.Context, id string, teamID string) error {
	return s.mutate(ctx, id, func(user *storage.User) {
		user.TeamID = teamID
	})
}

func (s *userStore) SetBreakLimitExceeded(ctx context.Context, id string, exceeded bool) error {
	return s.mutate(ctx, id, func(user *storage.User) {
		user.BreakLimitExceeded = exceeded
	})
}

func (s *userStore) mutate(ctx context.Context, id string, apply func(*storage.User)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketUsers))
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get([]byte(id))
		if value == nil {
			return storage.ErrNotFound
		}
		user, err := decodeUser(value)
		if err != nil {
			return err
		}
		apply(&user)
		data, err := encodeUser(user)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
