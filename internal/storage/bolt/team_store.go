package bolt

import (
	"context"

	"github.com/breakdesk/breakdesk/internal/storage"
	"go.etcd.io/bbolt"
)

type teamStore struct {
	db *bbolt.DB
}

func (s *teamStore) Get(ctx context.Context, id string) (*storage.Team, error) {
	return getBucketValue[storage.Team](ctx, s.db, bucketTeams, id)
}

func (s *teamStore) List(ctx context.Context) ([]storage.Team, error) {
	return listBucket[storage.Team](ctx, s.db, bucketTeams)
}

func (s *teamStore) Upsert(ctx context.Context, team storage.Team) error {
	return putBucketValue(ctx, s.db, bucketTeams, team.ID, team)
}

func (s *teamStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketTeams))
		if b == nil {
			return storage.ErrNotFound
		}
		if b.Get([]byte(id)) == nil {
			return storage.ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}
