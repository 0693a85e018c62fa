package persistent

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/MSU-Students/q-attendance/internal/cache"
)

const (
	replayAttempts = 3
	replayBackoff  = 500 * time.Millisecond

	metaLastReplay = "last_replay"
)

func defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(replayAttempts, retry.NewExponential(replayBackoff))
}

// replay pushes queued offline mutations to the remote store, one
// collection at a time, creates before updates before deletes. Each row
// is settled independently so one stubborn failure never blocks the
// rest; rows that still fail keep their pending marks for the next
// transition.
func (s *Store) replay(ctx context.Context) {
	for _, col := range s.cache.Collections() {
		s.replayCreates(ctx, col.Name)
		s.replayUpdates(ctx, col.Name)
		s.replayDeletes(ctx, col.Name)
	}
	if err := s.cache.SetMeta(ctx, metaLastReplay, s.now().UTC().Format(time.RFC3339)); err != nil {
		s.log.Error(ctx, "failed to record replay time", "error", err)
	}
}

func (s *Store) replayCreates(ctx context.Context, collection string) {
	envs, err := s.cache.PendingCreates(ctx, collection)
	if err != nil {
		s.log.Error(ctx, "failed to list pending creates", "collection", collection, "error", err)
		return
	}
	for _, env := range envs {
		err := s.withRetry(ctx, func(ctx context.Context) error {
			_, err := s.remote.Create(ctx, collection, env.Record, env.Path)
			return err
		})
		if err != nil {
			s.log.Warn(ctx, "create replay failed, leaving pending", "collection", collection, "key", env.Key, "error", err)
			continue
		}
		env.CreatedOnline = cache.ConfirmedAt(s.now())
		if env.UpdatedOnline.Pending {
			// The replayed create carried the latest fields already.
			env.UpdatedOnline = cache.ConfirmedAt(s.now())
		}
		if err := s.cache.Put(ctx, collection, env); err != nil {
			s.log.Error(ctx, "failed to confirm replayed create", "collection", collection, "key", env.Key, "error", err)
		}
	}
}

func (s *Store) replayUpdates(ctx context.Context, collection string) {
	envs, err := s.cache.PendingUpdates(ctx, collection)
	if err != nil {
		s.log.Error(ctx, "failed to list pending updates", "collection", collection, "error", err)
		return
	}
	for _, env := range envs {
		err := s.withRetry(ctx, func(ctx context.Context) error {
			return s.remote.Update(ctx, collection, env.Key, env.Record, env.Path)
		})
		if err != nil {
			s.log.Warn(ctx, "update replay failed, leaving pending", "collection", collection, "key", env.Key, "error", err)
			continue
		}
		env.UpdatedOnline = cache.ConfirmedAt(s.now())
		if err := s.cache.Put(ctx, collection, env); err != nil {
			s.log.Error(ctx, "failed to confirm replayed update", "collection", collection, "key", env.Key, "error", err)
		}
	}
}

func (s *Store) replayDeletes(ctx context.Context, collection string) {
	envs, err := s.cache.Tombstones(ctx, collection)
	if err != nil {
		s.log.Error(ctx, "failed to list tombstones", "collection", collection, "error", err)
		return
	}
	for _, env := range envs {
		err := s.withRetry(ctx, func(ctx context.Context) error {
			return s.remote.Delete(ctx, collection, env.Key, env.Path)
		})
		if err != nil {
			s.log.Warn(ctx, "delete replay failed, leaving tombstone", "collection", collection, "key", env.Key, "error", err)
			continue
		}
		if err := s.cache.Delete(ctx, collection, env.Path, env.Key); err != nil {
			s.log.Error(ctx, "failed to drop replayed tombstone", "collection", collection, "key", env.Key, "error", err)
		}
	}
}

func (s *Store) withRetry(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, s.newBackoff(), func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
