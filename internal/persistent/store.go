package persistent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/MSU-Students/q-attendance/internal/cache"
	"github.com/MSU-Students/q-attendance/internal/common"
	"github.com/MSU-Students/q-attendance/internal/logging"
	"github.com/MSU-Students/q-attendance/internal/query"
	"github.com/MSU-Students/q-attendance/internal/record"
	"github.com/MSU-Students/q-attendance/internal/remote"
)

// Store is the sync engine arbitrating between the remote store and the
// local cache. One instance owns the connectivity flag for its session.
type Store struct {
	remote remote.Store
	cache  *cache.Store
	log    logging.Logger

	now        func() time.Time
	newBackoff func() retry.Backoff

	mu     sync.Mutex
	online bool
}

// New builds a sync engine over the given remote adapter and cache.
// The engine starts offline until the connectivity signal reports otherwise.
func New(remoteStore remote.Store, cacheStore *cache.Store, log logging.Logger) *Store {
	return &Store{
		remote:     remoteStore,
		cache:      cacheStore,
		log:        log,
		now:        time.Now,
		newBackoff: defaultBackoff,
	}
}

// Online reports the current connectivity state.
func (s *Store) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// UpdateOnlineState records a connectivity transition. Flipping online
// replays all queued offline mutations before returning.
func (s *Store) UpdateOnlineState(ctx context.Context, online bool) {
	s.mu.Lock()
	s.online = online
	s.mu.Unlock()

	if online {
		s.replay(ctx)
	}
}

// isUsageError separates programmer errors, which propagate to the caller,
// from storage failures, which this layer absorbs.
func isUsageError(err error) bool {
	return errors.Is(err, common.ErrUnknownCollection) ||
		errors.Is(err, common.ErrInvalidQuery) ||
		errors.Is(err, common.ErrInvalidPath)
}

// CreateRecord stores a new record. Online it writes through to the remote
// store before mirroring locally with confirmed provenance; offline (or
// when the remote write fails) the record is cached with a pending mark
// for later replay. A record without a key gets one assigned.
func (s *Store) CreateRecord(ctx context.Context, collection string, rec record.Record, path string) (record.Record, error) {
	rec = rec.Clone()

	if s.Online() {
		stored, err := s.remote.Create(ctx, collection, rec, path)
		if err == nil {
			env := &cache.Envelope{
				Path:          path,
				Key:           stored.Key(),
				Record:        stored,
				CreatedOnline: cache.ConfirmedAt(s.now()),
			}
			if err := s.cache.Put(ctx, collection, env); err != nil {
				if isUsageError(err) {
					return nil, err
				}
				s.log.Error(ctx, "failed to mirror created record", "collection", collection, "key", stored.Key(), "error", err)
			}
			return stored, nil
		}
		if isUsageError(err) {
			return nil, err
		}
		s.log.Warn(ctx, "online create failed, queueing for replay", "collection", collection, "key", rec.Key(), "error", err)
	}

	return s.createPending(ctx, collection, rec, path)
}

func (s *Store) createPending(ctx context.Context, collection string, rec record.Record, path string) (record.Record, error) {
	if rec.Key() == "" {
		rec.SetKey(uuid.NewString())
	}
	env := &cache.Envelope{
		Path:          path,
		Key:           rec.Key(),
		Record:        rec,
		CreatedOnline: cache.PendingMark,
	}
	if err := s.cache.Put(ctx, collection, env); err != nil {
		if isUsageError(err) {
			return nil, err
		}
		s.log.Error(ctx, "failed to cache pending create", "collection", collection, "key", rec.Key(), "error", err)
		return nil, nil
	}
	return rec, nil
}

// GetRecord fetches one record by composite identity. Online it reads the
// remote store and merges the result into the cache, preserving confirmed
// creation provenance; offline it serves the cached envelope directly,
// hiding tombstones.
func (s *Store) GetRecord(ctx context.Context, collection, key, path string) (record.Record, error) {
	if s.Online() {
		rec, err := s.remote.Get(ctx, collection, key, path)
		if err != nil {
			if isUsageError(err) {
				return nil, err
			}
			s.log.Warn(ctx, "online get failed, serving cached", "collection", collection, "key", key, "error", err)
			return s.getCached(ctx, collection, key, path)
		}
		if rec == nil {
			return nil, nil
		}
		return s.mergeRemoteRead(ctx, collection, key, path, rec), nil
	}
	return s.getCached(ctx, collection, key, path)
}

func (s *Store) getCached(ctx context.Context, collection, key, path string) (record.Record, error) {
	env, err := s.cache.Get(ctx, collection, path, key)
	if err != nil {
		if isUsageError(err) {
			return nil, err
		}
		s.log.Error(ctx, "failed to read cache", "collection", collection, "key", key, "error", err)
		return nil, nil
	}
	if env == nil || env.Tombstoned() {
		return nil, nil
	}
	return env.Record, nil
}

// mergeRemoteRead folds a remote record into the cache non-destructively
// and returns the merged view.
func (s *Store) mergeRemoteRead(ctx context.Context, collection, key, path string, rec record.Record) record.Record {
	old, err := s.cache.Get(ctx, collection, path, key)
	if err != nil {
		s.log.Error(ctx, "failed to read cache during merge", "collection", collection, "key", key, "error", err)
		return rec
	}

	env := &cache.Envelope{Path: path, Key: key, Record: rec}
	if old != nil {
		env.Record = old.Record.Merge(rec)
		env.UpdatedOnline = old.UpdatedOnline
		// A surviving tombstone still queues a remote delete; the merge
		// must not resurrect the row.
		env.DeletedOffline = old.DeletedOffline
		if old.CreatedOnline.Confirmed() {
			env.CreatedOnline = old.CreatedOnline
		} else {
			env.CreatedOnline = cache.ConfirmedAt(s.now())
		}
	} else {
		env.CreatedOnline = cache.ConfirmedAt(s.now())
	}
	if err := s.cache.Put(ctx, collection, env); err != nil {
		s.log.Error(ctx, "failed to mirror fetched record", "collection", collection, "key", key, "error", err)
	}
	return env.Record
}

// UpdateRecord merges the given fields into the record. When the cached
// envelope still awaits its first sync and the system is online, the
// pending create is flushed first so the remote store has a base document
// to merge into.
func (s *Store) UpdateRecord(ctx context.Context, collection, key string, fields record.Record, path string) (bool, error) {
	fields = fields.Clone()

	old, err := s.cache.Get(ctx, collection, path, key)
	if err != nil {
		if isUsageError(err) {
			return false, err
		}
		s.log.Error(ctx, "failed to read cache before update", "collection", collection, "key", key, "error", err)
		old = nil
	}

	if s.Online() {
		if old != nil && old.CreatedOnline.Pending {
			if _, err := s.remote.Create(ctx, collection, old.Record, path); err != nil {
				if isUsageError(err) {
					return false, err
				}
				s.log.Warn(ctx, "flush of pending create failed, queueing update", "collection", collection, "key", key, "error", err)
				return s.updatePending(ctx, collection, key, fields, path, old)
			}
			old.CreatedOnline = cache.ConfirmedAt(s.now())
		}

		if err := s.remote.Update(ctx, collection, key, fields, path); err != nil {
			if isUsageError(err) {
				return false, err
			}
			s.log.Warn(ctx, "online update failed, queueing for replay", "collection", collection, "key", key, "error", err)
			return s.updatePending(ctx, collection, key, fields, path, old)
		}

		env := mergeEnvelope(old, path, key, fields)
		env.UpdatedOnline = cache.ConfirmedAt(s.now())
		if err := s.cache.Put(ctx, collection, env); err != nil {
			if isUsageError(err) {
				return false, err
			}
			s.log.Error(ctx, "failed to mirror updated record", "collection", collection, "key", key, "error", err)
		}
		return true, nil
	}

	return s.updatePending(ctx, collection, key, fields, path, old)
}

func (s *Store) updatePending(ctx context.Context, collection, key string, fields record.Record, path string, old *cache.Envelope) (bool, error) {
	env := mergeEnvelope(old, path, key, fields)
	env.UpdatedOnline = cache.PendingMark
	if err := s.cache.Put(ctx, collection, env); err != nil {
		if isUsageError(err) {
			return false, err
		}
		s.log.Error(ctx, "failed to cache pending update", "collection", collection, "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func mergeEnvelope(old *cache.Envelope, path, key string, fields record.Record) *cache.Envelope {
	if old == nil {
		rec := fields.Clone()
		rec.SetKey(key)
		return &cache.Envelope{Path: path, Key: key, Record: rec}
	}
	old.Record = old.Record.Merge(fields)
	return old
}

// DeleteRecord removes the record. A cached envelope that never reached
// the remote store is retracted locally with nothing issued remotely;
// otherwise an online delete removes both copies and an offline delete
// leaves a tombstone for replay.
func (s *Store) DeleteRecord(ctx context.Context, collection, key, path string) (bool, error) {
	old, err := s.cache.Get(ctx, collection, path, key)
	if err != nil {
		if isUsageError(err) {
			return false, err
		}
		s.log.Error(ctx, "failed to read cache before delete", "collection", collection, "key", key, "error", err)
		old = nil
	}

	if old != nil && old.CreatedOnline.Pending {
		if err := s.cache.Delete(ctx, collection, path, key); err != nil {
			s.log.Error(ctx, "failed to retract pending create", "collection", collection, "key", key, "error", err)
			return false, nil
		}
		return true, nil
	}

	if s.Online() {
		if err := s.remote.Delete(ctx, collection, key, path); err != nil {
			if isUsageError(err) {
				return false, err
			}
			s.log.Warn(ctx, "online delete failed, leaving tombstone", "collection", collection, "key", key, "error", err)
			return s.tombstone(ctx, collection, key, path, old)
		}
		if err := s.cache.Delete(ctx, collection, path, key); err != nil {
			s.log.Error(ctx, "failed to drop mirrored record", "collection", collection, "key", key, "error", err)
		}
		return true, nil
	}

	return s.tombstone(ctx, collection, key, path, old)
}

func (s *Store) tombstone(ctx context.Context, collection, key, path string, old *cache.Envelope) (bool, error) {
	env := old
	if env == nil {
		// Nothing cached locally; keep a stub so the remote delete replays.
		env = &cache.Envelope{Path: path, Key: key, Record: record.Record{record.KeyField: key}}
	}
	env.DeletedOffline = s.now()
	if err := s.cache.Put(ctx, collection, env); err != nil {
		if isUsageError(err) {
			return false, err
		}
		s.log.Error(ctx, "failed to cache tombstone", "collection", collection, "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

// FindRecords returns all records matching the query. Online results
// refresh the cache with add-or-update semantics keyed by composite
// identity; offline the cache's evaluator answers, excluding tombstones.
func (s *Store) FindRecords(ctx context.Context, collection, path string, q query.Query) ([]record.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if s.Online() {
		records, err := s.remote.Find(ctx, collection, path, q)
		if err == nil {
			s.refreshCache(ctx, collection, path, records)
			return records, nil
		}
		if isUsageError(err) {
			return nil, err
		}
		s.log.Warn(ctx, "online find failed, serving cached", "collection", collection, "error", err)
	}

	envs, err := s.cache.Find(ctx, collection, path, q)
	if err != nil {
		if isUsageError(err) {
			return nil, err
		}
		s.log.Error(ctx, "failed to query cache", "collection", collection, "error", err)
		return []record.Record{}, nil
	}
	records := make([]record.Record, 0, len(envs))
	for _, env := range envs {
		records = append(records, env.Record)
	}
	return records, nil
}

func (s *Store) refreshCache(ctx context.Context, collection, path string, records []record.Record) {
	for _, rec := range records {
		if rec.Key() == "" {
			continue
		}
		s.mergeRemoteRead(ctx, collection, rec.Key(), path, rec)
	}
}

// CountRecords counts matching records, server-side when online and over
// live cached rows otherwise.
func (s *Store) CountRecords(ctx context.Context, collection, path string, q query.Query) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}

	if s.Online() {
		n, err := s.remote.Count(ctx, collection, path, q)
		if err == nil {
			return n, nil
		}
		if isUsageError(err) {
			return 0, err
		}
		s.log.Warn(ctx, "online count failed, counting cached", "collection", collection, "error", err)
	}

	envs, err := s.cache.Find(ctx, collection, path, q)
	if err != nil {
		if isUsageError(err) {
			return 0, err
		}
		s.log.Error(ctx, "failed to count cache", "collection", collection, "error", err)
		return 0, nil
	}
	return int64(len(envs)), nil
}

// StreamRecords subscribes to the live matching set. Online it delegates
// to the remote store's snapshots; offline it delivers a single snapshot
// of the cached rows and stays quiet until resubscribed.
func (s *Store) StreamRecords(ctx context.Context, collection string, opts remote.StreamOptions) (remote.UnsubscribeFunc, error) {
	if s.Online() {
		return s.remote.Stream(ctx, collection, opts)
	}

	if err := opts.Condition.Validate(); err != nil {
		return nil, err
	}
	envs, err := s.cache.Find(ctx, collection, opts.Path, opts.Condition)
	if err != nil {
		if isUsageError(err) {
			return nil, err
		}
		s.log.Error(ctx, "failed to snapshot cache", "collection", collection, "error", err)
		envs = nil
	}
	records := make([]record.Record, 0, len(envs))
	for _, env := range envs {
		records = append(records, env.Record)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-done:
		default:
			opts.OnSnapshot(records)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}, nil
}
