package remote

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MSU-Students/q-attendance/internal/query"
	"github.com/MSU-Students/q-attendance/internal/record"
)

// MemoryStore is an embedded, in-memory implementation of Store. It backs
// tests and offline development runs. Filtering is evaluated here by
// normalizing values to their JSON form and comparing the normalized
// representations, a deliberately separate mechanism from the cache's
// evaluator so the two query paths can be checked against each other.
type MemoryStore struct {
	mu         sync.RWMutex
	containers map[string]map[string]record.Record
	subs       map[int]*memorySub
	nextSub    int
}

type memorySub struct {
	mu        sync.Mutex
	container string
	q         query.Query
	fn        func([]record.Record)
	active    bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		containers: make(map[string]map[string]record.Record),
		subs:       make(map[int]*memorySub),
	}
}

func containerName(collection, path string) string {
	return path + "/" + collection
}

func (s *MemoryStore) container(collection, path string) map[string]record.Record {
	name := containerName(collection, path)
	c, ok := s.containers[name]
	if !ok {
		c = make(map[string]record.Record)
		s.containers[name] = c
	}
	return c
}

func (s *MemoryStore) Create(ctx context.Context, collection string, rec record.Record, path string) (record.Record, error) {
	rec = rec.Clone()
	if rec.Key() == "" {
		rec.SetKey(uuid.NewString())
	}

	s.mu.Lock()
	s.container(collection, path)[rec.Key()] = rec.Clone()
	deliveries := s.pendingDeliveries(collection, path)
	s.mu.Unlock()

	s.deliver(deliveries)
	return rec, nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, key, path string) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.containers[containerName(collection, path)][key]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, key string, fields record.Record, path string) error {
	s.mu.Lock()
	c := s.container(collection, path)
	existing, ok := c[key]
	if !ok {
		// Merge-set semantics: an update against an absent document
		// creates it from the given fields.
		existing = record.Record{record.KeyField: key}
	}
	c[key] = existing.Merge(fields)
	deliveries := s.pendingDeliveries(collection, path)
	s.mu.Unlock()

	s.deliver(deliveries)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, key, path string) error {
	s.mu.Lock()
	delete(s.container(collection, path), key)
	deliveries := s.pendingDeliveries(collection, path)
	s.mu.Unlock()

	s.deliver(deliveries)
	return nil
}

func (s *MemoryStore) Find(ctx context.Context, collection, path string, q query.Query) ([]record.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(collection, path, q), nil
}

func (s *MemoryStore) Count(ctx context.Context, collection, path string, q query.Query) (int64, error) {
	records, err := s.Find(ctx, collection, path, q)
	if err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

func (s *MemoryStore) Stream(ctx context.Context, collection string, opts StreamOptions) (UnsubscribeFunc, error) {
	if err := opts.Condition.Validate(); err != nil {
		return nil, err
	}

	sub := &memorySub{
		container: containerName(collection, opts.Path),
		q:         opts.Condition,
		fn:        opts.OnSnapshot,
		active:    true,
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	initial := s.findLocked(collection, opts.Path, opts.Condition)
	s.mu.Unlock()

	// Initial snapshot, then one delivery per mutation.
	s.deliver([]delivery{{sub: sub, records: initial}})

	unsubscribe := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		sub.mu.Lock()
		sub.active = false
		sub.mu.Unlock()
	}
	return unsubscribe, nil
}

func (s *MemoryStore) findLocked(collection, path string, q query.Query) []record.Record {
	records := make([]record.Record, 0)
	for _, rec := range s.containers[containerName(collection, path)] {
		if memMatch(rec, q) {
			records = append(records, rec.Clone())
		}
	}
	return records
}

type delivery struct {
	sub     *memorySub
	records []record.Record
}

// pendingDeliveries collects the current matching set for every subscriber
// of the mutated container. Must be called with s.mu held.
func (s *MemoryStore) pendingDeliveries(collection, path string) []delivery {
	name := containerName(collection, path)
	var out []delivery
	for _, sub := range s.subs {
		if sub.container != name {
			continue
		}
		var records []record.Record
		for _, rec := range s.containers[name] {
			if memMatch(rec, sub.q) {
				records = append(records, rec.Clone())
			}
		}
		out = append(out, delivery{sub: sub, records: records})
	}
	return out
}

// deliver invokes snapshot callbacks outside the store lock. The per-sub
// mutex keeps each individual stream's snapshots monotonically ordered.
func (s *MemoryStore) deliver(deliveries []delivery) {
	for _, d := range deliveries {
		d.sub.mu.Lock()
		if d.sub.active {
			d.sub.fn(d.records)
		}
		d.sub.mu.Unlock()
	}
}

// memMatch evaluates the grammar over JSON-normalized values.
func memMatch(rec record.Record, q query.Query) bool {
	if len(q) == 0 {
		return true
	}
	for _, cond := range q {
		if memMatchCond(rec, cond) {
			return true
		}
	}
	return false
}

func memMatchCond(rec record.Record, cond query.Condition) bool {
	for field, operand := range cond {
		for op, want := range operand {
			if !memEval(rec[field], op, want) {
				return false
			}
		}
	}
	return true
}

func memEval(value any, op query.Op, want any) bool {
	v := memNorm(value)
	w := memNorm(want)
	switch op {
	case query.OpEqual:
		return memEqual(v, w)
	case query.OpNotEqual:
		return !memEqual(v, w)
	case query.OpIn:
		items, ok := w.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if memEqual(v, item) {
				return true
			}
		}
		return false
	case query.OpGreater, query.OpGreaterOrEqual, query.OpLess, query.OpLessOrEqual:
		cmp, ok := memCompare(v, w)
		if !ok {
			return false
		}
		switch op {
		case query.OpGreater:
			return cmp > 0
		case query.OpGreaterOrEqual:
			return cmp >= 0
		case query.OpLess:
			return cmp < 0
		default:
			return cmp <= 0
		}
	default:
		return false
	}
}

// memNorm reduces a value to its JSON form: float64, string, bool, nil,
// []any or map[string]any. Times become RFC 3339 strings, which order
// correctly under plain string comparison.
func memNorm(v any) any {
	switch t := v.(type) {
	case nil, bool, float64, string:
		return v
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return v
		}
		return out
	}
}

func memEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := a.(float64); ok {
		bf, ok := b.(float64)
		return ok && af == bf
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		return ok && as == bs
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	da, _ := json.Marshal(a)
	db, _ := json.Marshal(b)
	return string(da) == string(db)
}

func memCompare(a, b any) (int, bool) {
	if af, ok := a.(float64); ok {
		bf, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}
