package remote

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"cloud.google.com/go/firestore"
	firestorepb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/MSU-Students/q-attendance/internal/common"
	"github.com/MSU-Students/q-attendance/internal/logging"
	"github.com/MSU-Students/q-attendance/internal/query"
	"github.com/MSU-Students/q-attendance/internal/record"
)

const countAlias = "all"

// FirestoreStore implements Store against Cloud Firestore. The condition
// grammar is translated into native property/and/or filters so filtering
// happens server-side.
type FirestoreStore struct {
	client *firestore.Client
	log    logging.Logger
}

// NewFirestoreStore wraps an existing Firestore client.
func NewFirestoreStore(client *firestore.Client, log logging.Logger) *FirestoreStore {
	return &FirestoreStore{client: client, log: log}
}

// splitPath decomposes a "/{parentCollection}/{parentKey}[/…]" scoping path
// into its collection/key pairs.
func splitPath(path string) ([]string, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidPath, path)
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: %q", common.ErrInvalidPath, path)
		}
	}
	return parts, nil
}

// collRef resolves the collection container, descending through the scoping
// path pairs and appending the target collection as the final segment.
func (s *FirestoreStore) collRef(collection, path string) (*firestore.CollectionRef, error) {
	if path == "" {
		return s.client.Collection(collection), nil
	}
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	doc := s.client.Collection(parts[0]).Doc(parts[1])
	for i := 2; i < len(parts); i += 2 {
		doc = doc.Collection(parts[i]).Doc(parts[i+1])
	}
	return doc.Collection(collection), nil
}

// entityFilter translates a query into a Firestore entity filter. A nil
// filter means the query matches everything and no filter should be applied;
// none reports a query no record can satisfy, which must never reach the
// backend (Firestore rejects empty "in" arrays instead of matching nothing).
func entityFilter(q query.Query) (f firestore.EntityFilter, none bool) {
	ors := make([]firestore.EntityFilter, 0, len(q))
	for _, cond := range q {
		fields := make([]string, 0, len(cond))
		for field := range cond {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		var ands []firestore.EntityFilter
		unsatisfiable := false
		for _, field := range fields {
			ops := make([]query.Op, 0, len(cond[field]))
			for op := range cond[field] {
				ops = append(ops, op)
			}
			sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
			for _, op := range ops {
				want := cond[field][op]
				if op == query.OpIn && emptyList(want) {
					unsatisfiable = true
					break
				}
				ands = append(ands, firestore.PropertyFilter{
					Path:     field,
					Operator: string(op),
					Value:    want,
				})
			}
			if unsatisfiable {
				break
			}
		}
		if unsatisfiable {
			// Membership in an empty list holds for no record, so the
			// whole AND branch drops out of the OR.
			continue
		}
		if len(ands) == 0 {
			// An empty condition matches every record, so the whole OR does.
			return nil, false
		}
		ors = append(ors, firestore.AndFilter{Filters: ands})
	}
	switch len(ors) {
	case 0:
		return nil, len(q) > 0
	case 1:
		return ors[0], false
	default:
		return firestore.OrFilter{Filters: ors}, false
	}
}

func emptyList(v any) bool {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	return rv.Len() == 0
}

func applyQuery(col *firestore.CollectionRef, q query.Query) (firestore.Query, bool) {
	fq := col.Query
	f, none := entityFilter(q)
	if none {
		return fq, true
	}
	if f != nil {
		fq = fq.WhereEntity(f)
	}
	return fq, false
}

func (s *FirestoreStore) Create(ctx context.Context, collection string, rec record.Record, path string) (record.Record, error) {
	col, err := s.collRef(collection, path)
	if err != nil {
		return nil, err
	}
	rec = rec.Clone()

	var docRef *firestore.DocumentRef
	if rec.Key() == "" {
		docRef = col.NewDoc()
		rec.SetKey(docRef.ID)
	} else {
		docRef = col.Doc(rec.Key())
	}
	if _, err := docRef.Set(ctx, map[string]any(rec)); err != nil {
		s.log.Error(ctx, "failed to create document", "collection", collection, "key", rec.Key(), "error", err)
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return rec, nil
}

func (s *FirestoreStore) Get(ctx context.Context, collection, key, path string) (record.Record, error) {
	col, err := s.collRef(collection, path)
	if err != nil {
		return nil, err
	}
	snap, err := col.Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		s.log.Error(ctx, "failed to get document", "collection", collection, "key", key, "error", err)
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	rec := record.Record(snap.Data())
	if rec.Key() == "" {
		rec.SetKey(snap.Ref.ID)
	}
	return rec, nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, key string, fields record.Record, path string) error {
	col, err := s.collRef(collection, path)
	if err != nil {
		return err
	}
	if _, err := col.Doc(key).Set(ctx, map[string]any(fields.Clone()), firestore.MergeAll); err != nil {
		s.log.Error(ctx, "failed to update document", "collection", collection, "key", key, "error", err)
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, key, path string) error {
	col, err := s.collRef(collection, path)
	if err != nil {
		return err
	}
	// Firestore deletes are idempotent: deleting an absent document succeeds.
	if _, err := col.Doc(key).Delete(ctx); err != nil {
		s.log.Error(ctx, "failed to delete document", "collection", collection, "key", key, "error", err)
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Find(ctx context.Context, collection, path string, q query.Query) ([]record.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	col, err := s.collRef(collection, path)
	if err != nil {
		return nil, err
	}

	fq, none := applyQuery(col, q)
	if none {
		return []record.Record{}, nil
	}
	iter := fq.Documents(ctx)
	defer iter.Stop()

	records := make([]record.Record, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			s.log.Error(ctx, "failed to iterate documents", "collection", collection, "error", err)
			return nil, fmt.Errorf("failed to iterate documents: %w", err)
		}
		rec := record.Record(snap.Data())
		if rec.Key() == "" {
			rec.SetKey(snap.Ref.ID)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *FirestoreStore) Count(ctx context.Context, collection, path string, q query.Query) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	col, err := s.collRef(collection, path)
	if err != nil {
		return 0, err
	}

	fq, none := applyQuery(col, q)
	if none {
		return 0, nil
	}
	agg := fq.NewAggregationQuery().WithCount(countAlias)
	results, err := agg.Get(ctx)
	if err != nil {
		s.log.Error(ctx, "failed to count documents", "collection", collection, "error", err)
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	value, ok := results[countAlias].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected count aggregation result %T", results[countAlias])
	}
	return value.GetIntegerValue(), nil
}

func (s *FirestoreStore) Stream(ctx context.Context, collection string, opts StreamOptions) (UnsubscribeFunc, error) {
	if err := opts.Condition.Validate(); err != nil {
		return nil, err
	}
	col, err := s.collRef(collection, opts.Path)
	if err != nil {
		return nil, err
	}

	fq, none := applyQuery(col, opts.Condition)
	if none {
		// Nothing can ever match; deliver one empty snapshot and go quiet.
		done := make(chan struct{})
		go func() {
			select {
			case <-done:
			default:
				opts.OnSnapshot([]record.Record{})
			}
		}()
		var once sync.Once
		return func() { once.Do(func() { close(done) }) }, nil
	}

	streamCtx, cancel := context.WithCancel(ctx)
	snaps := fq.Snapshots(streamCtx)

	go func() {
		defer snaps.Stop()
		for {
			snap, err := snaps.Next()
			if err != nil {
				if streamCtx.Err() == nil && status.Code(err) != codes.Canceled {
					s.log.Error(ctx, "snapshot stream terminated", "collection", collection, "error", err)
				}
				return
			}

			records := make([]record.Record, 0)
			docs := snap.Documents
			for {
				d, err := docs.Next()
				if errors.Is(err, iterator.Done) {
					break
				}
				if err != nil {
					s.log.Error(ctx, "failed to read snapshot documents", "collection", collection, "error", err)
					break
				}
				rec := record.Record(d.Data())
				if rec.Key() == "" {
					rec.SetKey(d.Ref.ID)
				}
				records = append(records, rec)
			}
			opts.OnSnapshot(records)
		}
	}()

	return UnsubscribeFunc(cancel), nil
}
