package remote

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MSU-Students/q-attendance/internal/common"
	"github.com/MSU-Students/q-attendance/internal/query"
	"github.com/MSU-Students/q-attendance/internal/record"
)

func keysOf(records []record.Record) []string {
	keys := make([]string, 0, len(records))
	for _, r := range records {
		keys = append(keys, r.Key())
	}
	sort.Strings(keys)
	return keys
}

func TestMemoryStore_CreateAssignsKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	stored, err := s.Create(ctx, "classes", record.Record{"classCode": "CS101"}, "")
	require.NoError(t, err)
	require.NotEmpty(t, stored.Key())

	got, err := s.Get(ctx, "classes", stored.Key(), "")
	require.NoError(t, err)
	assert.Equal(t, "CS101", got["classCode"])
}

func TestMemoryStore_CreateUpsertsAtGivenKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Create(ctx, "classes", record.Record{"key": "c1", "classCode": "CS101"}, "")
	require.NoError(t, err)
	_, err = s.Create(ctx, "classes", record.Record{"key": "c1", "classCode": "CS102"}, "")
	require.NoError(t, err)

	got, err := s.Get(ctx, "classes", "c1", "")
	require.NoError(t, err)
	assert.Equal(t, "CS102", got["classCode"])

	n, err := s.Count(ctx, "classes", "", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMemoryStore_GetAbsent(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.Get(context.Background(), "classes", "nope", "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_UpdateMergesFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Create(ctx, "classes", record.Record{"key": "c1", "classCode": "CS101", "ownerKey": "t1"}, "")
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, "classes", "c1", record.Record{"classCode": "CS105"}, ""))

	got, err := s.Get(ctx, "classes", "c1", "")
	require.NoError(t, err)
	assert.Equal(t, "CS105", got["classCode"])
	assert.Equal(t, "t1", got["ownerKey"])
}

func TestMemoryStore_DeleteIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Create(ctx, "classes", record.Record{"key": "c1"}, "")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "classes", "c1", ""))
	require.NoError(t, s.Delete(ctx, "classes", "c1", ""))

	got, err := s.Get(ctx, "classes", "c1", "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_PathScopingIsolatesContainers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Create(ctx, "teachers", record.Record{"key": "t1"}, "/classes/c1")
	require.NoError(t, err)
	_, err = s.Create(ctx, "teachers", record.Record{"key": "t2"}, "/classes/c2")
	require.NoError(t, err)

	inC1, err := s.Find(ctx, "teachers", "/classes/c1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, keysOf(inC1))

	got, err := s.Get(ctx, "teachers", "t1", "/classes/c2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_FindRejectsMalformedQuery(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Find(context.Background(), "classes", "", query.Where(query.Condition{"a": {query.Op("like"): "x"}}))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidQuery)
}

func TestMemoryStore_StreamDeliversSnapshots(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var snapshots [][]string
	unsubscribe, err := s.Stream(ctx, "classes", StreamOptions{
		Condition: query.Eq(map[string]any{"classCode": "CS101"}),
		OnSnapshot: func(records []record.Record) {
			snapshots = append(snapshots, keysOf(records))
		},
	})
	require.NoError(t, err)

	// Initial empty snapshot.
	require.Len(t, snapshots, 1)
	assert.Empty(t, snapshots[0])

	_, err = s.Create(ctx, "classes", record.Record{"key": "a", "classCode": "CS101"}, "")
	require.NoError(t, err)
	_, err = s.Create(ctx, "classes", record.Record{"key": "b", "classCode": "CS102"}, "")
	require.NoError(t, err)

	require.Len(t, snapshots, 3)
	assert.Equal(t, []string{"a"}, snapshots[1])
	assert.Equal(t, []string{"a"}, snapshots[2])

	unsubscribe()
	_, err = s.Create(ctx, "classes", record.Record{"key": "c", "classCode": "CS101"}, "")
	require.NoError(t, err)
	assert.Len(t, snapshots, 3, "no snapshots after unsubscribe")
}

// The in-memory store evaluates conditions through its own normalization
// path. It must agree with the shared in-memory evaluator on every query
// shape the grammar can express.
func TestMemoryStore_AgreesWithGrammarEvaluator(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	dataset := make([]record.Record, 0, 30)
	codes := []string{"CS101", "CS102", "CS103"}
	for i := 0; i < 30; i++ {
		rec := record.Record{
			"key":       fmt.Sprintf("r%02d", i),
			"classCode": codes[i%len(codes)],
			"capacity":  i,
			"active":    i%2 == 0,
			"ownerKey":  fmt.Sprintf("t%d", i%4),
		}
		dataset = append(dataset, rec)
		_, err := s.Create(ctx, "classes", rec, "")
		require.NoError(t, err)
	}

	queries := []query.Query{
		nil,
		query.Where(query.Condition{}),
		query.Eq(map[string]any{"classCode": "CS101"}),
		query.Where(query.Condition{"capacity": {query.OpGreater: 10}}),
		query.Where(query.Condition{"capacity": {query.OpGreaterOrEqual: 10, query.OpLess: 20}}),
		query.Where(query.Condition{"classCode": {query.OpNotEqual: "CS102"}}),
		query.Where(query.Condition{"key": {query.OpIn: []any{"r01", "r05", "r20", "missing"}}}),
		query.Where(query.Condition{"key": {query.OpIn: []any{}}}),
		query.Where(query.Condition{"active": {query.OpEqual: true}}),
		query.Where(
			query.Condition{"classCode": {query.OpEqual: "CS101"}, "capacity": {query.OpLess: 9}},
			query.Condition{"ownerKey": {query.OpEqual: "t3"}},
		),
	}

	for i, q := range queries {
		got, err := s.Find(ctx, "classes", "", q)
		require.NoError(t, err, "query %d", i)

		var want []string
		for _, rec := range dataset {
			if q.Match(rec) {
				want = append(want, rec.Key())
			}
		}
		sort.Strings(want)
		assert.Equal(t, want, func() []string {
			if len(got) == 0 {
				return nil
			}
			return keysOf(got)
		}(), "query %d diverged", i)
	}
}
