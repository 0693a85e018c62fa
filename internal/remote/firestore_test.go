package remote

import (
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MSU-Students/q-attendance/internal/common"
	"github.com/MSU-Students/q-attendance/internal/query"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    []string
		wantErr bool
	}{
		{"single pair", "/classes/c1", []string{"classes", "c1"}, false},
		{"no leading slash", "classes/c1", []string{"classes", "c1"}, false},
		{"nested pairs", "/classes/c1/meetings/m1", []string{"classes", "c1", "meetings", "m1"}, false},
		{"odd segments", "/classes", nil, true},
		{"dangling pair", "/classes/c1/meetings", nil, true},
		{"empty segment", "/classes//meetings/m1", nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := splitPath(tc.path)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEntityFilter_NilForMatchAll(t *testing.T) {
	for _, q := range []query.Query{
		nil,
		{},
		// An empty condition in an OR list widens the query to everything.
		query.Where(
			query.Condition{"classCode": {query.OpEqual: "CS101"}},
			query.Condition{},
		),
	} {
		f, none := entityFilter(q)
		assert.Nil(t, f)
		assert.False(t, none)
	}
}

func TestEntityFilter_EmptyMembershipMatchesNothing(t *testing.T) {
	// Firestore rejects empty "in" arrays, so an unsatisfiable query must
	// short-circuit before reaching the backend.
	f, none := entityFilter(query.Where(query.Condition{
		"key": {query.OpIn: []any{}},
	}))
	assert.Nil(t, f)
	assert.True(t, none)

	// Only the unsatisfiable OR branch drops; the rest still translates.
	f, none = entityFilter(query.Where(
		query.Condition{"key": {query.OpIn: []any{}}},
		query.Condition{"classCode": {query.OpEqual: "CS101"}},
	))
	require.False(t, none)
	and, ok := f.(firestore.AndFilter)
	require.True(t, ok, "expected AndFilter, got %T", f)
	require.Len(t, and.Filters, 1)
	pf := and.Filters[0].(firestore.PropertyFilter)
	assert.Equal(t, "classCode", pf.Path)
}

func TestEntityFilter_SingleCondition(t *testing.T) {
	f, none := entityFilter(query.Where(query.Condition{
		"classCode": {query.OpEqual: "CS101"},
		"capacity":  {query.OpGreater: 10},
	}))
	require.False(t, none)

	and, ok := f.(firestore.AndFilter)
	require.True(t, ok, "expected AndFilter, got %T", f)
	require.Len(t, and.Filters, 2)

	// Fields are emitted in sorted order for deterministic translation.
	first := and.Filters[0].(firestore.PropertyFilter)
	second := and.Filters[1].(firestore.PropertyFilter)
	assert.Equal(t, "capacity", first.Path)
	assert.Equal(t, ">", first.Operator)
	assert.Equal(t, 10, first.Value)
	assert.Equal(t, "classCode", second.Path)
	assert.Equal(t, "==", second.Operator)
	assert.Equal(t, "CS101", second.Value)
}

func TestEntityFilter_OrAcrossConditions(t *testing.T) {
	f, none := entityFilter(query.Where(
		query.Condition{"classCode": {query.OpEqual: "CS101"}},
		query.Condition{"ownerKey": {query.OpEqual: "t1"}},
	))
	require.False(t, none)

	or, ok := f.(firestore.OrFilter)
	require.True(t, ok, "expected OrFilter, got %T", f)
	require.Len(t, or.Filters, 2)
	for _, sub := range or.Filters {
		and, ok := sub.(firestore.AndFilter)
		require.True(t, ok)
		assert.Len(t, and.Filters, 1)
	}
}

func TestEntityFilter_MembershipOperator(t *testing.T) {
	f, none := entityFilter(query.Where(query.Condition{
		"key": {query.OpIn: []any{"a", "c"}},
	}))
	require.False(t, none)

	and, ok := f.(firestore.AndFilter)
	require.True(t, ok)
	require.Len(t, and.Filters, 1)
	pf := and.Filters[0].(firestore.PropertyFilter)
	assert.Equal(t, "in", pf.Operator)
	assert.Equal(t, []any{"a", "c"}, pf.Value)
}
