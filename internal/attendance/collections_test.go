package attendance

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/MSU-Students/q-attendance/internal/cache"
)

func TestCollections(t *testing.T) {
	cols := Collections()

	seen := map[string]bool{}
	for _, c := range cols {
		assert.NotEmpty(t, c.Name)
		assert.False(t, seen[c.Name], "duplicate collection %q", c.Name)
		seen[c.Name] = true
	}
	assert.True(t, seen["classes"])
	assert.True(t, seen["check-ins"])
}

func TestCollections_OpenCache(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = cache.Open(context.Background(), db, Collections())
	require.NoError(t, err)
}
