package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/MSU-Students/q-attendance/internal/cache/migrations"
	"github.com/MSU-Students/q-attendance/internal/common"
	"github.com/MSU-Students/q-attendance/internal/dbx"
	"github.com/MSU-Students/q-attendance/internal/query"
)

const envelopeColumns = "path, key, doc, created_at, created_pending, updated_at, updated_pending, deleted_at"

// Store is the table-per-collection local cache. All access goes through
// the (path, key) composite identity; path is "" for unscoped collections.
type Store struct {
	db       dbx.DBTX
	tables   map[string]Collection
	registry Registry
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open migrates the database and builds the collection registry,
// creating one table (plus its expression indexes) per collection.
func Open(ctx context.Context, db *sql.DB, registry Registry) (*Store, error) {
	if err := RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	tables := make(map[string]Collection, len(registry))
	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, col := range registry {
			if col.Name == "" {
				return errors.New("cache: collection name is required")
			}
			if _, ok := tables[col.Name]; ok {
				return fmt.Errorf("cache: duplicate collection %q", col.Name)
			}
			if err := createTable(ctx, tx, col); err != nil {
				return err
			}
			tables[col.Name] = col
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Store{db: db, tables: tables, registry: registry}, nil
}

func createTable(ctx context.Context, tx dbx.DBTX, col Collection) error {
	name := tableName(col.Name)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
  path TEXT NOT NULL DEFAULT '',
  key TEXT NOT NULL,
  doc TEXT NOT NULL,
  created_at INTEGER,
  created_pending INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER,
  updated_pending INTEGER NOT NULL DEFAULT 0,
  deleted_at INTEGER,
  PRIMARY KEY (path, key)
)`, name)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %q: %w", col.Name, err)
	}

	for _, field := range col.Indexes {
		if !identRe.MatchString(field) {
			return fmt.Errorf("cache: unindexable field name %q in collection %q", field, col.Name)
		}
		idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (json_extract(doc, '$.%s'))`,
			"idx_"+name+"_"+field, name, field)
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to index %s.%s: %w", col.Name, field, err)
		}
	}

	// Replay scans look these up on every reconnection.
	for _, flag := range []string{"created_pending", "updated_pending", "deleted_at"} {
		idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (%s)`,
			"idx_"+name+"_"+flag, name, flag)
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to index %s.%s: %w", col.Name, flag, err)
		}
	}
	return nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Collections returns the registered collection set.
func (s *Store) Collections() Registry {
	return s.registry
}

func (s *Store) table(collection string) (string, error) {
	if _, ok := s.tables[collection]; !ok {
		return "", fmt.Errorf("%w: %q", common.ErrUnknownCollection, collection)
	}
	return tableName(collection), nil
}

// Get returns the envelope at (path, key), or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, collection, path, key string) (*Envelope, error) {
	tbl, err := s.table(collection)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`SELECT %s FROM %q WHERE path=? AND key=?`, envelopeColumns, tbl)
	env, err := scanEnvelope(s.db.QueryRowContext(ctx, q, path, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached %s[%s]: %w", collection, key, err)
	}
	return env, nil
}

// Put upserts the envelope at its (path, key) identity.
func (s *Store) Put(ctx context.Context, collection string, env *Envelope) error {
	tbl, err := s.table(collection)
	if err != nil {
		return err
	}
	if env.Key == "" {
		return errors.New("cache: envelope key is required")
	}

	doc, err := json.Marshal(env.Record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	q := fmt.Sprintf(`INSERT INTO %q (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, key) DO UPDATE SET doc = excluded.doc,
			created_at = excluded.created_at,
			created_pending = excluded.created_pending,
			updated_at = excluded.updated_at,
			updated_pending = excluded.updated_pending,
			deleted_at = excluded.deleted_at
	`, tbl, envelopeColumns)
	_, err = s.db.ExecContext(ctx, q,
		env.Path, env.Key, string(doc),
		millisOrNil(env.CreatedOnline.At), boolToInt(env.CreatedOnline.Pending),
		millisOrNil(env.UpdatedOnline.At), boolToInt(env.UpdatedOnline.Pending),
		millisOrNil(env.DeletedOffline))
	if err != nil {
		return fmt.Errorf("failed to upsert cached %s[%s]: %w", collection, env.Key, err)
	}
	return nil
}

// Delete removes the envelope at (path, key). Removing an absent envelope
// is not an error.
func (s *Store) Delete(ctx context.Context, collection, path, key string) error {
	tbl, err := s.table(collection)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`DELETE FROM %q WHERE path=? AND key=?`, tbl)
	if _, err := s.db.ExecContext(ctx, q, path, key); err != nil {
		return fmt.Errorf("failed to delete cached %s[%s]: %w", collection, key, err)
	}
	return nil
}

// Find evaluates the query over all live (non-tombstoned) rows of the
// collection, optionally restricted to one scoping path. Pure-equality
// conditions are pushed down to SQL so expression indexes apply; the
// in-memory evaluator remains authoritative over the fetched rows.
func (s *Store) Find(ctx context.Context, collection, path string, q query.Query) ([]*Envelope, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	tbl, err := s.table(collection)
	if err != nil {
		return nil, err
	}

	where := []string{"deleted_at IS NULL"}
	var args []any
	if path != "" {
		where = append(where, "path=?")
		args = append(args, path)
	}
	if clauses, clauseArgs, ok := equalityClauses(q); ok {
		where = append(where, clauses...)
		args = append(args, clauseArgs...)
	}

	sqlq := fmt.Sprintf(`SELECT %s FROM %q WHERE %s ORDER BY path, key`,
		envelopeColumns, tbl, strings.Join(where, " AND "))
	rows, err := s.db.QueryContext(ctx, sqlq, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached %s: %w", collection, err)
	}
	defer rows.Close()

	result := make([]*Envelope, 0)
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		if q.Match(env.Record) {
			result = append(result, env)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cached %s: %w", collection, err)
	}
	return result, nil
}

// equalityClauses extracts an index-friendly SQL prefilter from a
// single-condition, pure-equality query.
func equalityClauses(q query.Query) ([]string, []any, bool) {
	if len(q) != 1 {
		return nil, nil, false
	}
	var clauses []string
	var args []any
	for field, operand := range q[0] {
		if len(operand) != 1 || !identRe.MatchString(field) {
			return nil, nil, false
		}
		want, ok := operand[query.OpEqual]
		if !ok {
			return nil, nil, false
		}
		switch want.(type) {
		case string, bool, int, int32, int64, float32, float64:
		default:
			return nil, nil, false
		}
		clauses = append(clauses, fmt.Sprintf("json_extract(doc, '$.%s') = ?", field))
		args = append(args, want)
	}
	return clauses, args, len(clauses) > 0
}

// PendingCreates returns live rows whose creation awaits replay.
func (s *Store) PendingCreates(ctx context.Context, collection string) ([]*Envelope, error) {
	return s.scanWhere(ctx, collection, "created_pending=1 AND deleted_at IS NULL")
}

// PendingUpdates returns live rows whose latest update awaits replay.
func (s *Store) PendingUpdates(ctx context.Context, collection string) ([]*Envelope, error) {
	return s.scanWhere(ctx, collection, "updated_pending=1 AND deleted_at IS NULL")
}

// Tombstones returns rows deleted offline, awaiting remote deletion.
func (s *Store) Tombstones(ctx context.Context, collection string) ([]*Envelope, error) {
	return s.scanWhere(ctx, collection, "deleted_at IS NOT NULL")
}

func (s *Store) scanWhere(ctx context.Context, collection, where string) ([]*Envelope, error) {
	tbl, err := s.table(collection)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`SELECT %s FROM %q WHERE %s ORDER BY path, key`, envelopeColumns, tbl, where)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to scan cached %s: %w", collection, err)
	}
	defer rows.Close()

	var result []*Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cached %s: %w", collection, err)
	}
	return result, nil
}

// SetMeta upserts a sync bookkeeping value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set sync_metadata[%s]: %w", key, err)
	}
	return nil
}

// GetMeta returns a sync bookkeeping value, or "" when absent.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sync_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get sync_metadata[%s]: %w", key, err)
	}
	return value, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnvelope(rs rowScanner) (*Envelope, error) {
	var path, key, doc string
	var createdAt, updatedAt, deletedAt sql.NullInt64
	var createdPending, updatedPending int

	if err := rs.Scan(&path, &key, &doc, &createdAt, &createdPending, &updatedAt, &updatedPending, &deletedAt); err != nil {
		return nil, err
	}

	env := &Envelope{
		Path:          path,
		Key:           key,
		CreatedOnline: markOf(createdAt, createdPending),
		UpdatedOnline: markOf(updatedAt, updatedPending),
	}
	if deletedAt.Valid {
		env.DeletedOffline = time.UnixMilli(deletedAt.Int64).UTC()
	}
	if err := json.Unmarshal([]byte(doc), &env.Record); err != nil {
		return nil, fmt.Errorf("failed to decode cached record %q: %w", key, err)
	}
	return env, nil
}

func markOf(at sql.NullInt64, pending int) Mark {
	if pending != 0 {
		return PendingMark
	}
	if at.Valid {
		return ConfirmedAt(time.UnixMilli(at.Int64).UTC())
	}
	return Mark{}
}

func millisOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
