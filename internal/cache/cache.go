// Package cache is the embedded local store backing offline operation:
// one SQLite table per registered collection, each row a record envelope
// carrying synchronization provenance, addressed by the (path, key)
// composite identity.
//
// The collection registry is fixed at Open time; addressing an unregistered
// collection is a programmer error (common.ErrUnknownCollection). Records
// are stored as JSON documents with expression indexes over commonly
// filtered fields, so equality lookups avoid full-table scans.
package cache

import "strings"

// Collection describes one registered table.
type Collection struct {
	// Name is the collection name as used by application callers,
	// e.g. "classes" or "check-ins".
	Name string

	// Scoped marks sub-collection tables whose rows are addressed by
	// (path, key) rather than key alone.
	Scoped bool

	// Indexes lists record fields that get an expression index for
	// equality/range conditions.
	Indexes []string
}

// Registry is the full set of collections known to the store.
type Registry []Collection

// tableName maps a collection name to its SQL identifier.
func tableName(collection string) string {
	return strings.ReplaceAll(collection, "-", "_")
}
