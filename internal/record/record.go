// Package record defines the document-shaped data unit stored in collections.
//
// A Record is a loose field/value mapping always carrying a unique "key"
// string. Values are kept in their JSON-normalized form (string, float64,
// bool, nil, []any, map[string]any) so records compare identically whether
// they came from the remote store, the local cache, or application code.
package record

import "encoding/json"

// KeyField is the reserved field holding a record's unique identifier.
const KeyField = "key"

// Record is a mapping from field name to value.
type Record map[string]any

// Key returns the record's identifier, or "" when unset.
func (r Record) Key() string {
	k, _ := r[KeyField].(string)
	return k
}

// SetKey writes the record's identifier field.
func (r Record) SetKey(key string) {
	r[KeyField] = key
}

// Clone returns a deep copy of the record with all values normalized to
// JSON types. A nil record clones to nil.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		// Records hold plain JSON-representable data; anything else is a
		// programmer error surfaced at the call site that built the record.
		panic("record: not JSON-representable: " + err.Error())
	}
	out := Record{}
	if err := json.Unmarshal(data, &out); err != nil {
		panic("record: clone round-trip failed: " + err.Error())
	}
	return out
}

// Merge returns a copy of r with the given partial fields overlaid on top.
// Fields absent from partial remain untouched.
func (r Record) Merge(partial Record) Record {
	out := r.Clone()
	if out == nil {
		out = Record{}
	}
	for k, v := range partial.Clone() {
		out[k] = v
	}
	return out
}
