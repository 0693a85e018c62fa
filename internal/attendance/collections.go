// Package attendance declares the application's collection set for the
// local cache registry.
package attendance

import "github.com/MSU-Students/q-attendance/internal/cache"

// Collections lists every synchronized collection. Scoped collections live
// under a parent record's sub-collection path (e.g. check-ins under
// classes/{class}/meetings/{meeting}); the rest are top-level. Indexes name
// the record fields the app commonly filters on.
func Collections() cache.Registry {
	return cache.Registry{
		{Name: "users", Indexes: []string{"role", "status"}},
		{Name: "classes", Indexes: []string{"classCode", "ownerKey"}},
		{Name: "meetings", Indexes: []string{"classKey", "status"}},
		{Name: "org-events", Indexes: []string{"organizationKey", "status"}},
		{Name: "organizations", Indexes: []string{"ownerKey"}},

		{Name: "teachers", Scoped: true},
		{Name: "enrolled", Scoped: true, Indexes: []string{"status"}},
		{Name: "check-ins", Scoped: true, Indexes: []string{"status", "checkInKey"}},
		{Name: "class-keepings", Scoped: true, Indexes: []string{"status"}},
		{Name: "officers", Scoped: true, Indexes: []string{"role"}},
		{Name: "members", Scoped: true, Indexes: []string{"status"}},
		{Name: "confirmations", Scoped: true, Indexes: []string{"checkInKey"}},
	}
}
