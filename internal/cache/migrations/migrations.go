// Package migrations embeds the goose migrations applied to the local
// cache database when the store opens.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
