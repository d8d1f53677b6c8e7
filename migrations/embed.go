// Package migrations embeds the schema migrations applied by golang-migrate.
package migrations

import "embed"

// FS holds the versioned SQL files under sql/.
//
//go:embed sql/*.sql
var FS embed.FS
