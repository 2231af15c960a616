// Package migrations holds the bun schema migrations. Each file registers one step and
// bun derives its version from the file name.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
