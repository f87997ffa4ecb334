// Package migrations holds the versioned schema of the SQLite store.
// Files are applied in name order and recorded in schema_migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
