package migrations

import "embed"

// FS contains embedded SQLite migrations for sweeper storage.
//
//go:embed *.sql
var FS embed.FS
