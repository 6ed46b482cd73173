// Package dbmigrations exposes embedded SQL migrations for the queue's
// Postgres job persister.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into queue binaries.
//
//go:embed *.sql
var Files embed.FS
