// Package migrations embeds the cart service's PostgreSQL schema.
package migrations

import "embed"

// FS holds the *.up.sql files applied by database.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
