package migrations

import "embed"

// Migrations holds the postgres schema applied by Store.ApplyMigrations.
//
//go:embed *.sql
var Migrations embed.FS
