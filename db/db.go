// Package db embeds the SQL migrations applied by store.Postgres.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
