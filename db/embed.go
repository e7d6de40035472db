// Package db carries the SQL migrations so binaries can run them without the
// source tree.
package db

import "embed"

// Migrations holds migrations/*.sql.
//
//go:embed migrations/*.sql
var Migrations embed.FS
