// Package migrations embeds the capture service's SQL migrations so the
// binary can bring a fresh database up to date on its own.
package migrations

import "embed"

// FS holds every *.sql file of this directory at its root. Pass it to
// database.DB.Migrate with dir ".".
//
//go:embed *.sql
var FS embed.FS
