// Package migrations embeds the SQL schema migrations for the changeset
// store, applied via golang-migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
