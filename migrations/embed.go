// Package migrations embeds the SQL schema migrations of the ledger database.
package migrations

import "embed"

// FS holds every *.sql migration file
//
//go:embed *.sql
var FS embed.FS
