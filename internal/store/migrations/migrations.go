// Package migrations embeds the SQL schema migrations of the snapshot database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
