package migrations

import "embed"

// FS embeds the SQL migrations for goose.
//
//go:embed *.sql
var FS embed.FS
