// Package migrations embeds the SQL schema. Files are applied in name
// order; each NNNNNN_name.up.sql has a matching .down.sql.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
