// Package migrations embeds the goose SQL migrations shipped with the binaries.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
