// Package migrations embeds the goose SQL migrations so they can be applied
// at startup and from integration tests without a working directory dependency.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
