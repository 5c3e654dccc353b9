// Package migrations embeds the Credential Service schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
