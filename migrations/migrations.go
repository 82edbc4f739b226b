// Package migrations embeds the PostgreSQL schema migrations so binaries and
// tests apply the same files without depending on the working directory.
package migrations

import "embed"

// FS holds the numbered golang-migrate files.
//
//go:embed *.sql
var FS embed.FS
