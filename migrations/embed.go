package migrations

import "embed"

// Files holds the forward-only SQL migrations for the local cache database,
// embedded into the binary.
//
//go:embed *.sql
var Files embed.FS
