// Package migrations embeds the ingestion history schema so the server and
// the integration tests apply the same migrations without needing the
// directory on disk at runtime.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
