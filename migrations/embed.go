// Package migrations embeds the numbered SQL files applied to every clinic
// schema, and separately the session provider's tables.
package migrations

import (
	"embed"
	"io/fs"
)

// FS holds the per-clinic migrations.
//
//go:embed *.sql
var FS embed.FS

//go:embed provider/*.sql
var providerFiles embed.FS

// ProviderSchema is where the session provider keeps auth_users and
// auth_accounts. Clinic schemas never contain them.
const ProviderSchema = "public"

// Provider returns the migrations that create the session provider's tables
// in ProviderSchema. Only development databases need them.
func Provider() fs.FS {
	sub, err := fs.Sub(providerFiles, "provider")
	if err != nil {
		panic(err)
	}
	return sub
}
