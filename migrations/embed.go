// Package migrations embeds the SQL schema migrations into the binary.
package migrations

import (
	"embed"

	"github.com/sgnexus/autobright/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
