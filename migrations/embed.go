// Package migrations embeds the ledger schema into the binary.
//
// Importing this package registers the SQL files with the database package,
// so lumid can migrate a fresh database without the files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/lumi-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
