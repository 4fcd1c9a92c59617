// Package migrations embeds the identity schema into the binary.
//
// Importing this package (usually for side effects) registers the SQL files
// with the database package so db.Migrate can apply them without the files
// being present on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
