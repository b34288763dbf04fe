// Package migrations embeds the SQL schema files into the binary so the
// device never depends on files outside its executable.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-doorbell/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
