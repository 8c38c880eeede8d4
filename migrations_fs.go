package marketplace

import (
	"io/fs"

	"github.com/goliatone/go-marketplace/migrations"
)

// GetMigrationsFS returns the embedded migration tree, postgres files at
// data/sql/migrations and sqlite files under its sqlite directory.
func GetMigrationsFS() fs.FS {
	return migrations.FS()
}
