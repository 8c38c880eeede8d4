package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	// SourceLabel names these migrations when a host registers several
	// migration sets on one persistence client.
	SourceLabel = "go-marketplace"

	rootPath = "data/sql/migrations"
)

// Source is the migration tree of one SQL dialect.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type RegisterFunc func(ctx context.Context, source Source) error

// Sources resolves the postgres tree at the root of the migration directory
// and the sqlite tree below it. Both must hold at least one up migration.
func Sources() ([]Source, error) {
	return sourcesFrom(FS())
}

func sourcesFrom(root fs.FS) ([]Source, error) {
	base, err := fs.Sub(root, rootPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootPath, err)
	}
	sqliteFS, err := fs.Sub(base, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}
	sources := []Source{
		{Dialect: DialectPostgres, Path: rootPath, FS: base},
		{Dialect: DialectSQLite, Path: rootPath + "/" + DialectSQLite, FS: sqliteFS},
	}
	for _, source := range sources {
		matches, err := fs.Glob(source.FS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: glob %s: %w", source.Path, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s tree %q has no *.up.sql files", source.Dialect, source.Path)
		}
	}
	return sources, nil
}

// ForDialect returns the migration tree for dialect. "postgresql", "pg" and
// "sqlite3" are accepted as aliases.
func ForDialect(dialect string) (Source, error) {
	want := normalizeDialect(dialect)
	sources, err := Sources()
	if err != nil {
		return Source{}, err
	}
	for _, source := range sources {
		if source.Dialect == want {
			return source, nil
		}
	}
	return Source{}, fmt.Errorf("migrations: unsupported dialect %q", dialect)
}

// Register hands the tree of every requested dialect to registerFn, in the
// order given. With no dialects, both trees are registered.
func Register(ctx context.Context, registerFn RegisterFunc, dialects ...string) ([]Source, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	if len(dialects) == 0 {
		dialects = []string{DialectPostgres, DialectSQLite}
	}

	registered := make([]Source, 0, len(dialects))
	seen := map[string]bool{}
	for _, dialect := range dialects {
		source, err := ForDialect(dialect)
		if err != nil {
			return registered, err
		}
		if seen[source.Dialect] {
			continue
		}
		seen[source.Dialect] = true
		if err := registerFn(ctx, source); err != nil {
			return registered, fmt.Errorf("migrations: register %s: %w", source.Dialect, err)
		}
		registered = append(registered, source)
	}
	return registered, nil
}

func normalizeDialect(dialect string) string {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres
	case "sqlite", "sqlite3":
		return DialectSQLite
	default:
		return strings.ToLower(strings.TrimSpace(dialect))
	}
}
