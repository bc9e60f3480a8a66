package auth

import (
	"context"
	"embed"
	"io/fs"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/migrate"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package, one
// directory per dialect
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// DialectMigrationsFS returns the migrations for a single dialect
func DialectMigrationsFS(name dialect.Name) (fs.FS, error) {
	dir, err := migrationDir(name)
	if err != nil {
		return nil, err
	}
	return fs.Sub(migrationsFS, "data/sql/migrations/"+dir)
}

// Migrate applies the embedded migrations matching the database dialect
func Migrate(ctx context.Context, db *bun.DB) error {
	sub, err := DialectMigrationsFS(db.Dialect().Name())
	if err != nil {
		return err
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(sub); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to discover migrations")
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to init migrations")
	}

	if _, err := migrator.Migrate(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to run migrations")
	}
	return nil
}

func migrationDir(name dialect.Name) (string, error) {
	switch name {
	case dialect.SQLite:
		return "sqlite", nil
	case dialect.PG:
		return "postgres", nil
	default:
		return "", goerrors.New("unsupported dialect for migrations: "+name.String(), goerrors.CategoryInternal)
	}
}
