package auth_test

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/dialect"
)

func TestMigrate_IsIdempotent(t *testing.T) {
	db := setupDB(t)

	require.NoError(t, auth.Migrate(context.Background(), db))

	n, err := db.NewSelect().Table("bun_migrations").Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDialectMigrationsFS(t *testing.T) {
	var names [2][]string

	for i, name := range []dialect.Name{dialect.SQLite, dialect.PG} {
		sub, err := auth.DialectMigrationsFS(name)
		require.NoError(t, err)

		entries, err := fs.ReadDir(sub, ".")
		require.NoError(t, err)

		for _, entry := range entries {
			assert.True(t,
				strings.HasSuffix(entry.Name(), ".up.sql") || strings.HasSuffix(entry.Name(), ".down.sql"),
				entry.Name())
			names[i] = append(names[i], entry.Name())
		}
	}

	assert.NotEmpty(t, names[0])
	assert.Equal(t, names[0], names[1], "every dialect ships the same migrations")

	_, err := auth.DialectMigrationsFS(dialect.MySQL)
	assert.Error(t, err)
}
