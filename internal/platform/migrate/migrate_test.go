package migrate

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/holdco/migrations"
)

func TestDriverURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/holdco?sslmode=disable", DriverURL("postgres://u:p@db:5432/holdco?sslmode=disable"))
	assert.Equal(t, "pgx5://db/holdco", DriverURL("postgresql://db/holdco"))
	assert.Equal(t, "pgx5://db/holdco", DriverURL("pgx5://db/holdco"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrations.FS, "sql/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrations.FS, "sql/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
