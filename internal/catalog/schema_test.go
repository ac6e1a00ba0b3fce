package catalog_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idxctl/idxctl/internal/catalog"
	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogdb/sqlitedialect"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func newSchemaDB(t *testing.T) *catalog.Catalog {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return catalog.Open(&catalogdb.DB{
		SQL:     sqlDB,
		Dialect: sqlitedialect.New(),
		URI:     catalogdb.URI{Backend: catalogdb.BackendSQLite, Path: ":memory:"},
	})
}

func TestCreateSchemaIsIdempotentWithoutForce(t *testing.T) {
	c := newSchemaDB(t)
	ctx := context.Background()
	require.NoError(t, c.CreateSchema(ctx, false))
	require.NoError(t, c.CreateSchema(ctx, false))

	tables, err := c.ListTables(ctx)
	require.NoError(t, err)
	assert.Contains(t, tables, "entries")
	assert.Contains(t, tables, "entryNewest")
}

func TestCreateSchemaForceDropsExistingData(t *testing.T) {
	c := newSchemaDB(t)
	ctx := context.Background()
	require.NoError(t, c.CreateSchema(ctx, false))

	_, err := c.DB().SQL.ExecContext(ctx, "INSERT INTO uuids (id, jobUuid) VALUES (1, 'job-1')")
	require.NoError(t, err)

	require.NoError(t, c.CreateSchema(ctx, true))
	assert.Equal(t, int64(0), countRows(t, c, "SELECT COUNT(*) FROM uuids"))
}

func TestCreateTriggersAndIndicesListTheirNames(t *testing.T) {
	c := newSchemaDB(t)
	ctx := context.Background()
	require.NoError(t, c.CreateSchema(ctx, false))
	require.NoError(t, c.CreateTriggers(ctx))
	require.NoError(t, c.CreateIndices(ctx))

	triggers, err := c.ListTriggers(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, triggers)

	indices, err := c.ListIndices(ctx)
	require.NoError(t, err)
	assert.Contains(t, indices, "idx_entryNewest_name")
}

func TestDropTablesRemovesEveryTable(t *testing.T) {
	c := newSchemaDB(t)
	ctx := context.Background()
	require.NoError(t, c.CreateSchema(ctx, false))
	require.NoError(t, c.DropTables(ctx))

	_, err := c.DB().SQL.ExecContext(ctx, "SELECT 1 FROM entries")
	assert.Error(t, err)
}
