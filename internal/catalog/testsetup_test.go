package catalog_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/idxctl/idxctl/internal/catalog"
	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogdb/sqlitedialect"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// newTestCatalog opens a fresh in-memory embedded catalog with the schema,
// triggers, and indices created, the shape every maintenance test starts
// from.
func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db := &catalogdb.DB{
		SQL:     sqlDB,
		Dialect: sqlitedialect.New(),
		URI:     catalogdb.URI{Backend: catalogdb.BackendSQLite, Path: ":memory:"},
	}
	c := catalog.Open(db)

	ctx := context.Background()
	require.NoError(t, c.CreateSchema(ctx, false))
	require.NoError(t, c.CreateTriggers(ctx))
	require.NoError(t, c.CreateIndices(ctx))
	require.NoError(t, c.CreateFTSIndices(ctx))
	return c
}

// seedUUIDAndEntity inserts one uuids row and one entities row owning it,
// the minimal parent chain every storage/entry fixture hangs off of.
func seedUUIDAndEntity(t *testing.T, c *catalog.Catalog, uuidID, entityID int64, jobUUID string) {
	t.Helper()
	ctx := context.Background()
	_, err := c.DB().SQL.ExecContext(ctx,
		"INSERT INTO uuids (id, jobUuid) VALUES (?, ?)", uuidID, jobUUID)
	require.NoError(t, err)
	_, err = c.DB().SQL.ExecContext(ctx,
		"INSERT INTO entities (id, uuidId, jobUuid, created) VALUES (?, ?, ?, ?)",
		entityID, uuidID, jobUUID, 1000)
	require.NoError(t, err)
}

// seedStorage inserts one live storage row owned by entityID.
func seedStorage(t *testing.T, c *catalog.Catalog, storageID, uuidID, entityID int64, name string) {
	t.Helper()
	_, err := c.DB().SQL.ExecContext(context.Background(),
		`INSERT INTO storages (id, uuidId, entityId, name, created, state) VALUES (?, ?, ?, ?, ?, ?)`,
		storageID, uuidID, entityID, name, 1000, int(catalogdb.StorageStateOK))
	require.NoError(t, err)
}

// seedFileEntry inserts one file entry, its fileEntries type row, and one
// entryFragments row attaching it to storageID.
func seedFileEntry(t *testing.T, c *catalog.Catalog, entryID, uuidID, entityID, storageID int64, name string, changed, size int64) {
	t.Helper()
	ctx := context.Background()
	_, err := c.DB().SQL.ExecContext(ctx,
		`INSERT INTO entries (id, uuidId, entityId, type, name, timeLastChanged, size) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entryID, uuidID, entityID, int(catalogdb.EntryFile), name, changed, size)
	require.NoError(t, err)
	_, err = c.DB().SQL.ExecContext(ctx,
		`INSERT INTO fileEntries (entryId, size) VALUES (?, ?)`, entryID, size)
	require.NoError(t, err)
	_, err = c.DB().SQL.ExecContext(ctx,
		`INSERT INTO entryFragments (storageId, entryId, fragOffset, size) VALUES (?, ?, 0, ?)`,
		storageID, entryID, size)
	require.NoError(t, err)
}

// seedDirectoryEntry inserts one directory entry and its directoryEntries
// type row, attaching it to storageID directly (directories carry no
// fragments).
func seedDirectoryEntry(t *testing.T, c *catalog.Catalog, entryID, uuidID, entityID, storageID int64, name string, changed int64) {
	t.Helper()
	ctx := context.Background()
	_, err := c.DB().SQL.ExecContext(ctx,
		`INSERT INTO entries (id, uuidId, entityId, type, name, timeLastChanged) VALUES (?, ?, ?, ?, ?, ?)`,
		entryID, uuidID, entityID, int(catalogdb.EntryDirectory), name, changed)
	require.NoError(t, err)
	_, err = c.DB().SQL.ExecContext(ctx,
		`INSERT INTO directoryEntries (storageId, entryId) VALUES (?, ?)`, storageID, entryID)
	require.NoError(t, err)
}

func countRows(t *testing.T, c *catalog.Catalog, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, c.DB().SQL.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}
