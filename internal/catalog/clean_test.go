package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idxctl/idxctl/internal/catalogdb"
)

func TestCleanRemovesOrphanFragmentsWithNoStorage(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedStorage(t, c, 1, 1, 1, "run-1")
	seedFileEntry(t, c, 1, 1, 1, 1, "a.txt", 1000, 10)

	// Delete the storage out from under the fragment without going through
	// Purge, so the fragment becomes orphaned.
	_, err := c.DB().SQL.ExecContext(ctx, "DELETE FROM storages WHERE id = 1")
	require.NoError(t, err)

	report, err := c.Clean(ctx, &catalogdb.NoProgress)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.OrphanRelationshipRows)
	assert.Equal(t, int64(0), countRows(t, c, "SELECT COUNT(*) FROM entryFragments"))
}

func TestCleanDeletesUnnamedStorages(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	_, err := c.DB().SQL.ExecContext(ctx,
		`INSERT INTO storages (id, uuidId, entityId, name, created, state) VALUES (1, 1, 1, '', 1000, ?)`,
		int(catalogdb.StorageStateOK))
	require.NoError(t, err)

	report, err := c.Clean(ctx, &catalogdb.NoProgress)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.UnnamedStorages)
	assert.Equal(t, int64(0), countRows(t, c, "SELECT COUNT(*) FROM storages WHERE id = 1"))
}

func TestCleanSoftDeletesDuplicateStorageNames(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedStorage(t, c, 1, 1, 1, "same-name")
	seedStorage(t, c, 2, 1, 1, "same-name")

	report, err := c.Clean(ctx, &catalogdb.NoProgress)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.DuplicateStorages)

	var deleted1, deleted2 bool
	require.NoError(t, c.DB().SQL.QueryRowContext(ctx, "SELECT deletedFlag FROM storages WHERE id = 1").Scan(&deleted1))
	require.NoError(t, c.DB().SQL.QueryRowContext(ctx, "SELECT deletedFlag FROM storages WHERE id = 2").Scan(&deleted2))
	assert.False(t, deleted1)
	assert.True(t, deleted2)
}

func TestCleanReportTotalIsZeroOnAnEmptyCatalog(t *testing.T) {
	report, err := newTestCatalog(t).Clean(context.Background(), &catalogdb.NoProgress)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Total())
}
