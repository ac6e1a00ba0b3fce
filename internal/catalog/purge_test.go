package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idxctl/idxctl/internal/catalogdb"
)

func TestPurgeStoragesCascadesFragmentsAndEntries(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedStorage(t, c, 1, 1, 1, "run-1")
	seedFileEntry(t, c, 1, 1, 1, 1, "a.txt", 1000, 10)

	report, err := c.PurgeStorages(ctx, []int64{1}, &catalogdb.NoProgress)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.StoragesPurged)
	assert.Equal(t, int64(0), countRows(t, c, "SELECT COUNT(*) FROM storages"))
	assert.Equal(t, int64(0), countRows(t, c, "SELECT COUNT(*) FROM entryFragments"))
	assert.Equal(t, int64(0), countRows(t, c, "SELECT COUNT(*) FROM entries"))
	// The only entity referencing job-1 is now gone too, along with its uuid.
	assert.Equal(t, int64(0), countRows(t, c, "SELECT COUNT(*) FROM entities"))
	assert.Equal(t, int64(0), countRows(t, c, "SELECT COUNT(*) FROM uuids"))
	assert.Equal(t, int64(1), report.UUIDsPurged)
}

func TestPurgeStoragesKeepsEntryStillFragmentedElsewhere(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedStorage(t, c, 1, 1, 1, "run-1")
	seedStorage(t, c, 2, 1, 1, "run-2")

	// One entry with fragments on both storages (a dedup hit shared across
	// two backup runs); purging run-1 must not delete the entry.
	_, err := c.DB().SQL.ExecContext(ctx,
		`INSERT INTO entries (id, uuidId, entityId, type, name, timeLastChanged, size) VALUES (1, 1, 1, ?, 'shared.txt', 1000, 10)`,
		int(catalogdb.EntryFile))
	require.NoError(t, err)
	_, err = c.DB().SQL.ExecContext(ctx, `INSERT INTO fileEntries (entryId, size) VALUES (1, 10)`)
	require.NoError(t, err)
	_, err = c.DB().SQL.ExecContext(ctx,
		`INSERT INTO entryFragments (storageId, entryId, fragOffset, size) VALUES (1, 1, 0, 10)`)
	require.NoError(t, err)
	_, err = c.DB().SQL.ExecContext(ctx,
		`INSERT INTO entryFragments (storageId, entryId, fragOffset, size) VALUES (2, 1, 0, 10)`)
	require.NoError(t, err)

	report, err := c.PurgeStorages(ctx, []int64{1}, &catalogdb.NoProgress)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.StoragesPurged)

	assert.Equal(t, int64(1), countRows(t, c, "SELECT COUNT(*) FROM entries WHERE id = 1"))
	assert.Equal(t, int64(1), countRows(t, c, "SELECT COUNT(*) FROM entryFragments WHERE storageId = 2"))
}

func TestPurgeStoragesEvictsPopulatedFTSMirrorRows(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedStorage(t, c, 1, 1, 1, "run-1")
	seedFileEntry(t, c, 1, 1, 1, 1, "a.txt", 1000, 10)

	// Rebuild the FTS mirrors against the seeded rows so FTS_storages and
	// FTS_entries are non-empty going into the purge: only then does the
	// DELETE FROM ... WHERE rowid = ? path actually remove a matched row
	// instead of silently matching zero.
	require.NoError(t, c.CreateFTSIndices(ctx))
	assert.Equal(t, int64(1), countRows(t, c, "SELECT COUNT(*) FROM FTS_storages"))
	assert.Equal(t, int64(1), countRows(t, c, "SELECT COUNT(*) FROM FTS_entries"))

	report, err := c.PurgeStorages(ctx, []int64{1}, &catalogdb.NoProgress)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.StoragesPurged)

	assert.Equal(t, int64(0), countRows(t, c, "SELECT COUNT(*) FROM FTS_storages"))
	assert.Equal(t, int64(0), countRows(t, c, "SELECT COUNT(*) FROM FTS_entries"))
}

func TestPurgeDeletedStoragesOnlyTargetsSoftDeletedRows(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedStorage(t, c, 1, 1, 1, "run-1")
	seedStorage(t, c, 2, 1, 1, "run-2")
	_, err := c.DB().SQL.ExecContext(ctx, "UPDATE storages SET deletedFlag = 1 WHERE id = 2")
	require.NoError(t, err)

	report, err := c.PurgeDeletedStorages(ctx, &catalogdb.NoProgress)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.StoragesPurged)
	assert.Equal(t, int64(1), countRows(t, c, "SELECT COUNT(*) FROM storages WHERE id = 1"))
}
