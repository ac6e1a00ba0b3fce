package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idxctl/idxctl/internal/catalog"
	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogerr"
)

func setMetaVersion(t *testing.T, c *catalog.Catalog, version int) {
	t.Helper()
	_, err := c.DB().SQL.ExecContext(context.Background(),
		"INSERT INTO meta(name, value) VALUES ('version', ?)", version)
	require.NoError(t, err)
}

func TestImportMigratesLiveRowsFromCurrentVersionSource(t *testing.T) {
	src := newTestCatalog(t)
	seedUUIDAndEntity(t, src, 1, 1, "job-a")
	seedStorage(t, src, 1, 1, 1, "nightly")
	seedFileEntry(t, src, 1, 1, 1, 1, "report.tar", 1000, 4096)
	setMetaVersion(t, src, 8)

	dst := newTestCatalog(t)
	require.NoError(t, dst.Import(context.Background(), src, &catalogdb.Progress{}))

	assert.EqualValues(t, 1, countRows(t, dst, "SELECT COUNT(*) FROM uuids"))
	assert.EqualValues(t, 1, countRows(t, dst, "SELECT COUNT(*) FROM entities"))
	assert.EqualValues(t, 1, countRows(t, dst, "SELECT COUNT(*) FROM storages"))
	assert.EqualValues(t, 1, countRows(t, dst, "SELECT COUNT(*) FROM entries"))
	assert.EqualValues(t, 1, countRows(t, dst, "SELECT COUNT(*) FROM entryFragments"))
	assert.EqualValues(t, 1, countRows(t, dst, "SELECT COUNT(*) FROM fileEntries"))

	var storedVersion string
	require.NoError(t, dst.DB().SQL.QueryRowContext(context.Background(),
		"SELECT value FROM meta WHERE name = 'version'").Scan(&storedVersion))
	assert.Equal(t, "8", storedVersion)
}

func TestImportSkipsSoftDeletedEntitiesAndStorages(t *testing.T) {
	src := newTestCatalog(t)
	seedUUIDAndEntity(t, src, 1, 1, "job-a")
	seedStorage(t, src, 1, 1, 1, "nightly")
	_, err := src.DB().SQL.ExecContext(context.Background(),
		"UPDATE storages SET deletedFlag = 1 WHERE id = 1")
	require.NoError(t, err)
	setMetaVersion(t, src, 8)

	dst := newTestCatalog(t)
	require.NoError(t, dst.Import(context.Background(), src, &catalogdb.Progress{}))

	assert.EqualValues(t, 0, countRows(t, dst, "SELECT COUNT(*) FROM storages"))
}

func TestImportFromVersion6SourceLeavesEntryNewestEmpty(t *testing.T) {
	src := newTestCatalog(t)
	seedUUIDAndEntity(t, src, 1, 1, "job-a")
	seedStorage(t, src, 1, 1, 1, "nightly")
	seedFileEntry(t, src, 1, 1, 1, 1, "report.tar", 1000, 4096)
	_, err := src.DB().SQL.ExecContext(context.Background(),
		`INSERT INTO entryNewest (id, uuidId, entityId, entryId, type, name, timeLastChanged, size) VALUES (1, 1, 1, 1, ?, 'report.tar', 1000, 4096)`,
		int(catalogdb.EntryFile))
	require.NoError(t, err)
	setMetaVersion(t, src, 6)

	dst := newTestCatalog(t)
	require.NoError(t, dst.Import(context.Background(), src, &catalogdb.Progress{}))

	assert.EqualValues(t, 1, countRows(t, dst, "SELECT COUNT(*) FROM entries"))
	assert.EqualValues(t, 0, countRows(t, dst, "SELECT COUNT(*) FROM entryNewest"))
}

func TestImportRejectsUnsupportedOldVersion(t *testing.T) {
	src := newTestCatalog(t)
	setMetaVersion(t, src, 3)

	dst := newTestCatalog(t)
	err := dst.Import(context.Background(), src, &catalogdb.Progress{})
	require.Error(t, err)
	assert.True(t, catalogerr.Is(err, catalogerr.ClassUnsupportedVersion))
}

func TestImportRejectsUnknownFutureVersion(t *testing.T) {
	src := newTestCatalog(t)
	setMetaVersion(t, src, 99)

	dst := newTestCatalog(t)
	err := dst.Import(context.Background(), src, &catalogdb.Progress{})
	require.Error(t, err)
	assert.True(t, catalogerr.Is(err, catalogerr.ClassUnknownVersion))
}
