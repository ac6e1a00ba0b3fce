package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idxctl/idxctl/internal/catalog"
)

func TestCheckIntegrityQuickOnlyLooksAtTableExistence(t *testing.T) {
	c := newTestCatalog(t)
	seedUUIDAndEntity(t, c, 1, 1, "job-a")
	seedStorage(t, c, 1, 1, 1, "")

	report, err := c.CheckIntegrity(context.Background(), catalog.CheckQuick)
	require.NoError(t, err)
	assert.Empty(t, report.MissingTables)
	assert.Empty(t, report.BrokenFKs)
	assert.Zero(t, report.Orphans.Total())
	assert.Zero(t, report.Total())
}

func TestCheckIntegrityForeignKeysFindsDanglingFragment(t *testing.T) {
	c := newTestCatalog(t)
	seedUUIDAndEntity(t, c, 1, 1, "job-a")
	seedFileEntry(t, c, 1, 1, 1, 99, "orphan.bin", 1000, 100)

	report, err := c.CheckIntegrity(context.Background(), catalog.CheckForeignKeys)
	require.NoError(t, err)
	assert.Contains(t, report.BrokenFKs, "entryFragments.storageId")
	assert.Zero(t, report.Orphans.Total(), "CheckForeignKeys must not run the orphan audit")
}

func TestCheckIntegrityFullRunsOrphanAndDuplicateAudits(t *testing.T) {
	c := newTestCatalog(t)
	seedUUIDAndEntity(t, c, 1, 1, "job-a")
	seedStorage(t, c, 1, 1, 1, "nightly")
	seedStorage(t, c, 2, 1, 1, "nightly")

	report, err := c.CheckIntegrity(context.Background(), catalog.CheckFull)
	require.NoError(t, err)
	assert.EqualValues(t, 1, report.Duplicates)
	assert.Positive(t, report.Total())
}

func TestCheckOrphansFlagsUnnamedLiveStorage(t *testing.T) {
	c := newTestCatalog(t)
	seedUUIDAndEntity(t, c, 1, 1, "job-a")
	seedStorage(t, c, 1, 1, 1, "")

	orphans, err := c.CheckOrphans(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, orphans.StoragesWithoutName)
}

func TestCheckOrphansFlagsEntryMissingItsTypeRow(t *testing.T) {
	c := newTestCatalog(t)
	seedUUIDAndEntity(t, c, 1, 1, "job-a")
	_, err := c.DB().SQL.ExecContext(context.Background(),
		`INSERT INTO entries (id, uuidId, entityId, type, name, timeLastChanged) VALUES (1, 1, 1, 1, 'no-type-row', 1000)`)
	require.NoError(t, err)

	orphans, checkErr := c.CheckOrphans(context.Background())
	require.NoError(t, checkErr)
	assert.EqualValues(t, 1, orphans.EntriesWithoutTypeRow)
}

func TestCheckOrphansFlagsNewestRowWithoutEntry(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.DB().SQL.ExecContext(context.Background(),
		`INSERT INTO entryNewest (id, uuidId, entityId, entryId, type, name, timeLastChanged, size) VALUES (1, 1, 1, 99, 1, 'ghost', 1000, 0)`)
	require.NoError(t, err)

	orphans, checkErr := c.CheckOrphans(context.Background())
	require.NoError(t, checkErr)
	assert.EqualValues(t, 1, orphans.NewestWithoutEntry)
}

func TestCheckDuplicatesCountsOnlyAdjacentRepeats(t *testing.T) {
	c := newTestCatalog(t)
	seedUUIDAndEntity(t, c, 1, 1, "job-a")
	seedStorage(t, c, 1, 1, 1, "alpha")
	seedStorage(t, c, 2, 1, 1, "alpha")
	seedStorage(t, c, 3, 1, 1, "beta")

	dupes, err := c.CheckDuplicates(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, dupes)
}
