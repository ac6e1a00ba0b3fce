package catalog_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idxctl/idxctl/internal/catalog"
	"github.com/idxctl/idxctl/internal/catalogdb"
)

func TestSummaryCountsLiveRowsOnly(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedStorage(t, c, 1, 1, 1, "run-1")
	seedStorage(t, c, 2, 1, 1, "run-2")
	seedFileEntry(t, c, 1, 1, 1, 1, "a.txt", 1000, 10)
	_, err := c.DB().SQL.ExecContext(ctx, "UPDATE storages SET deletedFlag = 1 WHERE id = 2")
	require.NoError(t, err)

	s, err := c.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.UUIDCount)
	assert.Equal(t, int64(1), s.EntityCount)
	assert.Equal(t, int64(1), s.StorageCount)
	assert.Equal(t, int64(1), s.EntryCount)
	assert.Equal(t, int64(10), s.TotalEntrySize)
}

func TestPrintEntriesFiltersByEntryType(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedStorage(t, c, 1, 1, 1, "run-1")
	seedFileEntry(t, c, 1, 1, 1, 1, "a.txt", 1000, 10)
	seedDirectoryEntry(t, c, 2, 1, 1, 1, "subdir", 1000)

	var buf bytes.Buffer
	require.NoError(t, c.PrintEntries(ctx, &buf, nil, catalogdb.EntryDirectory))
	assert.Contains(t, buf.String(), "subdir")
	assert.NotContains(t, buf.String(), "a.txt")
}

func TestPrintLostStoragesShowsOnlySoftDeleted(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedStorage(t, c, 1, 1, 1, "run-1")
	seedStorage(t, c, 2, 1, 1, "run-2")
	_, err := c.DB().SQL.ExecContext(ctx, "UPDATE storages SET deletedFlag = 1 WHERE id = 2")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.PrintLostStorages(ctx, &buf))
	assert.Contains(t, buf.String(), "run-2")
	assert.NotContains(t, buf.String(), "run-1")
}

func TestPrintLostEntriesFindsFragmentsWithNoStorage(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedStorage(t, c, 1, 1, 1, "run-1")
	seedFileEntry(t, c, 1, 1, 1, 1, "orphan.txt", 1000, 10)

	_, err := c.DB().SQL.ExecContext(ctx, "DELETE FROM storages WHERE id = 1")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.PrintLostEntries(ctx, &buf))
	assert.Contains(t, buf.String(), "orphan.txt")
}

func TestPrintJobsFiltersByJobUUID(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedUUIDAndEntity(t, c, 2, 2, "job-2")
	seedStorage(t, c, 1, 1, 1, "run-1")
	seedStorage(t, c, 2, 2, 2, "run-2")

	var buf bytes.Buffer
	require.NoError(t, c.PrintJobs(ctx, &buf, []string{"job-2"}))
	assert.Contains(t, buf.String(), "job-2")
	assert.NotContains(t, buf.String(), "job-1")
}

func TestRunQueryPrintsColumnsAndRows(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	seedUUIDAndEntity(t, c, 1, 1, "job-1")

	var buf bytes.Buffer
	require.NoError(t, c.RunQuery(ctx, &buf, "SELECT id, jobUuid FROM uuids"))
	out := buf.String()
	assert.Contains(t, out, "id")
	assert.Contains(t, out, "jobUuid")
	assert.Contains(t, out, "job-1")
}

func TestPrintSummaryFormatsEveryField(t *testing.T) {
	var buf bytes.Buffer
	catalog.PrintSummary(&buf, catalog.CatalogSummary{
		Backend: "sqlite", SchemaVersion: "1", UUIDCount: 1, EntityCount: 2,
		StorageCount: 3, EntryCount: 4, TotalEntrySize: 1024, SkippedCount: 0,
	})
	out := buf.String()
	assert.Contains(t, out, "backend:        sqlite")
	assert.Contains(t, out, "entries:        4")
}
