package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idxctl/idxctl/internal/catalogdb"
)

func TestCreateNewestFullRebuildPicksLatestPerName(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedStorage(t, c, 1, 1, 1, "run-1")
	seedStorage(t, c, 2, 1, 1, "run-2")

	// Two storages each contribute a version of "same.txt"; run-2's is
	// newer and should win the projection.
	seedFileEntry(t, c, 1, 1, 1, 1, "same.txt", 1000, 10)
	seedFileEntry(t, c, 2, 1, 1, 2, "same.txt", 2000, 20)
	seedFileEntry(t, c, 3, 1, 1, 1, "only-in-run1.txt", 1500, 30)

	require.NoError(t, c.CreateNewest(ctx, nil, &catalogdb.NoProgress))

	var entryID, size int64
	require.NoError(t, c.DB().SQL.QueryRowContext(ctx,
		"SELECT entryId, size FROM entryNewest WHERE name = ?", "same.txt").Scan(&entryID, &size))
	assert.Equal(t, int64(2), entryID)
	assert.Equal(t, int64(20), size)

	assert.Equal(t, int64(2), countRows(t, c, "SELECT COUNT(*) FROM entryNewest"))
}

func TestCreateNewestIncrementalRemovesAndReplaces(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedStorage(t, c, 1, 1, 1, "run-1")
	seedStorage(t, c, 2, 1, 1, "run-2")
	seedFileEntry(t, c, 1, 1, 1, 1, "same.txt", 1000, 10)
	seedFileEntry(t, c, 2, 1, 1, 2, "same.txt", 2000, 20)

	require.NoError(t, c.CreateNewest(ctx, nil, &catalogdb.NoProgress))

	// Soft-delete run-2 and re-project just that storage: the surviving
	// contributor from run-1 should take over "same.txt".
	_, err := c.DB().SQL.ExecContext(ctx, "UPDATE storages SET deletedFlag = 1 WHERE id = 2")
	require.NoError(t, err)

	require.NoError(t, c.CreateNewest(ctx, []int64{2}, &catalogdb.NoProgress))

	var entryID int64
	require.NoError(t, c.DB().SQL.QueryRowContext(ctx,
		"SELECT entryId FROM entryNewest WHERE name = ?", "same.txt").Scan(&entryID))
	assert.Equal(t, int64(1), entryID)
}

func TestCreateNewestEmptyCatalogRebuildIsANoop(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	require.NoError(t, c.CreateNewest(ctx, nil, &catalogdb.NoProgress))
	assert.Equal(t, int64(0), countRows(t, c, "SELECT COUNT(*) FROM entryNewest"))
}
