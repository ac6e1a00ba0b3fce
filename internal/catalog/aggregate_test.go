package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idxctl/idxctl/internal/catalogdb"
)

func TestAggregateEntitiesRollsUpFileAndDirectoryCounts(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedStorage(t, c, 1, 1, 1, "run-1")
	seedFileEntry(t, c, 1, 1, 1, 1, "a.txt", 1000, 10)
	seedFileEntry(t, c, 2, 1, 1, 1, "b.txt", 1000, 20)
	seedDirectoryEntry(t, c, 3, 1, 1, 1, "subdir", 1000)

	require.NoError(t, c.AggregateEntities(ctx, nil, &catalogdb.NoProgress))

	var fileCount, fileSize, dirCount, entryCount, entrySize int64
	require.NoError(t, c.DB().SQL.QueryRowContext(ctx,
		`SELECT totalFileCount, totalFileSize, totalDirectoryCount, totalEntryCount, totalEntrySize
		 FROM entities WHERE id = 1`).
		Scan(&fileCount, &fileSize, &dirCount, &entryCount, &entrySize))

	assert.Equal(t, int64(2), fileCount)
	assert.Equal(t, int64(30), fileSize)
	assert.Equal(t, int64(1), dirCount)
	assert.Equal(t, int64(3), entryCount)
	assert.Equal(t, int64(30), entrySize)
}

func TestAggregateStoragesCountsOnlyItsOwnFragments(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedStorage(t, c, 1, 1, 1, "run-1")
	seedStorage(t, c, 2, 1, 1, "run-2")
	seedFileEntry(t, c, 1, 1, 1, 1, "a.txt", 1000, 10)
	seedFileEntry(t, c, 2, 1, 1, 2, "b.txt", 1000, 20)

	require.NoError(t, c.AggregateStorages(ctx, nil, &catalogdb.NoProgress))

	var count, size int64
	require.NoError(t, c.DB().SQL.QueryRowContext(ctx,
		"SELECT totalFileCount, totalFileSize FROM storages WHERE id = 1").Scan(&count, &size))
	assert.Equal(t, int64(1), count)
	assert.Equal(t, int64(10), size)

	require.NoError(t, c.DB().SQL.QueryRowContext(ctx,
		"SELECT totalFileCount, totalFileSize FROM storages WHERE id = 2").Scan(&count, &size))
	assert.Equal(t, int64(1), count)
	assert.Equal(t, int64(20), size)
}

func TestAggregateEntitiesHonorsExplicitIDList(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedUUIDAndEntity(t, c, 2, 2, "job-2")
	seedStorage(t, c, 1, 1, 1, "run-1")
	seedStorage(t, c, 2, 2, 2, "run-2")
	seedFileEntry(t, c, 1, 1, 1, 1, "a.txt", 1000, 10)
	seedFileEntry(t, c, 2, 2, 2, 2, "b.txt", 1000, 20)

	require.NoError(t, c.AggregateEntities(ctx, []int64{1}, &catalogdb.NoProgress))

	var fileCount1, fileCount2 int64
	require.NoError(t, c.DB().SQL.QueryRowContext(ctx,
		"SELECT totalFileCount FROM entities WHERE id = 1").Scan(&fileCount1))
	require.NoError(t, c.DB().SQL.QueryRowContext(ctx,
		"SELECT totalFileCount FROM entities WHERE id = 2").Scan(&fileCount2))

	assert.Equal(t, int64(1), fileCount1)
	assert.Equal(t, int64(0), fileCount2)
}

func TestAggregateEntitiesNewestCountsFollowProjection(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	seedUUIDAndEntity(t, c, 1, 1, "job-1")
	seedStorage(t, c, 1, 1, 1, "run-1")
	seedStorage(t, c, 2, 1, 1, "run-2")
	seedFileEntry(t, c, 1, 1, 1, 1, "same.txt", 1000, 10)
	seedFileEntry(t, c, 2, 1, 1, 2, "same.txt", 2000, 20)

	require.NoError(t, c.CreateNewest(ctx, nil, &catalogdb.NoProgress))
	require.NoError(t, c.AggregateEntities(ctx, nil, &catalogdb.NoProgress))

	var fileCountNewest, fileSizeNewest int64
	require.NoError(t, c.DB().SQL.QueryRowContext(ctx,
		"SELECT totalFileCountNewest, totalFileSizeNewest FROM entities WHERE id = 1").
		Scan(&fileCountNewest, &fileSizeNewest))

	assert.Equal(t, int64(1), fileCountNewest)
	assert.Equal(t, int64(20), fileSizeNewest)
}
