package catalogdb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogdb/sqlitedialect"
)

func TestValuesClauseBuildsAFullyClosedGroup(t *testing.T) {
	d := sqlitedialect.New()
	assert.Equal(t, "(?)", catalogdb.ValuesClause(d, 1))
	assert.Equal(t, "(?,?,?)", catalogdb.ValuesClause(d, 3))
}

func TestInClauseBuildsPlaceholdersAndArgs(t *testing.T) {
	d := sqlitedialect.New()
	clause, args := catalogdb.InClause(d, "id", []int64{1, 2, 3}, 1)
	assert.Equal(t, "id IN (?,?,?)", clause)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, args)
}

func TestInClauseOnEmptyIDsIsUnsatisfiable(t *testing.T) {
	d := sqlitedialect.New()
	clause, args := catalogdb.InClause(d, "id", nil, 1)
	assert.Equal(t, "1=0", clause)
	assert.Nil(t, args)
}

func TestBatchIDsSplitsIntoBoundedChunks(t *testing.T) {
	ids := []int64{1, 2, 3, 4, 5}
	batches := catalogdb.BatchIDs(ids, 2)
	assert.Equal(t, [][]int64{{1, 2}, {3, 4}, {5}}, batches)
}

func TestBatchIDsWithNonPositiveSizeReturnsOneBatch(t *testing.T) {
	ids := []int64{1, 2, 3}
	batches := catalogdb.BatchIDs(ids, 0)
	assert.Equal(t, [][]int64{{1, 2, 3}}, batches)
}
