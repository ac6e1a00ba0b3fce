package mariadialect_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogdb/mariadialect"
)

func TestTraits(t *testing.T) {
	d := mariadialect.New()
	assert.Equal(t, catalogdb.BackendMariaDB, d.Backend())
	assert.Equal(t, "?", d.Placeholder(1))
	assert.False(t, d.CanDDLInTransaction())
}

func TestCreateTableStatementsDeclareInlineFulltextIndices(t *testing.T) {
	d := mariadialect.New()
	joined := strings.Join(d.CreateTableStatements(), "\n")
	assert.Contains(t, joined, "FULLTEXT KEY ftx_storages_name")
	assert.Contains(t, joined, "FULLTEXT KEY ftx_entries_name")
	assert.Contains(t, joined, "ENGINE=InnoDB")
}

func TestHasNoFTSMirrorTables(t *testing.T) {
	d := mariadialect.New()
	assert.Empty(t, d.CreateFTSTables())
	assert.Empty(t, d.DropFTSTables())
	assert.NoError(t, d.PopulateFTSStorages(context.Background(), nil))
}

func TestBuildFTSMatchPredicateUsesBooleanModeAgainst(t *testing.T) {
	d := mariadialect.New()
	clause, args := d.BuildFTSMatchPredicate("storages", "name", "nightly backup")
	assert.Contains(t, clause, "AGAINST")
	assert.Contains(t, clause, "BOOLEAN MODE")
	assert.Len(t, args, 1)
}

func TestCreateIndexStatementsIsEmptyBecauseIndicesAreInline(t *testing.T) {
	d := mariadialect.New()
	assert.Empty(t, d.CreateIndexStatements())
}
