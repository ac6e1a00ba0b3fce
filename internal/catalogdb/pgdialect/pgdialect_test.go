package pgdialect_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogdb/pgdialect"
)

func TestTraits(t *testing.T) {
	d := pgdialect.New()
	assert.Equal(t, catalogdb.BackendPostgreSQL, d.Backend())
	assert.Equal(t, "$1", d.Placeholder(1))
	assert.Equal(t, "$7", d.Placeholder(7))
	assert.False(t, d.CanDDLInTransaction())
}

func TestCreateFTSTablesUseTsvectorAndGIN(t *testing.T) {
	d := pgdialect.New()
	joined := strings.Join(d.CreateFTSTables(), "\n")
	assert.Contains(t, joined, "tsvector")
	assert.Contains(t, joined, "USING GIN")
}

func TestBuildFTSMatchPredicateUsesToTsquery(t *testing.T) {
	d := pgdialect.New()
	clause, args := d.BuildFTSMatchPredicate("storages", "name", "nightly backup")
	assert.Contains(t, clause, "to_tsquery")
	assert.Contains(t, clause, "FTS_storages")
	assert.Len(t, args, 1)
}

func TestCreateTableStatementsUseBigintIdentityColumns(t *testing.T) {
	d := pgdialect.New()
	joined := strings.Join(d.CreateTableStatements(), "\n")
	assert.Contains(t, joined, "BIGINT PRIMARY KEY")
}
