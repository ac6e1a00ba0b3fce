package sqlitedialect_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogdb/sqlitedialect"
)

func TestTraits(t *testing.T) {
	d := sqlitedialect.New()
	assert.Equal(t, catalogdb.BackendSQLite, d.Backend())
	assert.Equal(t, "?", d.Placeholder(1))
	assert.Equal(t, "?", d.Placeholder(7))
	assert.True(t, d.CanDDLInTransaction())
	assert.True(t, d.SupportsAnalyzeCommand())
}

func TestCreateTableStatementsDeclareEveryTableOnce(t *testing.T) {
	d := sqlitedialect.New()
	stmts := d.CreateTableStatements()
	seen := map[string]bool{}
	for _, stmt := range stmts {
		for _, table := range []string{"meta", "uuids", "entities", "storages", "entries",
			"entryNewest", "entryFragments", "fileEntries", "imageEntries", "hardlinkEntries",
			"directoryEntries", "linkEntries", "specialEntries", "skippedEntries"} {
			if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS "+table+" ") {
				assert.False(t, seen[table], "table %s declared more than once", table)
				seen[table] = true
			}
		}
	}
	for _, table := range []string{"meta", "uuids", "entities", "storages", "entries",
		"entryNewest", "entryFragments", "fileEntries", "skippedEntries"} {
		assert.True(t, seen[table], "table %s never declared", table)
	}
}

func TestFTSTablesUseContentlessFTS5(t *testing.T) {
	d := sqlitedialect.New()
	for _, stmt := range d.CreateFTSTables() {
		assert.Contains(t, stmt, "USING fts5")
		assert.Contains(t, stmt, "content=''")
		assert.Contains(t, stmt, "contentless_delete=1")
	}
}

func TestDropStatementsCoverEveryTableName(t *testing.T) {
	d := sqlitedialect.New()
	drops := d.DropStatements(catalogdb.KindTable)
	joined := strings.Join(drops, "\n")
	for _, table := range []string{"entries", "storages", "entities", "uuids", "entryFragments"} {
		assert.Contains(t, joined, "DROP TABLE IF EXISTS "+table)
	}
}
