package catalog_test

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idxctl/idxctl/internal/catalog"
	"github.com/idxctl/idxctl/internal/catalogdb"
	"github.com/idxctl/idxctl/internal/catalogdb/sqlitedialect"
	"github.com/idxctl/idxctl/internal/catalogerr"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func newRunDB(t *testing.T) *catalogdb.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return &catalogdb.DB{
		SQL:     sqlDB,
		Dialect: sqlitedialect.New(),
		URI:     catalogdb.URI{Backend: catalogdb.BackendSQLite, Path: ":memory:"},
	}
}

func TestRunCreateThenInfoReportsEmptyCatalog(t *testing.T) {
	db := newRunDB(t)
	var buf bytes.Buffer
	ops := catalog.Operations{Create: true, CreateTriggers: true, CreateIndices: true, CreateFTS: true, Info: true}
	require.NoError(t, catalog.Run(context.Background(), db, ops, &buf))
	assert.Contains(t, buf.String(), "entries:        0")
}

func TestRunCheckReturningFindingsIsAnIntegrityViolation(t *testing.T) {
	db := newRunDB(t)
	var buf bytes.Buffer
	setup := catalog.Operations{Create: true, CreateTriggers: true, CreateIndices: true, CreateFTS: true}
	require.NoError(t, catalog.Run(context.Background(), db, setup, &buf))

	// An unnamed, live storage row is a check-orphaned finding.
	_, err := db.SQL.ExecContext(context.Background(),
		`INSERT INTO uuids (id, jobUuid) VALUES (1, 'job-1')`)
	require.NoError(t, err)
	_, err = db.SQL.ExecContext(context.Background(),
		`INSERT INTO entities (id, uuidId, jobUuid, created) VALUES (1, 1, 'job-1', 1000)`)
	require.NoError(t, err)
	_, err = db.SQL.ExecContext(context.Background(),
		`INSERT INTO storages (id, uuidId, entityId, name, created, state) VALUES (1, 1, 1, '', 1000, 0)`)
	require.NoError(t, err)

	buf.Reset()
	runErr := catalog.Run(context.Background(), db, catalog.Operations{Check: true}, &buf)
	require.Error(t, runErr)
	assert.True(t, catalogerr.Is(runErr, catalogerr.ClassIntegrityViolation))
	assert.Equal(t, 1, catalogerr.ExitCode(runErr))
}

func TestRunQuietSuppressesStepLines(t *testing.T) {
	db := newRunDB(t)
	var buf bytes.Buffer
	ops := catalog.Operations{Create: true, Quiet: true}
	require.NoError(t, catalog.Run(context.Background(), db, ops, &buf))
	assert.Empty(t, buf.String())
}

func TestRunTimePrintsElapsedLine(t *testing.T) {
	db := newRunDB(t)
	var buf bytes.Buffer
	ops := catalog.Operations{Create: true, Time: true}
	require.NoError(t, catalog.Run(context.Background(), db, ops, &buf))
	assert.Contains(t, buf.String(), "elapsed:")
}

func TestRunPassThroughQueryPrintsResultSet(t *testing.T) {
	db := newRunDB(t)
	var buf bytes.Buffer
	setup := catalog.Operations{Create: true}
	require.NoError(t, catalog.Run(context.Background(), db, setup, &buf))

	buf.Reset()
	ops := catalog.Operations{Query: "SELECT 1 AS one"}
	require.NoError(t, catalog.Run(context.Background(), db, ops, &buf))
	assert.Contains(t, buf.String(), "one")
	assert.Contains(t, buf.String(), "1")
}
