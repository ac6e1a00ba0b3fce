package catalogdb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idxctl/idxctl/internal/catalogdb"
)

func TestParseURIRecognizesEachScheme(t *testing.T) {
	u, err := catalogdb.ParseURI("sqlite:/var/idxctl/catalog.db")
	require.NoError(t, err)
	assert.Equal(t, catalogdb.BackendSQLite, u.Backend)
	assert.Equal(t, "/var/idxctl/catalog.db", u.Path)

	u, err = catalogdb.ParseURI("/var/idxctl/catalog.db")
	require.NoError(t, err)
	assert.Equal(t, catalogdb.BackendSQLite, u.Backend)
	assert.Equal(t, "/var/idxctl/catalog.db", u.Path)

	u, err = catalogdb.ParseURI("mariadb:db.example.com:backup")
	require.NoError(t, err)
	assert.Equal(t, catalogdb.BackendMariaDB, u.Backend)
	assert.Equal(t, "db.example.com", u.Server)
	assert.Equal(t, "backup", u.User)
	assert.False(t, u.HasPW)

	u, err = catalogdb.ParseURI("postgresql:db.example.com:backup:s3cr3t")
	require.NoError(t, err)
	assert.Equal(t, catalogdb.BackendPostgreSQL, u.Backend)
	assert.True(t, u.HasPW)
	assert.Equal(t, "s3cr3t", u.Password)
}

func TestParseURIRejectsMalformedClientServerForm(t *testing.T) {
	_, err := catalogdb.ParseURI("mariadb:onlyserver")
	assert.Error(t, err)

	_, err = catalogdb.ParseURI("")
	assert.Error(t, err)
}

func TestServerHostPortAppliesDefaultWhenOmitted(t *testing.T) {
	u := catalogdb.URI{Server: "db.example.com"}
	host, port := u.ServerHostPort(3306)
	assert.Equal(t, "db.example.com", host)
	assert.Equal(t, 3306, port)

	u = catalogdb.URI{Server: "db.example.com:5432"}
	host, port = u.ServerHostPort(3306)
	assert.Equal(t, "db.example.com", host)
	assert.Equal(t, 5432, port)
}

func TestPasswordOrEnvFallsBackToBackendEnvVar(t *testing.T) {
	u := catalogdb.URI{Backend: catalogdb.BackendPostgreSQL}
	t.Setenv("IDXCTL_POSTGRESQL_PASSWORD", "from-env")
	assert.Equal(t, "from-env", u.PasswordOrEnv())

	u.HasPW = true
	u.Password = "from-uri"
	assert.Equal(t, "from-uri", u.PasswordOrEnv())
}
