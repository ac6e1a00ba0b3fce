package catalogdb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idxctl/idxctl/internal/catalogdb"
)

func TestEntryTypeStringAndParseEntryTypeRoundTrip(t *testing.T) {
	for _, et := range []catalogdb.EntryType{
		catalogdb.EntryAny, catalogdb.EntryFile, catalogdb.EntryImage,
		catalogdb.EntryDirectory, catalogdb.EntryLink, catalogdb.EntryHardlink, catalogdb.EntrySpecial,
	} {
		name := et.String()
		parsed, err := catalogdb.ParseEntryType(name)
		require.NoError(t, err)
		assert.Equal(t, et, parsed)
	}
}

func TestParseEntryTypeRejectsUnknownName(t *testing.T) {
	_, err := catalogdb.ParseEntryType("symlink")
	assert.Error(t, err)
}

func TestEntryTypeStringOnUnknownValueIsUnknown(t *testing.T) {
	assert.Equal(t, "unknown", catalogdb.EntryType(99).String())
}
