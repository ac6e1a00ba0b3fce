package fts_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/idxctl/idxctl/internal/catalogdb/fts"
)

func TestTokenizeSplitsOnNonAlphanumericRuns(t *testing.T) {
	assert.Equal(t, []string{"nightly", "backup", "2026", "tar", "gz"}, fts.Tokenize("nightly-backup_2026.tar.gz"))
}

func TestTokenizeOnEmptyStringYieldsNoTokens(t *testing.T) {
	assert.Empty(t, fts.Tokenize(""))
	assert.Empty(t, fts.Tokenize("   ---   "))
}

func TestTokenizeKeepsNonASCIILetters(t *testing.T) {
	assert.Equal(t, []string{"café", "日本語"}, fts.Tokenize("café/日本語"))
}

func TestNormalizedFormJoinsTokensWithSingleSpaces(t *testing.T) {
	assert.Equal(t, "nightly backup 2026", fts.NormalizedForm("nightly-backup_2026"))
}
