package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/idxctl/idxctl/internal/catalog"
	"github.com/idxctl/idxctl/internal/catalogdb"
)

// Flag variables, one block per option group, following the flat
// package-level style the option table of spec.md §6 is bound into.
var (
	configPath string
)

var (
	infoFlag         bool
	infoJobs         string
	infoEntities     string
	infoEntries      string
	infoEntryType    string
	infoStorages     string
	infoLostStorages bool
	infoLostEntries  bool
)

var (
	checkIntegrity  bool
	checkOrphaned   bool
	checkDuplicates bool
	checkFlag       bool
)

var (
	createFlag     bool
	createTriggers bool
	createIndices  bool
	createFTS      bool
	createNewest   string
	createAggEnts  string
	createAggStors string
	createAggAll   bool
)

var (
	cleanOrphaned  bool
	cleanDuplicate bool
	cleanFlag      bool
)

var (
	purgeFlag      bool
	purgeWithError bool
)

var (
	optimizeFlag bool
	reindexFlag  bool
	vacuumTo     string
)

var (
	dropTables   bool
	dropTriggers bool
	dropIndices  bool
)

var (
	transactionFlag bool
	noForeignKeys   bool
	forceFlag       bool
	pipeFlag        bool
	quietFlag       bool
	timeFlag        bool
	explainQuery    bool
)

var importURI string

// parseIDList parses a comma-separated list of integer ids, the form every
// `=<id,...>` option in spec.md §6 takes. An empty string yields a nil
// list, which callers treat as "every live row".
func parseIDList(raw string) (catalog.IDList, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make(catalog.IDList, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", p, err)
		}
		ids = append(ids, n)
	}
	return ids, nil
}

func parseStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseEntryTypeFlag(raw string) (catalogdb.EntryType, error) {
	if raw == "" {
		return catalogdb.EntryAny, nil
	}
	return catalogdb.ParseEntryType(raw)
}
