package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type migration struct {
	version int64
	file    string
}

// collect picks the up migrations out of a directory listing and orders
// them by version. Two files with the same version are an error.
func collect(names []string) ([]migration, error) {
	var out []migration
	seen := make(map[int64]string)
	for _, name := range names {
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		ver, err := versionFromFile(name)
		if err != nil {
			return nil, fmt.Errorf("parse version from %s: %w", name, err)
		}
		if prev, dup := seen[ver]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, name, ver)
		}
		seen[ver] = name
		out = append(out, migration{version: ver, file: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// versionFromFile extracts the leading integer from a migration filename.
// "001_ledger.up.sql" → 1
func versionFromFile(filename string) (int64, error) {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("unexpected filename format")
	}
	return strconv.ParseInt(prefix, 10, 64)
}
