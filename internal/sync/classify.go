package sync

import (
	"sort"

	"github.com/dbfriend/dbfriend/internal/geom"
)

// ClassifyOptions tunes the join between incoming features and existing
// rows.
type ClassifyOptions struct {
	// Table names the target table in reported errors.
	Table string

	// KeyColumn is the join key column present on both sides. When empty
	// the join falls back to the hash of the geometry alone, which still
	// detects pure geometric matches without attribute correlation.
	// Individual rows and features whose key value is null or empty also
	// fall back to their geometry hash, so sparse key columns do not
	// collapse every unkeyed feature onto one empty-string key.
	KeyColumn string

	// Exclude lists attribute columns left out of content hashing, such
	// as database-assigned keys and timestamps.
	Exclude map[string]bool

	// Policy decides between first-match-wins and aborting the table on
	// ambiguous join keys.
	Policy DuplicatePolicy
}

// Classify partitions the dataset's features against the existing rows.
// It is pure: no I/O, deterministic for a given input order.
//
// Each feature lands in exactly one bucket:
//
//	new        no existing row shares its join key
//	updated    a row shares the key but the content hash differs
//	identical  a row shares the key and the hash
//	duplicate  an earlier feature in this dataset already took the key
//
// Existing rows sharing one key are resolved first-match-wins in input
// order; the rest are reported via StaleRows (or, under AbortTable, the
// whole classification fails with AmbiguousMatchError).
func Classify(d *geom.Dataset, existing []ExistingRow, opts ClassifyOptions) (*Classification, error) {
	byKey := make(map[string]*ExistingRow, len(existing))
	stale := make(map[string][]string)
	for i := range existing {
		row := &existing[i]
		key := row.Key
		if opts.KeyColumn == "" || key == "" {
			key = row.GeomHash
		}
		if _, taken := byKey[key]; taken {
			stale[key] = append(stale[key], row.ID)
			continue
		}
		byKey[key] = row
	}

	if opts.Policy == AbortTable && len(stale) > 0 {
		return nil, &AmbiguousMatchError{Table: opts.Table, Keys: sortedKeys(stale)}
	}

	c := &Classification{StaleRows: stale}
	seen := make(map[string]bool, len(d.Features))

	for i := range d.Features {
		f := &d.Features[i]
		var key string
		if opts.KeyColumn != "" {
			key = f.Attr(opts.KeyColumn).String()
		}
		if key == "" {
			key = f.GeomHash()
		}

		if seen[key] {
			if opts.Policy == AbortTable {
				return nil, &AmbiguousMatchError{Table: opts.Table, Keys: []string{key}}
			}
			c.Duplicates = append(c.Duplicates, i)
			continue
		}
		seen[key] = true

		row, ok := byKey[key]
		if !ok {
			c.New = append(c.New, i)
			continue
		}
		if f.HashExcluding(opts.Exclude) == row.Hash {
			c.Identical = append(c.Identical, i)
		} else {
			c.Updated = append(c.Updated, Update{Feature: i, RowID: row.ID})
		}
	}

	return c, nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic error output regardless of map order.
	sort.Strings(keys)
	return keys
}
