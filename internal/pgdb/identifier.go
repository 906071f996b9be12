package pgdb

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidIdentifier is returned when a schema, table or column name
// cannot be safely embedded in SQL. It is a hard error: an unsafe name is
// never escaped or stripped into something "close enough".
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedWords are PostgreSQL reserved keywords that are rejected outright
// as identifiers even though they match the allow-list pattern.
var reservedWords = map[string]bool{
	"all": true, "analyse": true, "analyze": true, "and": true, "any": true,
	"array": true, "as": true, "asc": true, "asymmetric": true, "both": true,
	"case": true, "cast": true, "check": true, "collate": true, "column": true,
	"constraint": true, "create": true, "current_catalog": true,
	"current_date": true, "current_role": true, "current_time": true,
	"current_timestamp": true, "current_user": true, "default": true,
	"deferrable": true, "desc": true, "distinct": true, "do": true,
	"else": true, "end": true, "except": true, "false": true, "fetch": true,
	"for": true, "foreign": true, "from": true, "grant": true, "group": true,
	"having": true, "in": true, "initially": true, "intersect": true,
	"into": true, "lateral": true, "leading": true, "limit": true,
	"localtime": true, "localtimestamp": true, "not": true, "null": true,
	"offset": true, "on": true, "only": true, "or": true, "order": true,
	"placing": true, "primary": true, "references": true, "returning": true,
	"select": true, "session_user": true, "some": true, "symmetric": true,
	"table": true, "then": true, "to": true, "trailing": true, "true": true,
	"union": true, "unique": true, "user": true, "using": true,
	"variadic": true, "when": true, "where": true, "window": true, "with": true,
}

// Quote validates name against the identifier allow-list and returns it
// double-quoted for embedding in a statement. Case is preserved exactly:
// Postgres is case-sensitive on quoted identifiers, and silently folding
// case would point the statement at a different object.
//
// Quote is pure and total over valid input; the same name always yields
// the same quoted form. Invalid input fails with ErrInvalidIdentifier.
func Quote(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidIdentifier)
	}
	if !identifierPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	if reservedWords[strings.ToLower(name)] {
		return "", fmt.Errorf("%w: %q is a reserved word", ErrInvalidIdentifier, name)
	}
	return `"` + name + `"`, nil
}

// QuoteQualified quotes a schema-qualified table name.
func QuoteQualified(schema, table string) (string, error) {
	qs, err := Quote(schema)
	if err != nil {
		return "", err
	}
	qt, err := Quote(table)
	if err != nil {
		return "", err
	}
	return qs + "." + qt, nil
}

var indexNameCleaner = regexp.MustCompile(`[^A-Za-z0-9_]`)

// SpatialIndexSQL builds the GIST index statement for a table's geometry
// column. The index name is derived from schema, table and column with any
// unsafe characters replaced, then validated like every other identifier.
func SpatialIndexSQL(schema, table, geomColumn string) (string, error) {
	qualified, err := QuoteQualified(schema, table)
	if err != nil {
		return "", err
	}
	qg, err := Quote(geomColumn)
	if err != nil {
		return "", err
	}
	name := indexNameCleaner.ReplaceAllString(
		fmt.Sprintf("%s_%s_%s_idx", schema, table, geomColumn), "_")
	qn, err := Quote(name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (%s)",
		qn, qualified, qg), nil
}
