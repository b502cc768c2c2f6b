// Package pragma registers the fsqlite-specific runtime knobs
// (journal_mode, synchronous, cache_size, page_size, busy_timeout_ms,
// fsqlite.serializable, fsqlite.mode, raptorq_overhead,
// raptorq_write_merge) as config.Param values, and parses
// `PRAGMA name=value` / `PRAGMA name` statements against them.
package pragma

import (
	"strings"

	"github.com/leftmike/frankensqlite/config"
	"github.com/leftmike/frankensqlite/dberr"
)

var (
	JournalMode      string
	Synchronous      string
	CacheSize        int64
	PageSize         int64
	BusyTimeoutMs    int64
	Serializable     bool
	Mode             string
	RaptorQOverhead  float64
	WriteMergeLadder bool
)

func init() {
	config.StringParam(&JournalMode, "journal_mode", "wal", config.Default)
	config.StringParam(&Synchronous, "synchronous", "full", config.Default)
	config.Int64Param(&CacheSize, "cache_size", 2000, config.Default)
	config.Int64Param(&PageSize, "page_size", 4096, config.NoUpdate)
	config.Int64Param(&BusyTimeoutMs, "busy_timeout_ms", 5000, config.Default)
	config.BoolParam(&Serializable, "fsqlite.serializable", true, config.Default)
	config.StringParam(&Mode, "fsqlite.mode", "deferred", config.Default)
	config.Float64Param(&RaptorQOverhead, "raptorq_overhead", 20, config.Default)
	config.BoolParam(&WriteMergeLadder, "raptorq_write_merge", false, config.Default)
}

// Statement is a parsed `PRAGMA name[=value]` statement: a nil Value means
// a query form (report the current value) rather than a set.
type Statement struct {
	Name  string
	Value *string
}

// Parse parses the body of a PRAGMA statement (the parser front end strips
// the `PRAGMA` keyword before calling this), accepting both `name = value`
// and bare `name` forms, and the SQLite convention of an optional
// parenthesized value: `name(value)`.
func Parse(body string) (Statement, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Statement{}, dberr.New(dberr.SyntaxError, "pragma: empty statement")
	}
	if eq := strings.IndexByte(body, '='); eq >= 0 {
		name := strings.TrimSpace(body[:eq])
		val := strings.Trim(strings.TrimSpace(body[eq+1:]), "'\"")
		return Statement{Name: name, Value: &val}, nil
	}
	if open := strings.IndexByte(body, '('); open >= 0 && strings.HasSuffix(body, ")") {
		name := strings.TrimSpace(body[:open])
		val := strings.Trim(strings.TrimSpace(body[open+1:len(body)-1]), "'\"")
		return Statement{Name: name, Value: &val}, nil
	}
	return Statement{Name: body}, nil
}

// Apply parses and, if it carries a value, applies stmt to the process-wide
// config registry. A query-form statement (no value) is a no-op here; the
// caller reads the current value back via config.AllParams.
func Apply(body string) error {
	stmt, err := Parse(body)
	if err != nil {
		return err
	}
	if stmt.Value == nil {
		return nil
	}
	if err := config.Update(stmt.Name, *stmt.Value); err != nil {
		return dberr.Wrap(dberr.SyntaxError, err, "pragma: %s", stmt.Name)
	}
	return nil
}

// Get returns the current string form of name, or ok=false if no such
// pragma is registered.
func Get(name string) (string, bool) {
	for _, p := range config.AllParams() {
		if p.Name == name {
			return p.Val.String(), true
		}
	}
	return "", false
}
