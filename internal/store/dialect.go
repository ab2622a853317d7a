// Package store implements the storage backend adapter: a single SQL store
// over database/sql, parametrized by a Dialect that captures the differences
// between the supported engines (placeholders, DSN normalization, driver
// error classification, migrations).
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Dialect describes one supported SQL backend.
type Dialect struct {
	// Name is the backend identifier used in configuration
	// (sqlite, pgsql, mysql, mariadb, mssql).
	Name string

	// Driver is the database/sql driver name.
	Driver string

	// Goose is the goose migration dialect.
	Goose string

	// MigrationsDir is the embedded migrations subdirectory.
	MigrationsDir string

	placeholder  func(n int) string
	normalizeDSN func(connStr string) (string, error)
	isUnique     func(err error) bool
	isForeignKey func(err error) bool
	limitOffset  func(limit, offset int) string
}

// Placeholder renders the n-th (1-based) query parameter placeholder.
func (d *Dialect) Placeholder(n int) string { return d.placeholder(n) }

// Rebind rewrites a query written with `?` placeholders into the dialect's
// placeholder style.
func (d *Dialect) Rebind(query string) string {
	if d.placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeDSN converts a user-supplied connection string into the form the
// driver expects, applying backend defaults.
func (d *Dialect) NormalizeDSN(connStr string) (string, error) {
	return d.normalizeDSN(connStr)
}

// IsUniqueViolation reports whether err is a unique-constraint violation.
func (d *Dialect) IsUniqueViolation(err error) bool {
	return err != nil && d.isUnique(err)
}

// IsForeignKeyViolation reports whether err is a foreign-key violation.
func (d *Dialect) IsForeignKeyViolation(err error) bool {
	return err != nil && d.isForeignKey(err)
}

// LimitOffset renders a pagination clause. The query it is appended to must
// carry an ORDER BY (required by the mssql form).
func (d *Dialect) LimitOffset(limit, offset int) string {
	return d.limitOffset(limit, offset)
}

var (
	dialectMu sync.RWMutex
	dialects  = make(map[string]*Dialect)
)

// RegisterDialect adds a dialect to the registry. Called by dialect
// implementations in their init() functions.
func RegisterDialect(d *Dialect) {
	dialectMu.Lock()
	defer dialectMu.Unlock()
	dialects[d.Name] = d
}

// GetDialect retrieves a dialect by backend name.
func GetDialect(name string) (*Dialect, bool) {
	dialectMu.RLock()
	defer dialectMu.RUnlock()
	d, ok := dialects[strings.ToLower(name)]
	return d, ok
}

// ListDialects returns all registered backend names (sorted).
func ListDialects() []string {
	dialectMu.RLock()
	defer dialectMu.RUnlock()
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownDialectError is returned when an unsupported backend is requested.
type UnknownDialectError struct {
	Name      string
	Available []string
}

func (e *UnknownDialectError) Error() string {
	return fmt.Sprintf("unknown database backend %q (available: %v)", e.Name, e.Available)
}

func ansiLimitOffset(limit, offset int) string {
	if offset > 0 {
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}
