package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

func init() {
	RegisterDialect(&Dialect{
		Name:          "sqlite",
		Driver:        "sqlite",
		Goose:         "sqlite3",
		MigrationsDir: "sqlite",
		placeholder:   func(int) string { return "?" },
		normalizeDSN:  sqliteDSN,
		isUnique:      sqliteErrCode(sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY),
		isForeignKey:  sqliteErrCode(sqlitelib.SQLITE_CONSTRAINT_FOREIGNKEY),
		limitOffset:   ansiLimitOffset,
	})
}

// sqliteDSN accepts a bare file path, a sqlite:// URL, or an empty string
// (which falls back to a throwaway file under the temp directory, matching
// the behavior when no connection string is configured).
func sqliteDSN(connStr string) (string, error) {
	path := connStr
	// In sqlite:///tmp/reg.sqlite the third slash belongs to the path.
	path = strings.TrimPrefix(path, "sqlite://")
	if path == "" {
		path = filepath.Join(os.TempDir(), fmt.Sprintf("registry-%s.sqlite", uuid.NewString()))
	}
	if path == ":memory:" {
		return ":memory:?_pragma=foreign_keys(1)", nil
	}
	if strings.Contains(path, "?") {
		return path, nil
	}
	return path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
}

func sqliteErrCode(codes ...int) func(error) bool {
	return func(err error) bool {
		var se *sqlite.Error
		if !errors.As(err, &se) {
			return false
		}
		for _, c := range codes {
			if se.Code() == c {
				return true
			}
		}
		return false
	}
}
