package store

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

func init() {
	// MariaDB speaks the MySQL protocol; the two share everything but the
	// configuration name.
	for _, name := range []string{"mysql", "mariadb"} {
		RegisterDialect(&Dialect{
			Name:          name,
			Driver:        "mysql",
			Goose:         "mysql",
			MigrationsDir: "mysql",
			placeholder:   func(int) string { return "?" },
			normalizeDSN:  mysqlDSN,
			isUnique:      mysqlErrNumber(1062),
			isForeignKey:  mysqlErrNumber(1216, 1217, 1451, 1452),
			limitOffset:   ansiLimitOffset,
		})
	}
}

// mysqlDSN ensures parseTime is enabled so TIMESTAMP columns scan into
// time.Time.
func mysqlDSN(connStr string) (string, error) {
	cfg, err := mysql.ParseDSN(connStr)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	if !strings.Contains(cfg.Collation, "utf8") {
		cfg.Collation = "utf8mb4_unicode_ci"
	}
	return cfg.FormatDSN(), nil
}

func mysqlErrNumber(numbers ...uint16) func(error) bool {
	return func(err error) bool {
		var myErr *mysql.MySQLError
		if !errors.As(err, &myErr) {
			return false
		}
		for _, n := range numbers {
			if myErr.Number == n {
				return true
			}
		}
		return false
	}
}
