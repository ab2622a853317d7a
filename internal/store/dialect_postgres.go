package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

func init() {
	RegisterDialect(&Dialect{
		Name:          "pgsql",
		Driver:        "pgx",
		Goose:         "postgres",
		MigrationsDir: "postgres",
		placeholder:   func(n int) string { return fmt.Sprintf("$%d", n) },
		normalizeDSN:  func(connStr string) (string, error) { return connStr, nil },
		isUnique:      pgErrCode("23505"),
		isForeignKey:  pgErrCode("23503"),
		limitOffset:   ansiLimitOffset,
	})
}

func pgErrCode(codes ...string) func(error) bool {
	return func(err error) bool {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			return false
		}
		for _, c := range codes {
			if pgErr.Code == c {
				return true
			}
		}
		return false
	}
}
