package store

import (
	"errors"
	"fmt"

	mssql "github.com/microsoft/go-mssqldb"
)

func init() {
	RegisterDialect(&Dialect{
		Name:          "mssql",
		Driver:        "sqlserver",
		Goose:         "mssql",
		MigrationsDir: "mssql",
		placeholder:   func(n int) string { return fmt.Sprintf("@p%d", n) },
		normalizeDSN:  func(connStr string) (string, error) { return connStr, nil },
		isUnique:      mssqlErrNumber(2601, 2627),
		isForeignKey:  mssqlErrNumber(547),
		limitOffset: func(limit, offset int) string {
			return fmt.Sprintf(" OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit)
		},
	})
}

func mssqlErrNumber(numbers ...int32) func(error) bool {
	return func(err error) bool {
		var msErr mssql.Error
		if !errors.As(err, &msErr) {
			return false
		}
		for _, n := range numbers {
			if msErr.Number == n {
				return true
			}
		}
		return false
	}
}
