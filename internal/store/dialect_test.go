package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/featgraph/featgraph/pkg/model"
)

func TestGetDialect(t *testing.T) {
	tests := []struct {
		name   string
		driver string
	}{
		{"sqlite", "sqlite"},
		{"pgsql", "pgx"},
		{"mysql", "mysql"},
		{"mariadb", "mysql"},
		{"mssql", "sqlserver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := GetDialect(tt.name)
			if !ok {
				t.Fatalf("dialect %s not registered", tt.name)
			}
			if d.Driver != tt.driver {
				t.Errorf("expected driver %s, got %s", tt.driver, d.Driver)
			}
		})
	}

	if _, ok := GetDialect("SQLite"); !ok {
		t.Error("expected backend names to be case-insensitive")
	}
	if _, ok := GetDialect("cockroach"); ok {
		t.Error("expected unknown backend to be absent")
	}
}

func TestDialect_Rebind(t *testing.T) {
	query := "SELECT 1 FROM entities WHERE entity_id = ? AND entity_type = ?"

	tests := []struct {
		backend string
		want    string
	}{
		{"sqlite", "SELECT 1 FROM entities WHERE entity_id = ? AND entity_type = ?"},
		{"mysql", "SELECT 1 FROM entities WHERE entity_id = ? AND entity_type = ?"},
		{"pgsql", "SELECT 1 FROM entities WHERE entity_id = $1 AND entity_type = $2"},
		{"mssql", "SELECT 1 FROM entities WHERE entity_id = @p1 AND entity_type = @p2"},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			d, ok := GetDialect(tt.backend)
			if !ok {
				t.Fatalf("dialect %s not registered", tt.backend)
			}
			if got := d.Rebind(query); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDialect_LimitOffset(t *testing.T) {
	tests := []struct {
		backend string
		limit   int
		offset  int
		want    string
	}{
		{"sqlite", 10, 0, " LIMIT 10"},
		{"pgsql", 10, 20, " LIMIT 10 OFFSET 20"},
		{"mssql", 10, 0, " OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY"},
		{"mssql", 10, 20, " OFFSET 20 ROWS FETCH NEXT 10 ROWS ONLY"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%d_%d", tt.backend, tt.limit, tt.offset), func(t *testing.T) {
			d, ok := GetDialect(tt.backend)
			if !ok {
				t.Fatalf("dialect %s not registered", tt.backend)
			}
			if got := d.LimitOffset(tt.limit, tt.offset); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDialect_NormalizeDSN(t *testing.T) {
	t.Run("sqlite strips url prefix and adds pragmas", func(t *testing.T) {
		d, _ := GetDialect("sqlite")
		dsn, err := d.NormalizeDSN("sqlite:///tmp/reg.sqlite")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(dsn, "/tmp/reg.sqlite?") {
			t.Errorf("expected path to survive, got %q", dsn)
		}
		if !strings.Contains(dsn, "_pragma=foreign_keys(1)") {
			t.Errorf("expected foreign_keys pragma, got %q", dsn)
		}
	})

	t.Run("sqlite empty falls back to temp file", func(t *testing.T) {
		d, _ := GetDialect("sqlite")
		dsn, err := d.NormalizeDSN("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(dsn, "registry-") {
			t.Errorf("expected generated temp path, got %q", dsn)
		}
	})

	t.Run("mysql forces parseTime", func(t *testing.T) {
		d, _ := GetDialect("mysql")
		dsn, err := d.NormalizeDSN("user:pass@tcp(db:3306)/feathr")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(dsn, "parseTime=true") {
			t.Errorf("expected parseTime=true, got %q", dsn)
		}
	})

	t.Run("mysql rejects dsn without database", func(t *testing.T) {
		d, _ := GetDialect("mysql")
		if _, err := d.NormalizeDSN("user:pass@tcp(db:3306)"); err == nil {
			t.Error("expected error for malformed DSN")
		}
	})
}

func TestDialect_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		backend    string
		err        error
		unique     bool
		foreignKey bool
	}{
		{
			name:    "postgres unique",
			backend: "pgsql",
			err:     &pgconn.PgError{Code: "23505"},
			unique:  true,
		},
		{
			name:       "postgres foreign key",
			backend:    "pgsql",
			err:        &pgconn.PgError{Code: "23503"},
			foreignKey: true,
		},
		{
			name:    "mysql duplicate entry",
			backend: "mysql",
			err:     &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"},
			unique:  true,
		},
		{
			name:       "mysql missing parent row",
			backend:    "mariadb",
			err:        &mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"},
			foreignKey: true,
		},
		{
			name:    "mssql unique index",
			backend: "mssql",
			err:     mssql.Error{Number: 2627},
			unique:  true,
		},
		{
			name:       "mssql constraint conflict",
			backend:    "mssql",
			err:        mssql.Error{Number: 547},
			foreignKey: true,
		},
		{
			name:    "unrelated error",
			backend: "pgsql",
			err:     errors.New("connection reset"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := GetDialect(tt.backend)
			if !ok {
				t.Fatalf("dialect %s not registered", tt.backend)
			}
			if got := d.IsUniqueViolation(tt.err); got != tt.unique {
				t.Errorf("IsUniqueViolation = %v, expected %v", got, tt.unique)
			}
			if got := d.IsForeignKeyViolation(tt.err); got != tt.foreignKey {
				t.Errorf("IsForeignKeyViolation = %v, expected %v", got, tt.foreignKey)
			}
		})
	}
}

// The query layer writes `?` placeholders everywhere; a postgres-flavored
// queries value must hit the wire with $N instead.
func TestQueries_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	d, ok := GetDialect("pgsql")
	if !ok {
		t.Fatal("pgsql dialect not registered")
	}
	q := queries{db: db, d: d}

	mock.ExpectQuery(`SELECT (.+) FROM entities WHERE entity_id = \$1 AND deleted_at IS NULL`).
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"entity_id"}))

	if _, err := q.GetEntityByID(context.Background(), "id-1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound from empty result, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
