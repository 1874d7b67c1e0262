package sqlstore

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	// drivers selectable through Open
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect describes the SQL differences the store cares about
type Dialect struct {
	Name        string
	Placeholder sq.PlaceholderFormat

	// Returning is set when generated keys are read back with RETURNING;
	// otherwise LastInsertId is used
	Returning bool
}

var (
	Postgres = Dialect{Name: "postgres", Placeholder: sq.Dollar, Returning: true}
	SQLite   = Dialect{Name: "sqlite3", Placeholder: sq.Question}
	MySQL    = Dialect{Name: "mysql", Placeholder: sq.Question}
)

// DialectFor returns the dialect of a database/sql driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return Postgres, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "mysql":
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
}
