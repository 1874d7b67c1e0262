package sqlstore

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/seedling/internal/orm/path"
	"github.com/conduit-lang/seedling/internal/orm/schema"
)

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
)

// CreateTable returns the CREATE TABLE IF NOT EXISTS statement of a model.
// Foreign keys are plain columns without constraints so that rows referencing
// each other can be inserted before they are patched.
func (d Dialect) CreateTable(m *schema.Model) (string, error) {
	if m == nil {
		return "", fmt.Errorf("model cannot be nil")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", m.TableName)

	defs := make([]string, 0, len(m.Fields)+1)
	for _, f := range m.Fields {
		def, err := d.column(m, f)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", m.Name, f.Name, err)
		}
		defs = append(defs, def)
	}
	if len(m.PrimaryKey) > 1 {
		cols := make([]string, len(m.PrimaryKey))
		for i, f := range m.PrimaryKey {
			cols[i] = f.Column
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(cols, ", ")))
	}

	b.WriteString("  ")
	b.WriteString(strings.Join(defs, ",\n  "))
	b.WriteString("\n)")
	return b.String(), nil
}

func (d Dialect) column(m *schema.Model, f *schema.Field) (string, error) {
	single := len(m.PrimaryKey) == 1 && f.Primary
	base := path.Indirect(f.Type)

	if single && m.AutoKey && isInteger(base) {
		switch d.Name {
		case Postgres.Name:
			return f.Column + " BIGSERIAL PRIMARY KEY", nil
		case MySQL.Name:
			return f.Column + " BIGINT AUTO_INCREMENT PRIMARY KEY", nil
		default:
			return f.Column + " INTEGER PRIMARY KEY AUTOINCREMENT", nil
		}
	}

	typ, err := d.columnType(base, f.Primary)
	if err != nil {
		return "", err
	}
	def := f.Column + " " + typ
	if single {
		def += " PRIMARY KEY"
	} else if !f.Nullable {
		def += " NOT NULL"
	}
	return def, nil
}

func (d Dialect) columnType(t reflect.Type, key bool) (string, error) {
	switch {
	case t == timeType:
		switch d.Name {
		case Postgres.Name:
			return "TIMESTAMPTZ", nil
		case MySQL.Name:
			return "DATETIME(6)", nil
		default:
			return "TIMESTAMP", nil
		}
	case t == uuidType:
		switch d.Name {
		case Postgres.Name:
			return "UUID", nil
		default:
			return "CHAR(36)", nil
		}
	}

	switch t.Kind() {
	case reflect.Bool:
		return "BOOLEAN", nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if d.Name == SQLite.Name {
			return "INTEGER", nil
		}
		return "BIGINT", nil
	case reflect.Float32, reflect.Float64:
		if d.Name == Postgres.Name {
			return "DOUBLE PRECISION", nil
		}
		return "DOUBLE", nil
	case reflect.String:
		if d.Name == MySQL.Name {
			// MySQL cannot index unbounded text
			if key {
				return "VARCHAR(64)", nil
			}
			return "VARCHAR(255)", nil
		}
		return "TEXT", nil
	case reflect.Slice:
		if d.Name == Postgres.Name {
			return "BYTEA", nil
		}
		return "BLOB", nil
	default:
		return "", fmt.Errorf("unsupported column type %s", t)
	}
}

func isInteger(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

// CreateTables creates the tables of the given entity types if they do not exist
func (s *Store) CreateTables(ctx context.Context, types ...reflect.Type) error {
	for _, t := range types {
		m, err := s.models.Get(t)
		if err != nil {
			return err
		}
		stmt, err := s.dialect.CreateTable(m)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", m.TableName, ConvertDBError(err))
		}
		s.logger.Debug("table created", zap.String("table", m.TableName))
	}
	return nil
}
