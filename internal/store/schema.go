package store

import (
	"fmt"
	"strings"

	"github.com/caesium-cloud/sweep/internal/store/query"
)

// ColumnType is the portable column affinity of a dynamic table.
type ColumnType string

const (
	Integer ColumnType = "INTEGER"
	Real    ColumnType = "REAL"
	Text    ColumnType = "TEXT"
	Blob    ColumnType = "BLOB"
)

// Column describes one column of a dynamic table.
type Column struct {
	Name    string
	Type    ColumnType
	NotNull bool
}

// ForeignKey references the key columns of another table.
type ForeignKey struct {
	Columns    []string
	Table      string
	References []string
}

// Schema is the layout handed to Store.CreateTable.
type Schema struct {
	Columns     []Column
	PrimaryKey  []string
	ForeignKeys []ForeignKey
}

// Names returns the column names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// DDL renders an idempotent CREATE TABLE statement for the given
// gorm dialect name.
func (s Schema) DDL(table, dialect string) (string, error) {
	if len(s.Columns) == 0 {
		return "", fmt.Errorf("table %s has no columns", table)
	}

	t, err := query.Quote(table)
	if err != nil {
		return "", err
	}

	defs := make([]string, 0, len(s.Columns)+len(s.ForeignKeys)+1)
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if _, dup := seen[c.Name]; dup {
			return "", fmt.Errorf("table %s: duplicate column %q", table, c.Name)
		}
		seen[c.Name] = struct{}{}

		name, err := query.Quote(c.Name)
		if err != nil {
			return "", err
		}
		def := name + " " + sqlType(c.Type, dialect)
		if c.NotNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}

	if len(s.PrimaryKey) > 0 {
		cols, err := query.QuoteAll(s.PrimaryKey)
		if err != nil {
			return "", err
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(cols, ", ")))
	}

	for _, fk := range s.ForeignKeys {
		cols, err := query.QuoteAll(fk.Columns)
		if err != nil {
			return "", err
		}
		ref, err := query.Quote(fk.Table)
		if err != nil {
			return "", err
		}
		refCols, err := query.QuoteAll(fk.References)
		if err != nil {
			return "", err
		}
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			strings.Join(cols, ", "), ref, strings.Join(refCols, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t, strings.Join(defs, ", ")), nil
}

func sqlType(t ColumnType, dialect string) string {
	if dialect != "postgres" {
		return string(t)
	}

	switch t {
	case Integer:
		return "BIGINT"
	case Real:
		return "DOUBLE PRECISION"
	case Blob:
		return "BYTEA"
	default:
		return "TEXT"
	}
}
