// Package store is the relational store adaptor consumed by the
// sweep engine: typed CRUD against tables whose layout is only known
// once a study definition has been loaded.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/caesium-cloud/sweep/internal/store/query"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// maxBindVars keeps multi-row inserts under sqlite's bind limit.
const maxBindVars = 900

// ErrUnfilteredUpdate guards against updating every row of a table.
var ErrUnfilteredUpdate = errors.New("update requires a filter")

// Row holds column values in the order they were requested.
type Row []any

// Store defines the typed table operations used by the engine.
// Each call is atomic on its own; Transaction groups several.
type Store interface {
	Select(ctx context.Context, table string, columns []string, filter *query.Filter) ([]Row, error)
	Count(ctx context.Context, table string, filter *query.Filter) (int64, error)
	Max(ctx context.Context, table, column string, filter *query.Filter) (int64, error)
	Insert(ctx context.Context, table string, values map[string]any) error
	InsertMany(ctx context.Context, table string, columns []string, rows []Row) error
	Update(ctx context.Context, table string, values map[string]any, filter *query.Filter) (int64, error)
	CreateTable(ctx context.Context, table string, schema Schema) error
	HasTable(ctx context.Context, table string) (bool, error)
	Transaction(ctx context.Context, fn func(Store) error) error
}

type gormStore struct {
	db *gorm.DB
}

// New wraps a gorm connection. The provided db connection must be non-nil.
func New(db *gorm.DB) Store {
	if db == nil {
		panic("store requires a database connection")
	}
	return &gormStore{db: db}
}

func (s *gormStore) Select(ctx context.Context, table string, columns []string, filter *query.Filter) ([]Row, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("select from %s: no columns requested", table)
	}

	t, err := query.Quote(table)
	if err != nil {
		return nil, err
	}
	cols, err := query.QuoteAll(columns)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if filter.IsDistinct() {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(t)

	args, err := writeFilter(&b, filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.WithContext(ctx).Raw(b.String(), args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", table, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, Row(values))
	}

	return out, rows.Err()
}

func (s *gormStore) Count(ctx context.Context, table string, filter *query.Filter) (int64, error) {
	t, err := query.Quote(table)
	if err != nil {
		return 0, err
	}

	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(t)
	args, err := writeFilter(&b, filter)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Raw(b.String(), args...).Row().Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

func (s *gormStore) Max(ctx context.Context, table, column string, filter *query.Filter) (int64, error) {
	t, err := query.Quote(table)
	if err != nil {
		return 0, err
	}
	c, err := query.Quote(column)
	if err != nil {
		return 0, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT MAX(%s) FROM %s", c, t)
	args, err := writeFilter(&b, filter)
	if err != nil {
		return 0, err
	}

	var max sql.NullInt64
	if err := s.db.WithContext(ctx).Raw(b.String(), args...).Row().Scan(&max); err != nil {
		return 0, fmt.Errorf("max %s.%s: %w", table, column, err)
	}
	return max.Int64, nil
}

func (s *gormStore) Insert(ctx context.Context, table string, values map[string]any) error {
	columns := sortedKeys(values)
	row := make(Row, len(columns))
	for i, col := range columns {
		row[i] = values[col]
	}
	return s.InsertMany(ctx, table, columns, []Row{row})
}

func (s *gormStore) InsertMany(ctx context.Context, table string, columns []string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	if len(columns) == 0 {
		return fmt.Errorf("insert into %s: no columns", table)
	}

	t, err := query.Quote(table)
	if err != nil {
		return err
	}
	cols, err := query.QuoteAll(columns)
	if err != nil {
		return err
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", t, strings.Join(cols, ", "))

	chunk := maxBindVars / len(columns)
	if chunk < 1 {
		chunk = 1
	}

	db := s.db.WithContext(ctx)
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}

		values := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*len(columns))
		for i, row := range rows[start:end] {
			if len(row) != len(columns) {
				return fmt.Errorf("insert into %s: row %d has %d values for %d columns", table, start+i, len(row), len(columns))
			}
			values = append(values, placeholder)
			args = append(args, row...)
		}

		if err := db.Exec(head+strings.Join(values, ", "), args...).Error; err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}

	return nil
}

func (s *gormStore) Update(ctx context.Context, table string, values map[string]any, filter *query.Filter) (int64, error) {
	if filter == nil || len(filter.Conditions) == 0 {
		return 0, fmt.Errorf("update %s: %w", table, ErrUnfilteredUpdate)
	}
	if len(values) == 0 {
		return 0, nil
	}

	t, err := query.Quote(table)
	if err != nil {
		return 0, err
	}

	columns := sortedKeys(values)
	sets := make([]string, len(columns))
	args := make([]any, 0, len(columns))
	for i, col := range columns {
		q, err := query.Quote(col)
		if err != nil {
			return 0, err
		}
		sets[i] = q + " = ?"
		args = append(args, values[col])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET %s", t, strings.Join(sets, ", "))
	whereArgs, err := writeFilter(&b, &query.Filter{Conditions: filter.Conditions})
	if err != nil {
		return 0, err
	}

	result := s.db.WithContext(ctx).Exec(b.String(), append(args, whereArgs...)...)
	if result.Error != nil {
		return 0, fmt.Errorf("update %s: %w", table, result.Error)
	}
	return result.RowsAffected, nil
}

func (s *gormStore) CreateTable(ctx context.Context, table string, schema Schema) error {
	ddl, err := schema.DDL(table, s.db.Dialector.Name())
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Exec(ddl).Error; err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

func (s *gormStore) HasTable(ctx context.Context, table string) (bool, error) {
	if _, err := query.Quote(table); err != nil {
		return false, err
	}
	return s.db.WithContext(ctx).Migrator().HasTable(table), nil
}

func (s *gormStore) Transaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// IsBusy reports whether err was caused by sqlite lock contention,
// which usually means a second process is writing the same study.
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func writeFilter(b *strings.Builder, filter *query.Filter) ([]any, error) {
	clause, args, err := filter.Clause()
	if err != nil {
		return nil, err
	}
	if clause != "" {
		b.WriteString(" WHERE ")
		b.WriteString(clause)
	}

	order, err := filter.OrderClause()
	if err != nil {
		return nil, err
	}
	if order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(order)
	}

	return args, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
