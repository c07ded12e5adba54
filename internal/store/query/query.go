// Package query builds parameterized filter clauses for the
// relational store. Column names are validated and quoted, values
// are always passed as bind arguments.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

// Op is a comparison operator supported by a Condition.
type Op string

const (
	Eq      Op = "="
	Ne      Op = "<>"
	Lt      Op = "<"
	Gt      Op = ">"
	Like    Op = "LIKE"
	In      Op = "IN"
	IsNull  Op = "IS NULL"
	NotNull Op = "IS NOT NULL"
)

// ErrInvalidIdentifier is returned for table or column names that
// are not plain identifiers.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Condition is a single column predicate.
type Condition struct {
	Column string
	Op     Op
	Values []any
}

// Filter is a conjunction of conditions with optional ordering.
// The zero value (and a nil *Filter) matches every row.
type Filter struct {
	Conditions []Condition
	Order      []string
	Unique     bool
}

// Where starts a new filter.
func Where(column string, op Op, values ...any) *Filter {
	return (&Filter{}).And(column, op, values...)
}

// And appends a condition to the filter.
func (f *Filter) And(column string, op Op, values ...any) *Filter {
	f.Conditions = append(f.Conditions, Condition{Column: column, Op: op, Values: values})
	return f
}

// OrderBy appends ascending sort columns.
func (f *Filter) OrderBy(columns ...string) *Filter {
	f.Order = append(f.Order, columns...)
	return f
}

// Distinct requests de-duplicated result rows.
func (f *Filter) Distinct() *Filter {
	f.Unique = true
	return f
}

// IsDistinct reports whether the filter requests distinct rows.
func (f *Filter) IsDistinct() bool {
	return f != nil && f.Unique
}

// Clause renders the WHERE body and its bind arguments. An empty
// clause means no restriction.
func (f *Filter) Clause() (string, []any, error) {
	if f == nil || len(f.Conditions) == 0 {
		return "", nil, nil
	}

	parts := make([]string, 0, len(f.Conditions))
	args := make([]any, 0, len(f.Conditions))

	for _, c := range f.Conditions {
		col, err := Quote(c.Column)
		if err != nil {
			return "", nil, err
		}

		switch c.Op {
		case IsNull, NotNull:
			parts = append(parts, fmt.Sprintf("%s %s", col, c.Op))
		case In:
			if len(c.Values) == 0 {
				// nothing can match an empty set
				parts = append(parts, "1 = 0")
				continue
			}
			parts = append(parts, fmt.Sprintf("%s IN ?", col))
			args = append(args, c.Values)
		case Eq, Ne, Lt, Gt, Like:
			if len(c.Values) != 1 {
				return "", nil, fmt.Errorf("operator %s on %s expects one value, got %d", c.Op, c.Column, len(c.Values))
			}
			parts = append(parts, fmt.Sprintf("%s %s ?", col, c.Op))
			args = append(args, c.Values[0])
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", c.Op)
		}
	}

	return strings.Join(parts, " AND "), args, nil
}

// OrderClause renders the ORDER BY body.
func (f *Filter) OrderClause() (string, error) {
	if f == nil || len(f.Order) == 0 {
		return "", nil
	}
	cols, err := QuoteAll(f.Order)
	if err != nil {
		return "", err
	}
	return strings.Join(cols, ", "), nil
}

// Quote validates and quotes a single identifier.
func Quote(name string) (string, error) {
	if !identifier.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return pq.QuoteIdentifier(name), nil
}

// QuoteAll validates and quotes each identifier.
func QuoteAll(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		q, err := Quote(name)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}
