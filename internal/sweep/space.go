// Package sweep expands parameter spaces into work units and chains
// dependent stages onto completed parent units.
package sweep

import (
	"strings"

	"github.com/caesium-cloud/sweep/internal/study"
)

// Space is the cartesian product of an ordered set of parameters.
type Space struct {
	params study.Params
}

// NewSpace builds a space over params in declaration order.
func NewSpace(params study.Params) Space {
	return Space{params: params}
}

// Names returns the dimension names, outermost first.
func (s Space) Names() []string {
	return s.params.Names()
}

// Size is the number of combinations. A space without parameters,
// or with any empty dimension, is empty.
func (s Space) Size() int {
	if len(s.params) == 0 {
		return 0
	}
	n := 1
	for _, p := range s.params {
		n *= len(p.Values)
	}
	return n
}

// Each calls fn for every combination, varying the last parameter
// fastest. The tuple passed to fn is reused between calls.
func (s Space) Each(fn func(tuple []string) error) error {
	if s.Size() == 0 {
		return nil
	}

	idx := make([]int, len(s.params))
	tuple := make([]string, len(s.params))
	for {
		for i, p := range s.params {
			tuple[i] = p.Values[idx[i]]
		}
		if err := fn(tuple); err != nil {
			return err
		}

		// advance the odometer from the innermost dimension
		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(s.params[i].Values) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return nil
		}
	}
}

// Combinations collects every tuple.
func (s Space) Combinations() [][]string {
	out := make([][]string, 0, s.Size())
	_ = s.Each(func(tuple []string) error {
		out = append(out, append([]string(nil), tuple...))
		return nil
	})
	return out
}

// JobName joins key_value pairs onto prefix.
func JobName(prefix string, names, values []string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for i := range names {
		b.WriteByte('_')
		b.WriteString(names[i])
		b.WriteByte('_')
		b.WriteString(values[i])
	}
	return b.String()
}

func tupleKey(values []string) string {
	return strings.Join(values, "\x1f")
}
