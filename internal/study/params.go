package study

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Param is one sweep dimension. Values hold the canonical text of
// each candidate, which is also what the work unit table stores.
type Param struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Params keeps sweep dimensions in declaration order, outermost
// first.
type Params []Param

// Names returns the parameter names in order.
func (p Params) Names() []string {
	names := make([]string, len(p))
	for i := range p {
		names[i] = p[i].Name
	}
	return names
}

// UnmarshalYAML decodes a mapping of name to value or list of values.
// A scalar is a single element list.
func (p *Params) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: parameters must be a mapping", value.Line)
	}

	out := make(Params, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, node := value.Content[i], value.Content[i+1]

		var values []string
		if node.Kind == yaml.SequenceNode {
			values = make([]string, 0, len(node.Content))
			for _, item := range node.Content {
				v, err := nodeValue(item)
				if err != nil {
					return err
				}
				values = append(values, v)
			}
		} else {
			v, err := nodeValue(node)
			if err != nil {
				return err
			}
			values = []string{v}
		}

		out = append(out, Param{Name: key.Value, Values: values})
	}

	*p = out
	return nil
}

func nodeValue(node *yaml.Node) (string, error) {
	var v any
	if err := node.Decode(&v); err != nil {
		return "", fmt.Errorf("line %d: %w", node.Line, err)
	}
	return FormatValue(v), nil
}

// FormatValue renders a parameter value in its canonical text form.
// Equal values always render identically, so tuples can be compared
// as strings.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case []any:
		parts := make([]string, len(t))
		for i := range t {
			parts[i] = FormatValue(t[i])
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(t)
	}
}

// Setting is one ordered key/value pair of a Section.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Section is an ordered string mapping that round trips through YAML
// with its key order intact.
type Section []Setting

// Get returns the value stored under key.
func (s Section) Get(key string) (string, bool) {
	for _, kv := range s {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Set replaces the value of key, appending it when absent.
func (s Section) Set(key, value string) Section {
	for i := range s {
		if s[i].Key == key {
			s[i].Value = value
			return s
		}
	}
	return append(s, Setting{Key: key, Value: value})
}

// UnmarshalYAML decodes a mapping of scalars.
func (s *Section) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", value.Line)
	}

	out := make(Section, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		v, err := nodeValue(value.Content[i+1])
		if err != nil {
			return err
		}
		out = append(out, Setting{Key: value.Content[i].Value, Value: v})
	}

	*s = out
	return nil
}

// MarshalYAML emits the section as a mapping with double-quoted
// values so numeric looking strings survive a round trip unchanged.
func (s Section) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, kv := range s {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv.Value, Style: yaml.DoubleQuotedStyle},
		)
	}
	return node, nil
}
