package study

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Bundle is the self-contained configuration handed to the executable
// of one work unit. It is stored compressed in the unit's input_file
// column and written next to the job on submission.
type Bundle struct {
	Unit       BundleUnit  `yaml:"unit"`
	Paths      BundlePaths `yaml:"paths"`
	Parameters Section     `yaml:"parameters"`
	Parent     Section     `yaml:"parent,omitempty"`
	Settings   Section     `yaml:"settings,omitempty"`
	Templates  []string    `yaml:"templates,omitempty"`
	Inputs     []string    `yaml:"inputs,omitempty"`
	Outputs    []string    `yaml:"outputs,omitempty"`
}

// BundleUnit identifies the work unit a bundle belongs to.
type BundleUnit struct {
	Study  string `yaml:"study"`
	Stage  string `yaml:"stage"`
	ID     int64  `yaml:"id"`
	Name   string `yaml:"name"`
	Parent int64  `yaml:"parent,omitempty"`
}

// BundlePaths tells the executor where to find its inputs and where
// to leave its results.
type BundlePaths struct {
	Templates  string `yaml:"templates"`
	Executable string `yaml:"executable,omitempty"`
	Dest       string `yaml:"dest"`
}

// NewBundle seeds a bundle with the stage-wide fields. Settings are
// copied so later edits never leak between units.
func (d *Definition) NewBundle(s *Stage) *Bundle {
	b := &Bundle{
		Unit: BundleUnit{Study: d.Name(), Stage: s.Name},
		Paths: BundlePaths{
			Templates:  d.TemplateDir(),
			Executable: s.Executable,
		},
		Settings:  append(Section(nil), s.Settings...),
		Templates: append([]string(nil), s.Templates...),
		Outputs:   append([]string(nil), s.Outputs...),
	}
	if p := d.ParentOf(s); p != nil {
		b.Inputs = append([]string(nil), p.Outputs...)
	}
	return b
}

// Marshal renders the bundle as YAML.
func (b *Bundle) Marshal() ([]byte, error) {
	return yaml.Marshal(b)
}

// UnmarshalBundle parses a YAML bundle.
func UnmarshalBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &b, nil
}
