// Package study loads and validates the YAML definition of a sweep
// study: its paths, stages, parameter spaces and expected artifacts.
package study

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caesium-cloud/sweep/internal/models"
	"github.com/caesium-cloud/sweep/internal/record"
	"github.com/caesium-cloud/sweep/pkg/codec"
	"gopkg.in/yaml.v3"
)

const (
	APIVersionV1 = "v1"
	KindStudy    = "Study"
)

var (
	// ErrMissingTemplate is returned when a stage template is absent
	// from the templates directory.
	ErrMissingTemplate = errors.New("missing template")
	// ErrUnknownStage is returned when a stage lookup fails.
	ErrUnknownStage = errors.New("unknown stage")

	identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Definition models the root study document.
type Definition struct {
	APIVersion string   `yaml:"apiVersion" json:"apiVersion"`
	Kind       string   `yaml:"kind" json:"kind"`
	Metadata   Metadata `yaml:"metadata" json:"metadata"`
	Paths      Paths    `yaml:"paths" json:"paths"`
	Stages     []Stage  `yaml:"stages" json:"stages"`

	// Dir anchors relative paths, normally the directory holding
	// the definition file.
	Dir string `yaml:"-" json:"-"`
}

// Metadata contains descriptive data for the study.
type Metadata struct {
	Name   string            `yaml:"name" json:"name"`
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// Paths locates the study workspace.
type Paths struct {
	Templates string `yaml:"templates" json:"templates"`
	Input     string `yaml:"input" json:"input"`
	Output    string `yaml:"output" json:"output"`
}

// Parse parses YAML bytes into a validated Definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	def.setDefaults()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Load reads a definition file. Relative paths inside it resolve
// against the file's directory.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if def.Dir, err = filepath.Abs(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return def, nil
}

func (d *Definition) setDefaults() {
	if d.Paths.Templates == "" {
		d.Paths.Templates = "templates"
	}
	if d.Paths.Input == "" {
		d.Paths.Input = "input"
	}
	if d.Paths.Output == "" {
		d.Paths.Output = "output"
	}
	for i := range d.Stages {
		s := &d.Stages[i]
		if s.Prefix == "" {
			s.Prefix = s.Name
		}
		for j := range s.Artifacts {
			if s.Artifacts[j].Kind == "" {
				s.Artifacts[j].Kind = codec.Compress
			}
		}
	}
}

// Validate performs semantic validation on the definition.
func (d *Definition) Validate() error {
	if d.APIVersion != APIVersionV1 {
		return fmt.Errorf("unsupported apiVersion: %s", d.APIVersion)
	}
	if d.Kind != KindStudy {
		return fmt.Errorf("unsupported kind: %s", d.Kind)
	}
	if strings.TrimSpace(d.Metadata.Name) == "" {
		return fmt.Errorf("metadata.name is required")
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("stages must contain at least one entry")
	}

	names := make(map[string]int, len(d.Stages))
	roots := 0
	for i := range d.Stages {
		s := &d.Stages[i]
		if !identifier.MatchString(s.Name) {
			return fmt.Errorf("stages[%d].name %q must be an identifier", i, s.Name)
		}
		if _, exists := names[s.Name]; exists {
			return fmt.Errorf("duplicate stage name %q", s.Name)
		}
		names[s.Name] = i
		if s.Parent == "" {
			roots++
		}
		if err := s.validate(); err != nil {
			return fmt.Errorf("stages[%d]: %w", i, err)
		}
	}

	if roots != 1 {
		return fmt.Errorf("exactly one stage without a parent is required, found %d", roots)
	}

	dependents := 0
	for i, s := range d.Stages {
		if s.Parent == "" {
			continue
		}
		dependents++
		p, exists := names[s.Parent]
		if !exists {
			return fmt.Errorf("stages[%d].parent references unknown stage %q", i, s.Parent)
		}
		if d.Stages[p].Parent != "" {
			return fmt.Errorf("stages[%d].parent %q must be the root stage", i, s.Parent)
		}
	}
	if dependents > 1 {
		return fmt.Errorf("at most one dependent stage is supported, found %d", dependents)
	}

	return nil
}

func (s *Stage) validate() error {
	seen := map[string]bool{}
	for _, p := range s.Parameters {
		if !identifier.MatchString(p.Name) {
			return fmt.Errorf("parameter %q must be an identifier", p.Name)
		}
		if isUnitColumn(p.Name) {
			return fmt.Errorf("parameter %q collides with a reserved column", p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
	}

	columns := map[string]bool{}
	for _, a := range s.ExpectedArtifacts() {
		if !identifier.MatchString(a.Column) {
			return fmt.Errorf("artifact column %q must be an identifier", a.Column)
		}
		if isTaskColumn(a.Column) {
			return fmt.Errorf("artifact column %q collides with a reserved column", a.Column)
		}
		if columns[a.Column] {
			return fmt.Errorf("duplicate artifact column %q", a.Column)
		}
		columns[a.Column] = true
		if strings.TrimSpace(a.Pattern) == "" {
			return fmt.Errorf("artifact %q requires a pattern", a.Column)
		}
		switch a.Kind {
		case codec.Compress, codec.Gzip, codec.Raw:
		default:
			return fmt.Errorf("artifact %q: %w: %q", a.Column, codec.ErrUnknownKind, a.Kind)
		}
	}

	if s.Records != nil {
		if _, err := record.Lookup(s.Records.Format); err != nil {
			return err
		}
		if !columns[s.Records.Artifact] {
			return fmt.Errorf("records artifact %q is not an expected artifact", s.Records.Artifact)
		}
	}

	return nil
}

func isUnitColumn(name string) bool {
	switch name {
	case models.ColWorkUnitID, models.ColParentID, models.ColJobName, models.ColInputFile,
		models.ColBatchName, models.ColUniqueID, models.ColStatus, models.ColTaskID, models.ColMTime:
		return true
	}
	return false
}

func isTaskColumn(name string) bool {
	switch name {
	case models.ColTaskID, models.ColWorkUnitID, models.ColTaskName,
		models.ColCount, models.ColStatus, models.ColMTime:
		return true
	}
	return false
}

// Name returns the study name.
func (d *Definition) Name() string {
	return d.Metadata.Name
}

// Stage looks up a stage by name.
func (d *Definition) Stage(name string) (*Stage, error) {
	for i := range d.Stages {
		if d.Stages[i].Name == name {
			return &d.Stages[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

// Root returns the stage without a parent.
func (d *Definition) Root() *Stage {
	for i := range d.Stages {
		if d.Stages[i].Parent == "" {
			return &d.Stages[i]
		}
	}
	return nil
}

// ParentOf returns the parent of a dependent stage, or nil.
func (d *Definition) ParentOf(s *Stage) *Stage {
	if s.Parent == "" {
		return nil
	}
	p, _ := d.Stage(s.Parent)
	return p
}

func (d *Definition) resolve(path string) string {
	if filepath.IsAbs(path) || d.Dir == "" {
		return path
	}
	return filepath.Join(d.Dir, path)
}

// TemplateDir is the directory holding input templates.
func (d *Definition) TemplateDir() string {
	return d.resolve(d.Paths.Templates)
}

// InputDir is where a stage's per-unit bundles are written for
// submission.
func (d *Definition) InputDir(s *Stage) string {
	return filepath.Join(d.resolve(d.Paths.Input), s.Name)
}

// OutputDir is the result root of a stage: one subdirectory per
// dispatched work unit.
func (d *Definition) OutputDir(s *Stage) string {
	return filepath.Join(d.resolve(d.Paths.Output), s.Name)
}

// CheckTemplates verifies every template of a stage is present.
func (d *Definition) CheckTemplates(s *Stage) error {
	for _, t := range s.Templates {
		info, err := os.Stat(filepath.Join(d.TemplateDir(), t))
		if err != nil || info.IsDir() {
			return fmt.Errorf("%w: %s not found in %s", ErrMissingTemplate, t, d.TemplateDir())
		}
	}
	return nil
}
