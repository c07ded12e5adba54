package study

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caesium-cloud/sweep/internal/models"
	"github.com/caesium-cloud/sweep/internal/record"
	"github.com/caesium-cloud/sweep/internal/store"
	"github.com/caesium-cloud/sweep/pkg/codec"
)

// Default artifacts captured from every job directory. They help
// postmortems but their absence does not fail a task.
var defaultArtifacts = []Artifact{
	{Column: "job_stdout", Pattern: "htcondor.*.out", Kind: codec.Compress},
	{Column: "job_stderr", Pattern: "htcondor.*.err", Kind: codec.Compress},
	{Column: "job_stdlog", Pattern: "htcondor.*.log", Kind: codec.Compress},
}

var nonIdentifier = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// Stage defines one phase of the pipeline.
type Stage struct {
	Name       string     `yaml:"name" json:"name"`
	Parent     string     `yaml:"parent,omitempty" json:"parent,omitempty"`
	Prefix     string     `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Executable string     `yaml:"executable,omitempty" json:"executable,omitempty"`
	Templates  []string   `yaml:"templates,omitempty" json:"templates,omitempty"`
	Parameters Params     `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Settings   Section    `yaml:"settings,omitempty" json:"settings,omitempty"`
	Outputs    []string   `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Artifacts  []Artifact `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
	Records    *Records   `yaml:"records,omitempty" json:"records,omitempty"`
}

// Artifact is a file expected in a finished job directory.
type Artifact struct {
	// Column is the task table blob column holding the file.
	Column string `yaml:"column" json:"column"`
	// Pattern is a glob matched against file names in the job
	// directory; the first match in lexical order wins.
	Pattern  string     `yaml:"pattern" json:"pattern"`
	Required bool       `yaml:"required,omitempty" json:"required,omitempty"`
	Kind     codec.Kind `yaml:"kind,omitempty" json:"kind,omitempty"`
}

// Records declares that one artifact holds fixed-width rows.
type Records struct {
	Artifact string `yaml:"artifact" json:"artifact"`
	Format   string `yaml:"format" json:"format"`
}

// Dependent reports whether the stage consumes another stage.
func (s *Stage) Dependent() bool {
	return s.Parent != ""
}

// UnitTable is the work unit table of the stage.
func (s *Stage) UnitTable() string {
	return s.Name + "_wu"
}

// TaskTable is the append-only task table of the stage.
func (s *Stage) TaskTable() string {
	return s.Name + "_task"
}

// ResultTable is the wide result table, only present when the stage
// declares records.
func (s *Stage) ResultTable() string {
	return s.Name + "_result"
}

// ColumnName turns an output file name into a blob column name.
func ColumnName(file string) string {
	name := strings.Trim(nonIdentifier.ReplaceAllString(file, "_"), "_")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "f_" + name
	}
	return name
}

// ExpectedArtifacts lists every artifact gathered for the stage:
// the job streams, the declared artifacts and one required artifact
// per declared output not already covered.
func (s *Stage) ExpectedArtifacts() []Artifact {
	out := make([]Artifact, 0, len(defaultArtifacts)+len(s.Artifacts)+len(s.Outputs))
	taken := map[string]bool{}
	for _, a := range s.Artifacts {
		taken[a.Column] = true
	}
	for _, a := range defaultArtifacts {
		if !taken[a.Column] {
			out = append(out, a)
			taken[a.Column] = true
		}
	}
	out = append(out, s.Artifacts...)

	for _, o := range s.Outputs {
		col := ColumnName(o)
		if taken[col] {
			continue
		}
		taken[col] = true

		kind := codec.Compress
		if filepath.Ext(o) == ".gz" {
			kind = codec.Gzip
		}
		out = append(out, Artifact{Column: col, Pattern: "*" + o + "*", Required: true, Kind: kind})
	}

	return out
}

// ArtifactColumns returns the blob columns of the task table.
func (s *Stage) ArtifactColumns() []string {
	artifacts := s.ExpectedArtifacts()
	cols := make([]string, len(artifacts))
	for i, a := range artifacts {
		cols[i] = a.Column
	}
	return cols
}

// RecordFormat returns the fixed-width format of the stage, if any.
func (s *Stage) RecordFormat() (record.Format, bool) {
	if s.Records == nil {
		return record.Format{}, false
	}
	f, err := record.Lookup(s.Records.Format)
	return f, err == nil
}

// Tables returns the dynamic tables of the stage in creation order.
func (s *Stage) Tables() []Table {
	parentTable := ""
	if s.Dependent() {
		parentTable = s.Parent + "_wu"
	}

	tables := []Table{
		{Name: s.UnitTable(), Schema: models.WorkUnitSchema(s.Parameters.Names(), parentTable)},
		{Name: s.TaskTable(), Schema: models.TaskSchema(s.UnitTable(), s.ArtifactColumns())},
	}
	if f, ok := s.RecordFormat(); ok {
		tables = append(tables, Table{Name: s.ResultTable(), Schema: models.ResultSchema(s.TaskTable(), f.Columns)})
	}
	return tables
}

// Table pairs a dynamic table name with its layout.
type Table struct {
	Name   string
	Schema store.Schema
}
