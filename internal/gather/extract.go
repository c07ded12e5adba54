package gather

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/caesium-cloud/sweep/internal/models"
	"github.com/caesium-cloud/sweep/internal/record"
	"github.com/caesium-cloud/sweep/internal/store"
	"github.com/caesium-cloud/sweep/internal/study"
	"github.com/caesium-cloud/sweep/pkg/codec"
	"github.com/caesium-cloud/sweep/pkg/log"
)

// attempt is everything captured from one finished job directory.
// Result rows carry a zero task_id until the task id is assigned.
type attempt struct {
	task     *models.Task
	problems []string
	rows     []store.Row
	invalid  int
}

func (a *attempt) fail(problem string) {
	a.task.Fail()
	a.problems = append(a.problems, problem)
}

// extract captures every expected artifact it can find. Problems mark
// the task Failed but never stop the remaining artifacts from being
// captured.
func (g *Gatherer) extract(s *study.Stage, dir, item string, unit *models.WorkUnit) *attempt {
	a := &attempt{task: &models.Task{
		WorkUnitID: unit.ID,
		Name:       unit.JobName,
		Status:     models.TaskSuccess,
		Artifacts:  map[string][]byte{},
	}}

	names, err := files(dir)
	if err != nil || len(names) == 0 {
		log.Error("job directory is empty", "stage", s.Name, "item", item, "wu_id", unit.ID)
		a.fail("empty job directory")
		return a
	}

	paths := map[string]string{}
	for _, art := range s.ExpectedArtifacts() {
		name, err := find(names, art.Pattern)
		if err != nil {
			log.Error("invalid artifact pattern", "stage", s.Name, "artifact", art.Column, "pattern", art.Pattern, "error", err)
			a.fail(art.Column + ": invalid pattern")
			continue
		}
		if name == "" {
			if art.Required {
				log.Error("required artifact is missing", "stage", s.Name, "item", item, "wu_id", unit.ID, "artifact", art.Column, "pattern", art.Pattern)
				a.fail(art.Column + ": missing")
			}
			continue
		}

		path := filepath.Join(dir, name)
		blob, err := codec.EncodeFile(path, art.Kind)
		if err != nil {
			log.Error("failed to encode artifact", "stage", s.Name, "item", item, "wu_id", unit.ID, "file", name, "error", err)
			a.fail(art.Column + ": unreadable")
			continue
		}
		a.task.Artifacts[art.Column] = blob
		paths[art.Column] = path
	}

	if format, ok := s.RecordFormat(); ok {
		if path, found := paths[s.Records.Artifact]; found {
			g.parse(s, item, unit, path, format, a)
		}
	}

	return a
}

func (g *Gatherer) parse(s *study.Stage, item string, unit *models.WorkUnit, path string, format record.Format, a *attempt) {
	res, err := record.ParseFile(path, format, 0, func(line int, reason string) {
		log.Warn("malformed record", "stage", s.Name, "item", item, "wu_id", unit.ID, "file", filepath.Base(path), "row", line, "reason", reason)
	})
	if err != nil {
		log.Error("failed to parse records", "stage", s.Name, "item", item, "wu_id", unit.ID, "file", filepath.Base(path), "error", err)
		a.fail(s.Records.Artifact + ": unparsable")
		return
	}

	a.rows = res.Rows
	a.invalid = res.Invalid
	if res.Failed() {
		log.Error("records failed validation", "stage", s.Name, "item", item, "wu_id", unit.ID, "file", filepath.Base(path), "invalid", res.Invalid, "rows", len(res.Rows))
		a.fail(s.Records.Artifact + ": malformed rows")
	}
}

// files lists the regular files of dir in lexical order.
func files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// find returns the first name matching pattern, or "".
func find(names []string, pattern string) (string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return "", doublestar.ErrBadPattern
	}
	for _, name := range names {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return name, nil
		}
	}
	return "", nil
}
