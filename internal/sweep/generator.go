package sweep

import (
	"context"
	"fmt"

	"github.com/caesium-cloud/sweep/internal/event"
	"github.com/caesium-cloud/sweep/internal/models"
	"github.com/caesium-cloud/sweep/internal/store"
	"github.com/caesium-cloud/sweep/internal/study"
	"github.com/caesium-cloud/sweep/pkg/log"
)

// Generator creates the work units of a root stage.
type Generator struct {
	engine
}

// NewGenerator returns a generator writing through st. A nil bus
// discards events.
func NewGenerator(def *study.Definition, st store.Store, bus event.Bus) *Generator {
	return &Generator{engine: newEngine(def, st, bus)}
}

// Generate expands the stage's parameter space and stores one
// incomplete work unit per tuple not already present. Re-running it
// over the same space creates nothing.
func (g *Generator) Generate(ctx context.Context, stage string) (*Result, error) {
	s, err := g.def.Stage(stage)
	if err != nil {
		return nil, err
	}
	if s.Dependent() {
		return nil, fmt.Errorf("stage %s depends on %s and must be chained", s.Name, s.Parent)
	}
	if err := g.def.CheckTemplates(s); err != nil {
		return nil, err
	}

	res := &Result{}
	space := NewSpace(s.Parameters)
	if space.Size() == 0 {
		log.Warn("parameter space is empty", "stage", s.Name)
		return res, nil
	}

	names := space.Names()
	existing, err := g.index(ctx, s.UnitTable(), names)
	if err != nil {
		return nil, err
	}
	id, err := g.nextID(ctx, s.UnitTable())
	if err != nil {
		return nil, err
	}

	var units []*models.WorkUnit
	err = space.Each(func(tuple []string) error {
		key := tupleKey(tuple)
		if job, ok := existing[key]; ok {
			g.duplicate(s, job)
			res.Duplicates++
			return nil
		}

		u := &models.WorkUnit{
			ID:      id,
			JobName: JobName(s.Prefix, names, tuple),
			Params:  make(map[string]string, len(tuple)),
			Status:  models.StatusIncomplete,
			MTime:   g.mtime(),
		}
		for i, name := range names {
			u.Params[name] = tuple[i]
		}

		b := g.def.NewBundle(s)
		b.Unit.ID = u.ID
		b.Unit.Name = u.JobName
		b.Parameters = section(names, tuple)
		if u.InputFile, err = g.encode(s, b); err != nil {
			return err
		}

		existing[key] = u.JobName
		units = append(units, u)
		res.Created = append(res.Created, u.ID)
		id++
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := g.persist(ctx, s, units); err != nil {
		return nil, err
	}
	return res, nil
}
