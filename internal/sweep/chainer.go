package sweep

import (
	"context"
	"fmt"
	"strconv"

	"github.com/caesium-cloud/sweep/internal/event"
	"github.com/caesium-cloud/sweep/internal/models"
	"github.com/caesium-cloud/sweep/internal/store"
	"github.com/caesium-cloud/sweep/internal/store/query"
	"github.com/caesium-cloud/sweep/internal/study"
	"github.com/caesium-cloud/sweep/pkg/log"
)

// Chainer creates the work units of a dependent stage, one per
// combination of its own parameters and a completed parent unit.
type Chainer struct {
	engine
}

// NewChainer returns a chainer writing through st. A nil bus
// discards events.
func NewChainer(def *study.Definition, st store.Store, bus event.Bus) *Chainer {
	return &Chainer{engine: newEngine(def, st, bus)}
}

// Chain joins the completed units of the parent stage with the
// stage's parameter space. The parent id is the innermost dimension
// and part of the duplicate check.
func (c *Chainer) Chain(ctx context.Context, stage string) (*Result, error) {
	s, err := c.def.Stage(stage)
	if err != nil {
		return nil, err
	}
	parent := c.def.ParentOf(s)
	if parent == nil {
		return nil, fmt.Errorf("stage %s has no parent to chain onto", s.Name)
	}
	if err := c.def.CheckTemplates(s); err != nil {
		return nil, err
	}

	res := &Result{}

	parentNames := parent.Parameters.Names()
	columns := models.WorkUnitColumns(parentNames, parent.Dependent())
	rows, err := c.store.Select(ctx, parent.UnitTable(), columns,
		query.Where(models.ColStatus, query.Eq, string(models.StatusComplete)).OrderBy(models.ColWorkUnitID))
	if err != nil {
		return nil, err
	}
	parents, err := models.NewWorkUnits(columns, rows)
	if err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		log.Warn("no complete parent work units to chain onto", "stage", s.Name, "parent", parent.Name)
		return res, nil
	}

	byID := make(map[string]*models.WorkUnit, len(parents))
	ids := make([]string, len(parents))
	for i, p := range parents {
		ids[i] = strconv.FormatInt(p.ID, 10)
		byID[ids[i]] = p
	}

	params := append(study.Params(nil), s.Parameters...)
	params = append(params, study.Param{Name: models.ColParentID, Values: ids})
	space := NewSpace(params)
	if space.Size() == 0 {
		log.Warn("parameter space is empty", "stage", s.Name)
		return res, nil
	}

	names := space.Names()
	own := names[:len(names)-1]
	existing, err := c.index(ctx, s.UnitTable(), names)
	if err != nil {
		return nil, err
	}
	id, err := c.nextID(ctx, s.UnitTable())
	if err != nil {
		return nil, err
	}

	var units []*models.WorkUnit
	err = space.Each(func(tuple []string) error {
		key := tupleKey(tuple)
		if job, ok := existing[key]; ok {
			c.duplicate(s, job)
			res.Duplicates++
			return nil
		}

		p := byID[tuple[len(tuple)-1]]
		parentID := p.ID
		u := &models.WorkUnit{
			ID:       id,
			ParentID: &parentID,
			JobName:  fmt.Sprintf("%s_%d_%d", s.Prefix, p.ID, id),
			Params:   make(map[string]string, len(own)),
			Status:   models.StatusIncomplete,
			MTime:    c.mtime(),
		}
		for i, name := range own {
			u.Params[name] = tuple[i]
		}

		resolved := make([]string, len(parentNames))
		for i, name := range parentNames {
			resolved[i] = p.Params[name]
		}

		b := c.def.NewBundle(s)
		b.Unit.ID = u.ID
		b.Unit.Name = u.JobName
		b.Unit.Parent = p.ID
		b.Parameters = section(own, tuple[:len(own)])
		b.Parent = section(parentNames, resolved)
		if u.InputFile, err = c.encode(s, b); err != nil {
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

	if err := c.persist(ctx, s, units); err != nil {
		return nil, err
	}
	return res, nil
}
