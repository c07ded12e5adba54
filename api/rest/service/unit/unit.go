package unit

import (
	"context"
	"errors"

	"github.com/caesium-cloud/sweep/internal/models"
	"github.com/caesium-cloud/sweep/internal/store"
	"github.com/caesium-cloud/sweep/internal/store/query"
	"github.com/caesium-cloud/sweep/internal/study"
)

// ErrNotFound is returned for a work unit id absent from the stage.
var ErrNotFound = errors.New("work unit not found")

type Unit interface {
	List(*ListRequest) (models.WorkUnits, error)
	Get(int64) (*models.WorkUnit, error)
	Tasks(int64) (models.Tasks, error)
}

type unitService struct {
	ctx   context.Context
	stage *study.Stage
	store store.Store
}

// Service returns the work unit service of one stage.
func Service(ctx context.Context, def *study.Definition, st store.Store, stage string) (Unit, error) {
	s, err := def.Stage(stage)
	if err != nil {
		return nil, err
	}

	return &unitService{ctx: ctx, stage: s, store: st}, nil
}

type ListRequest struct {
	Status models.Status
	Batch  string
}

func (u *unitService) columns() []string {
	return models.WorkUnitColumns(u.stage.Parameters.Names(), u.stage.Dependent())
}

func (u *unitService) List(req *ListRequest) (models.WorkUnits, error) {
	filter := &query.Filter{}
	if req.Status != "" {
		filter = filter.And(models.ColStatus, query.Eq, string(req.Status))
	}
	if req.Batch != "" {
		filter = filter.And(models.ColBatchName, query.Eq, req.Batch)
	}

	cols := u.columns()
	rows, err := u.store.Select(u.ctx, u.stage.UnitTable(), cols, filter.OrderBy(models.ColWorkUnitID))
	if err != nil {
		return nil, err
	}

	return models.NewWorkUnits(cols, rows)
}

func (u *unitService) Get(id int64) (*models.WorkUnit, error) {
	cols := u.columns()
	rows, err := u.store.Select(u.ctx, u.stage.UnitTable(), cols,
		query.Where(models.ColWorkUnitID, query.Eq, id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	return models.NewWorkUnit(cols, rows[0])
}

// Tasks lists every gather attempt of a unit, oldest first. Artifact
// blobs are not loaded.
func (u *unitService) Tasks(id int64) (models.Tasks, error) {
	if _, err := u.Get(id); err != nil {
		return nil, err
	}

	rows, err := u.store.Select(u.ctx, u.stage.TaskTable(), models.TaskColumns,
		query.Where(models.ColWorkUnitID, query.Eq, id).OrderBy(models.ColTaskID))
	if err != nil {
		return nil, err
	}

	return models.NewTasks(models.TaskColumns, rows)
}
