package gather

import (
	"context"

	"github.com/caesium-cloud/sweep/internal/models"
	"github.com/caesium-cloud/sweep/internal/store"
	"github.com/caesium-cloud/sweep/internal/store/query"
	"github.com/caesium-cloud/sweep/internal/study"
)

// commit records the attempt and moves the unit in one transaction:
// task, then result rows, then the unit, so a unit never references
// a task that does not exist.
func (g *Gatherer) commit(ctx context.Context, s *study.Stage, unit *models.WorkUnit, a *attempt) error {
	mtime := float64(g.now().UnixNano()) / 1e9

	return g.store.Transaction(ctx, func(tx store.Store) error {
		last, err := tx.Max(ctx, s.TaskTable(), models.ColTaskID, nil)
		if err != nil {
			return err
		}
		prior, err := tx.Count(ctx, s.TaskTable(), query.Where(models.ColWorkUnitID, query.Eq, unit.ID))
		if err != nil {
			return err
		}

		task := a.task
		task.ID = last + 1
		task.Count = prior + 1
		task.MTime = mtime

		if err := tx.Insert(ctx, s.TaskTable(), task.Values()); err != nil {
			return err
		}

		if len(a.rows) > 0 {
			if format, ok := s.RecordFormat(); ok {
				columns := append([]string{models.ColTaskID, models.ColRowNum}, format.Names()...)
				columns = append(columns, models.ColMTime)
				for _, row := range a.rows {
					row[0] = task.ID
				}
				if err := tx.InsertMany(ctx, s.ResultTable(), columns, a.rows); err != nil {
					return err
				}
			}
		}

		values := map[string]any{models.ColMTime: mtime}
		if task.Succeeded() {
			values[models.ColStatus] = string(models.StatusComplete)
			values[models.ColTaskID] = task.ID
		} else {
			values[models.ColStatus] = string(models.StatusIncomplete)
			pinned, err := pinned(ctx, tx, s, unit.ID)
			if err != nil {
				return err
			}
			if !pinned {
				values[models.ColTaskID] = task.ID
			}
		}

		n, err := tx.Update(ctx, s.UnitTable(), values,
			query.Where(models.ColWorkUnitID, query.Eq, unit.ID).
				And(models.ColStatus, query.Eq, string(models.StatusSubmitted)))
		if err != nil {
			return err
		}
		if n == 0 {
			return errStale
		}
		return nil
	})
}

// pinned reports whether the unit currently references a successful
// task. A later failed retry must not replace that reference.
func pinned(ctx context.Context, tx store.Store, s *study.Stage, wuID int64) (bool, error) {
	rows, err := tx.Select(ctx, s.UnitTable(), []string{models.ColTaskID},
		query.Where(models.ColWorkUnitID, query.Eq, wuID))
	if err != nil || len(rows) == 0 {
		return false, err
	}

	taskID, ok := store.Int64(rows[0][0])
	if !ok {
		return false, nil
	}

	rows, err = tx.Select(ctx, s.TaskTable(), []string{models.ColStatus},
		query.Where(models.ColTaskID, query.Eq, taskID))
	if err != nil || len(rows) == 0 {
		return false, err
	}
	return store.String(rows[0][0]) == string(models.TaskSuccess), nil
}
