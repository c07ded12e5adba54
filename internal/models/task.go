package models

import (
	"fmt"

	"github.com/caesium-cloud/sweep/internal/store"
)

// TaskStatus is the outcome of one gather attempt.
type TaskStatus string

const (
	TaskSuccess TaskStatus = "Success"
	TaskFailed  TaskStatus = "Failed"
)

// Task columns.
const (
	ColTaskName = "task_name"
	ColCount    = "count"
)

// Task is one append-only gather attempt for a work unit.
type Task struct {
	ID         int64             `json:"task_id"`
	WorkUnitID int64             `json:"wu_id"`
	Name       string            `json:"task_name"`
	Count      int64             `json:"count"`
	Status     TaskStatus        `json:"status"`
	Artifacts  map[string][]byte `json:"-"`
	MTime      float64           `json:"mtime"`
}

// Fail marks the attempt as failed. A failed task never recovers.
func (t *Task) Fail() {
	t.Status = TaskFailed
}

// Succeeded reports whether every validation passed.
func (t *Task) Succeeded() bool {
	return t.Status == TaskSuccess
}

// Values renders the task as a column map for insertion.
func (t *Task) Values() map[string]any {
	values := map[string]any{
		ColTaskID:     t.ID,
		ColWorkUnitID: t.WorkUnitID,
		ColTaskName:   t.Name,
		ColCount:      t.Count,
		ColStatus:     string(t.Status),
		ColMTime:      t.MTime,
	}
	for col, blob := range t.Artifacts {
		values[col] = blob
	}
	return values
}

// TaskSchema describes a stage's task table with one blob column per
// expected artifact.
func TaskSchema(unitTable string, artifacts []string) store.Schema {
	cols := []store.Column{
		{Name: ColTaskID, Type: store.Integer, NotNull: true},
		{Name: ColWorkUnitID, Type: store.Integer, NotNull: true},
		{Name: ColTaskName, Type: store.Text},
	}
	for _, a := range artifacts {
		cols = append(cols, store.Column{Name: a, Type: store.Blob})
	}
	cols = append(cols,
		store.Column{Name: ColCount, Type: store.Integer, NotNull: true},
		store.Column{Name: ColStatus, Type: store.Text, NotNull: true},
		store.Column{Name: ColMTime, Type: store.Real},
	)

	return store.Schema{
		Columns:    cols,
		PrimaryKey: []string{ColTaskID},
		ForeignKeys: []store.ForeignKey{{
			Columns:    []string{ColWorkUnitID},
			Table:      unitTable,
			References: []string{ColWorkUnitID},
		}},
	}
}

// TaskColumns lists the scalar task columns.
var TaskColumns = []string{ColTaskID, ColWorkUnitID, ColTaskName, ColCount, ColStatus, ColMTime}

// NewTask decodes a selected row; unknown columns are artifacts.
func NewTask(columns []string, values store.Row) (*Task, error) {
	if len(columns) != len(values) {
		return nil, fmt.Errorf("task row has %d values for %d columns", len(values), len(columns))
	}

	t := &Task{Artifacts: map[string][]byte{}}
	for i, col := range columns {
		v := values[i]
		switch col {
		case ColTaskID:
			id, ok := store.Int64(v)
			if !ok {
				return nil, fmt.Errorf("invalid %s: %v", ColTaskID, v)
			}
			t.ID = id
		case ColWorkUnitID:
			t.WorkUnitID, _ = store.Int64(v)
		case ColTaskName:
			t.Name = store.String(v)
		case ColCount:
			t.Count, _ = store.Int64(v)
		case ColStatus:
			t.Status = TaskStatus(store.String(v))
		case ColMTime:
			t.MTime, _ = store.Float64(v)
		default:
			if b := store.Bytes(v); b != nil {
				t.Artifacts[col] = b
			}
		}
	}

	return t, nil
}

// Tasks is a list of decoded tasks.
type Tasks []*Task

// NewTasks decodes every selected row.
func NewTasks(columns []string, rows []store.Row) (tasks Tasks, err error) {
	tasks = make(Tasks, len(rows))

	for i := range tasks {
		if tasks[i], err = NewTask(columns, rows[i]); err != nil {
			return nil, err
		}
	}

	return
}
