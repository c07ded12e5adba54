package models

import (
	"fmt"

	"github.com/caesium-cloud/sweep/internal/store"
)

// Status is the lifecycle state of a work unit.
type Status string

const (
	// StatusIncomplete marks a freshly generated unit, or one whose
	// last gather attempt failed and that is eligible for resubmission.
	StatusIncomplete Status = "incomplete"
	// StatusSubmitted marks a unit dispatched to the cluster.
	StatusSubmitted Status = "submitted"
	// StatusComplete marks a unit whose results were validated and
	// ingested.
	StatusComplete Status = "complete"
)

// Work unit columns.
const (
	ColWorkUnitID = "wu_id"
	ColParentID   = "parent_id"
	ColJobName    = "job_name"
	ColInputFile  = "input_file"
	ColBatchName  = "batch_name"
	ColUniqueID   = "unique_id"
	ColStatus     = "status"
	ColTaskID     = "task_id"
	ColMTime      = "mtime"
)

// WorkUnit is one parameterized job instance of a stage.
type WorkUnit struct {
	ID        int64             `json:"wu_id"`
	ParentID  *int64            `json:"parent_id,omitempty"`
	JobName   string            `json:"job_name"`
	Params    map[string]string `json:"params"`
	InputFile []byte            `json:"-"`
	BatchName string            `json:"batch_name,omitempty"`
	UniqueID  string            `json:"unique_id,omitempty"`
	Status    Status            `json:"status"`
	TaskID    *int64            `json:"task_id,omitempty"`
	MTime     float64           `json:"mtime"`
}

// Values renders the unit as a column map for insertion.
func (w *WorkUnit) Values() map[string]any {
	values := map[string]any{
		ColWorkUnitID: w.ID,
		ColJobName:    w.JobName,
		ColInputFile:  w.InputFile,
		ColStatus:     string(w.Status),
		ColMTime:      w.MTime,
	}
	if w.ParentID != nil {
		values[ColParentID] = *w.ParentID
	}
	if w.BatchName != "" {
		values[ColBatchName] = w.BatchName
	}
	if w.UniqueID != "" {
		values[ColUniqueID] = w.UniqueID
	}
	if w.TaskID != nil {
		values[ColTaskID] = *w.TaskID
	}
	for k, v := range w.Params {
		values[k] = v
	}
	return values
}

// WorkUnitSchema describes a stage's work unit table. Dependent
// stages carry parent_id referencing the parent stage table.
func WorkUnitSchema(params []string, parentTable string) store.Schema {
	cols := []store.Column{
		{Name: ColWorkUnitID, Type: store.Integer, NotNull: true},
	}
	if parentTable != "" {
		cols = append(cols, store.Column{Name: ColParentID, Type: store.Integer, NotNull: true})
	}
	cols = append(cols, store.Column{Name: ColJobName, Type: store.Text, NotNull: true})
	for _, p := range params {
		cols = append(cols, store.Column{Name: p, Type: store.Text})
	}
	cols = append(cols,
		store.Column{Name: ColInputFile, Type: store.Blob},
		store.Column{Name: ColBatchName, Type: store.Text},
		store.Column{Name: ColUniqueID, Type: store.Text},
		store.Column{Name: ColStatus, Type: store.Text, NotNull: true},
		store.Column{Name: ColTaskID, Type: store.Integer},
		store.Column{Name: ColMTime, Type: store.Real},
	)

	schema := store.Schema{Columns: cols, PrimaryKey: []string{ColWorkUnitID}}
	if parentTable != "" {
		schema.ForeignKeys = []store.ForeignKey{{
			Columns:    []string{ColParentID},
			Table:      parentTable,
			References: []string{ColWorkUnitID},
		}}
	}
	return schema
}

// WorkUnitColumns lists the columns NewWorkUnit understands, without
// the (potentially large) input blob.
func WorkUnitColumns(params []string, dependent bool) []string {
	cols := []string{ColWorkUnitID}
	if dependent {
		cols = append(cols, ColParentID)
	}
	cols = append(cols, ColJobName, ColBatchName, ColUniqueID, ColStatus, ColTaskID, ColMTime)
	return append(cols, params...)
}

// NewWorkUnit decodes a selected row. Columns that are not known
// work unit fields are treated as parameter values.
func NewWorkUnit(columns []string, values store.Row) (*WorkUnit, error) {
	if len(columns) != len(values) {
		return nil, fmt.Errorf("work unit row has %d values for %d columns", len(values), len(columns))
	}

	w := &WorkUnit{Params: map[string]string{}}
	for i, col := range columns {
		v := values[i]
		switch col {
		case ColWorkUnitID:
			id, ok := store.Int64(v)
			if !ok {
				return nil, fmt.Errorf("invalid %s: %v", ColWorkUnitID, v)
			}
			w.ID = id
		case ColParentID:
			if id, ok := store.Int64(v); ok {
				w.ParentID = &id
			}
		case ColTaskID:
			if id, ok := store.Int64(v); ok {
				w.TaskID = &id
			}
		case ColJobName:
			w.JobName = store.String(v)
		case ColInputFile:
			w.InputFile = store.Bytes(v)
		case ColBatchName:
			w.BatchName = store.String(v)
		case ColUniqueID:
			w.UniqueID = store.String(v)
		case ColStatus:
			w.Status = Status(store.String(v))
		case ColMTime:
			w.MTime, _ = store.Float64(v)
		default:
			w.Params[col] = store.String(v)
		}
	}

	return w, nil
}

// WorkUnits is a list of decoded work units.
type WorkUnits []*WorkUnit

// NewWorkUnits decodes every selected row.
func NewWorkUnits(columns []string, rows []store.Row) (units WorkUnits, err error) {
	units = make(WorkUnits, len(rows))

	for i := range units {
		if units[i], err = NewWorkUnit(columns, rows[i]); err != nil {
			return nil, err
		}
	}

	return
}
