package models

import "github.com/caesium-cloud/sweep/internal/store"

// ColRowNum is the per-task line number of a result row.
const ColRowNum = "row_num"

// ResultSchema describes a stage's wide result table keyed by
// (task_id, row_num).
func ResultSchema(taskTable string, columns []store.Column) store.Schema {
	cols := []store.Column{
		{Name: ColTaskID, Type: store.Integer, NotNull: true},
		{Name: ColRowNum, Type: store.Integer, NotNull: true},
	}
	cols = append(cols, columns...)
	cols = append(cols, store.Column{Name: ColMTime, Type: store.Real})

	return store.Schema{
		Columns:    cols,
		PrimaryKey: []string{ColTaskID, ColRowNum},
		ForeignKeys: []store.ForeignKey{{
			Columns:    []string{ColTaskID},
			Table:      taskTable,
			References: []string{ColTaskID},
		}},
	}
}
