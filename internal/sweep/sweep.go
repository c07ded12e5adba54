package sweep

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/caesium-cloud/sweep/internal/event"
	"github.com/caesium-cloud/sweep/internal/metrics"
	"github.com/caesium-cloud/sweep/internal/models"
	"github.com/caesium-cloud/sweep/internal/store"
	"github.com/caesium-cloud/sweep/internal/study"
	"github.com/caesium-cloud/sweep/pkg/codec"
	"github.com/caesium-cloud/sweep/pkg/log"
)

// Result summarises one generator or chainer run.
type Result struct {
	Created    []int64
	Duplicates int
}

// engine holds what the generator and the chainer share: the
// existing-tuple index, id assignment and persistence.
type engine struct {
	def   *study.Definition
	store store.Store
	bus   event.Bus
	now   func() time.Time
}

func newEngine(def *study.Definition, st store.Store, bus event.Bus) engine {
	if bus == nil {
		bus = event.Nop()
	}
	return engine{def: def, store: st, bus: bus, now: time.Now}
}

// index maps the tuple of every existing unit to its job name.
func (e *engine) index(ctx context.Context, table string, columns []string) (map[string]string, error) {
	rows, err := e.store.Select(ctx, table, append([]string{models.ColJobName}, columns...), nil)
	if err != nil {
		return nil, err
	}

	idx := make(map[string]string, len(rows))
	for _, row := range rows {
		tuple := make([]string, len(columns))
		for i, v := range row[1:] {
			if columns[i] == models.ColParentID {
				id, _ := store.Int64(v)
				tuple[i] = strconv.FormatInt(id, 10)
				continue
			}
			tuple[i] = store.String(v)
		}
		idx[tupleKey(tuple)] = store.String(row[0])
	}
	return idx, nil
}

func (e *engine) nextID(ctx context.Context, table string) (int64, error) {
	max, err := e.store.Max(ctx, table, models.ColWorkUnitID, nil)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// encode renders a bundle into the unit's input blob.
func (e *engine) encode(s *study.Stage, b *study.Bundle) ([]byte, error) {
	b.Paths.Dest = filepath.Join(e.def.OutputDir(s), strconv.FormatInt(b.Unit.ID, 10))
	data, err := b.Marshal()
	if err != nil {
		return nil, fmt.Errorf("work unit %s: %w", b.Unit.Name, err)
	}
	return codec.Encode(data)
}

// persist inserts the new units in one statement batch and announces
// them once the insert has succeeded.
func (e *engine) persist(ctx context.Context, s *study.Stage, units []*models.WorkUnit) error {
	if len(units) == 0 {
		return nil
	}

	columns := []string{models.ColWorkUnitID}
	if s.Dependent() {
		columns = append(columns, models.ColParentID)
	}
	columns = append(columns, models.ColJobName)
	columns = append(columns, s.Parameters.Names()...)
	columns = append(columns, models.ColInputFile, models.ColStatus, models.ColMTime)

	rows := make([]store.Row, len(units))
	for i, u := range units {
		values := u.Values()
		row := make(store.Row, len(columns))
		for j, col := range columns {
			row[j] = values[col]
		}
		rows[i] = row
	}

	if err := e.store.InsertMany(ctx, s.UnitTable(), columns, rows); err != nil {
		return err
	}

	for _, u := range units {
		log.Info("stored work unit", "stage", s.Name, "wu_id", u.ID, "job", u.JobName)
		e.bus.Publish(event.NewEvent(event.TypeUnitCreated, e.def.Name(), s.Name, u.ID, map[string]any{
			"job_name":  u.JobName,
			"parent_id": u.ParentID,
		}))
	}
	metrics.UnitsGeneratedTotal.WithLabelValues(s.Name).Add(float64(len(units)))

	return nil
}

func (e *engine) duplicate(s *study.Stage, job string) {
	log.Warn("work unit already exists", "stage", s.Name, "job", job)
	metrics.UnitsDuplicateTotal.WithLabelValues(s.Name).Inc()
}

func (e *engine) mtime() float64 {
	return float64(e.now().UnixNano()) / 1e9
}

func section(names, values []string) study.Section {
	s := make(study.Section, len(names))
	for i := range names {
		s[i] = study.Setting{Key: names[i], Value: values[i]}
	}
	return s
}
