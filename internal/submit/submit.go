// Package submit dispatches incomplete work units to the cluster and
// records the identifiers it hands back.
package submit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caesium-cloud/sweep/internal/cluster"
	"github.com/caesium-cloud/sweep/internal/event"
	"github.com/caesium-cloud/sweep/internal/metrics"
	"github.com/caesium-cloud/sweep/internal/models"
	"github.com/caesium-cloud/sweep/internal/store"
	"github.com/caesium-cloud/sweep/internal/store/query"
	"github.com/caesium-cloud/sweep/internal/study"
	"github.com/caesium-cloud/sweep/pkg/codec"
	"github.com/caesium-cloud/sweep/pkg/log"
)

// Result describes one submitted batch.
type Result struct {
	Batch     string
	Submitted []int64
}

// Submitter moves work units from incomplete to submitted.
type Submitter struct {
	def     *study.Definition
	store   store.Store
	cluster cluster.Cluster
	backend string
	policy  cluster.RetryPolicy
	bus     event.Bus
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithRetryPolicy overrides cluster.DefaultRetryPolicy.
func WithRetryPolicy(p cluster.RetryPolicy) Option {
	return func(s *Submitter) { s.policy = p }
}

// WithBus publishes unit_submitted events on bus.
func WithBus(bus event.Bus) Option {
	return func(s *Submitter) { s.bus = bus }
}

// New returns a Submitter dispatching to c, which is registered as
// backend.
func New(def *study.Definition, st store.Store, c cluster.Cluster, backend string, opts ...Option) *Submitter {
	s := &Submitter{
		def:     def,
		store:   st,
		cluster: c,
		backend: backend,
		policy:  cluster.DefaultRetryPolicy,
		bus:     event.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit dispatches every incomplete unit of stage as one batch. For
// a dependent stage only units whose parent is complete qualify.
func (s *Submitter) Submit(ctx context.Context, stage string) (*Result, error) {
	st, err := s.def.Stage(stage)
	if err != nil {
		return nil, err
	}

	units, err := s.eligible(ctx, st)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		log.Warn("no work units available to submit", "stage", st.Name)
		return &Result{}, nil
	}

	inputDir := s.def.InputDir(st)
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		return nil, err
	}

	jobs := make([]cluster.Job, 0, len(units))
	for _, u := range units {
		data, err := codec.Decode(u.InputFile)
		if err != nil {
			return nil, fmt.Errorf("work unit %d: decode input: %w", u.ID, err)
		}

		id := strconv.FormatInt(u.ID, 10)
		bundle := filepath.Join(inputDir, id+".yaml")
		if err := os.WriteFile(bundle, data, 0o644); err != nil {
			return nil, err
		}

		jobs = append(jobs, cluster.Job{
			WorkUnitID: u.ID,
			Name:       u.JobName,
			Bundle:     bundle,
			Dest:       filepath.Join(s.def.OutputDir(st), id),
		})
	}

	if err := s.cluster.Prepare(ctx, &cluster.PrepareRequest{
		Study:      s.def.Name(),
		Stage:      st.Name,
		Executable: st.Executable,
		InputDir:   inputDir,
		OutputDir:  s.def.OutputDir(st),
		Jobs:       jobs,
	}); err != nil {
		return nil, fmt.Errorf("prepare %s: %w", st.Name, err)
	}

	batch, err := s.batchName(ctx, st)
	if err != nil {
		return nil, err
	}

	ids := map[int64]string{}
	remaining := jobs
	submitErr := s.policy.Do(ctx, func() error {
		got, err := s.cluster.Submit(ctx, &cluster.SubmitRequest{
			Study:      s.def.Name(),
			Stage:      st.Name,
			Executable: st.Executable,
			InputDir:   inputDir,
			OutputDir:  s.def.OutputDir(st),
			BatchName:  batch,
			Jobs:       remaining,
		})
		for id, uid := range got {
			ids[id] = uid
		}
		remaining = pending(remaining, ids)

		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		metrics.SubmitAttemptsTotal.WithLabelValues(s.backend, outcome).Inc()
		return err
	})

	res := &Result{Batch: batch}
	if len(ids) > 0 {
		if res.Submitted, err = s.mark(ctx, st, batch, ids); err != nil {
			return nil, err
		}
	}

	if submitErr != nil {
		log.Warn("failed to submit batch", "stage", st.Name, "batch", batch, "pending", len(remaining), "error", submitErr)
		return res, fmt.Errorf("submit %s: %w", batch, submitErr)
	}

	log.Info("submitted work units", "stage", st.Name, "batch", batch, "count", len(res.Submitted))
	return res, nil
}

func (s *Submitter) eligible(ctx context.Context, st *study.Stage) (models.WorkUnits, error) {
	filter := query.Where(models.ColStatus, query.Eq, string(models.StatusIncomplete))

	if parent := s.def.ParentOf(st); parent != nil {
		rows, err := s.store.Select(ctx, parent.UnitTable(), []string{models.ColWorkUnitID},
			query.Where(models.ColStatus, query.Eq, string(models.StatusComplete)))
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			log.Warn("no complete parent work units", "stage", st.Name, "parent", parent.Name)
			return nil, nil
		}
		ids := make([]any, len(rows))
		for i, row := range rows {
			ids[i] = row[0]
		}
		filter.And(models.ColParentID, query.In, ids...)
	}

	columns := []string{models.ColWorkUnitID, models.ColJobName, models.ColInputFile}
	rows, err := s.store.Select(ctx, st.UnitTable(), columns, filter.OrderBy(models.ColWorkUnitID))
	if err != nil {
		return nil, err
	}
	return models.NewWorkUnits(columns, rows)
}

// batchName numbers batches per stage: <study>/<stage>_<n> where n
// is one past the highest number recorded so far.
func (s *Submitter) batchName(ctx context.Context, st *study.Stage) (string, error) {
	prefix := s.def.Name() + "/" + st.Name + "_"
	rows, err := s.store.Select(ctx, st.UnitTable(), []string{models.ColBatchName},
		query.Where(models.ColBatchName, query.Like, prefix+"%").Distinct())
	if err != nil {
		return "", err
	}

	last := 0
	for _, row := range rows {
		// LIKE treats '_' as a wildcard, so the prefix is checked again
		suffix, ok := strings.CutPrefix(store.String(row[0]), prefix)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(suffix); err == nil && n > last {
			last = n
		}
	}
	return prefix + strconv.Itoa(last+1), nil
}

func (s *Submitter) mark(ctx context.Context, st *study.Stage, batch string, ids map[int64]string) ([]int64, error) {
	var submitted []int64
	mtime := float64(time.Now().UnixNano()) / 1e9

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		for id, uid := range ids {
			n, err := tx.Update(ctx, st.UnitTable(), map[string]any{
				models.ColStatus:    string(models.StatusSubmitted),
				models.ColUniqueID:  uid,
				models.ColBatchName: batch,
				models.ColMTime:     mtime,
			}, query.Where(models.ColWorkUnitID, query.Eq, id).
				And(models.ColStatus, query.Eq, string(models.StatusIncomplete)))
			if err != nil {
				return err
			}
			if n == 0 {
				log.Warn("work unit changed during submission", "stage", st.Name, "wu_id", id, "unique_id", uid)
				continue
			}
			submitted = append(submitted, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(submitted)
	for _, id := range submitted {
		s.bus.Publish(event.NewEvent(event.TypeUnitSubmitted, s.def.Name(), st.Name, id, map[string]string{
			"batch_name": batch,
			"unique_id":  ids[id],
		}))
	}
	metrics.UnitsSubmittedTotal.WithLabelValues(st.Name).Add(float64(len(submitted)))

	return submitted, nil
}

func pending(jobs []cluster.Job, done map[int64]string) []cluster.Job {
	out := jobs[:0:0]
	for _, j := range jobs {
		if _, ok := done[j.WorkUnitID]; !ok {
			out = append(out, j)
		}
	}
	return out
}
