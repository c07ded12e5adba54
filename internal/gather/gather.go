// Package gather harvests finished job directories into the store
// and drives work units from submitted to complete or incomplete.
package gather

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/caesium-cloud/sweep/internal/cluster"
	"github.com/caesium-cloud/sweep/internal/event"
	"github.com/caesium-cloud/sweep/internal/metrics"
	"github.com/caesium-cloud/sweep/internal/models"
	"github.com/caesium-cloud/sweep/internal/store"
	"github.com/caesium-cloud/sweep/internal/store/query"
	"github.com/caesium-cloud/sweep/internal/study"
	"github.com/caesium-cloud/sweep/pkg/log"
)

// ErrNoResults stops a pass whose result root is missing or empty.
var ErrNoResults = errors.New("no results to gather")

// errStale rolls back an item whose unit left the submitted state
// while it was being gathered.
var errStale = errors.New("work unit is no longer submitted")

// Skip reasons.
const (
	reasonNotDir  = "not_dir"
	reasonForeign = "foreign"
	reasonRunning = "running"
	reasonUnknown = "unknown"
	reasonStale   = "stale"
)

// Report summarises one gather pass.
type Report struct {
	Stage     string        `json:"stage"`
	Succeeded []int64       `json:"succeeded"`
	Failed    []int64       `json:"failed"`
	Running   int           `json:"running"`
	Unknown   int           `json:"unknown"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// Gatherer reconciles one stage's result root with its tables.
type Gatherer struct {
	def     *study.Definition
	store   store.Store
	cluster cluster.Cluster
	bus     event.Bus
	reclaim bool
	now     func() time.Time
}

// Option configures a Gatherer.
type Option func(*Gatherer)

// WithReclaim controls whether gathered directories are removed.
// Reclaiming is on by default.
func WithReclaim(reclaim bool) Option {
	return func(g *Gatherer) { g.reclaim = reclaim }
}

// WithBus publishes task events on bus.
func WithBus(bus event.Bus) Option {
	return func(g *Gatherer) { g.bus = bus }
}

// New returns a Gatherer asking c for completion.
func New(def *study.Definition, st store.Store, c cluster.Cluster, opts ...Option) *Gatherer {
	g := &Gatherer{
		def:     def,
		store:   st,
		cluster: c,
		bus:     event.Nop(),
		reclaim: true,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Gather runs one pass over the stage's result root. Each item is
// committed on its own, so an aborted pass keeps what it finished.
func (g *Gatherer) Gather(ctx context.Context, stage string) (*Report, error) {
	s, err := g.def.Stage(stage)
	if err != nil {
		return nil, err
	}

	start := g.now()
	report := &Report{Stage: s.Name}
	defer func() {
		report.Duration = g.now().Sub(start)
		metrics.GatherDurationSeconds.WithLabelValues(s.Name).Observe(report.Duration.Seconds())
	}()

	root := g.def.OutputDir(s)
	entries, err := os.ReadDir(root)
	if err != nil || len(entries) == 0 {
		log.Error("result root is missing or empty", "stage", s.Name, "path", root)
		return report, fmt.Errorf("%w: %s", ErrNoResults, root)
	}

	index, err := g.index(ctx, s)
	if err != nil {
		return report, err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		item := entry.Name()
		if !entry.IsDir() {
			g.skip(report, s, reasonNotDir)
			continue
		}

		unit, ok := index[item]
		if !ok {
			log.Debug("no submitted work unit for directory", "stage", s.Name, "item", item)
			g.skip(report, s, reasonForeign)
			continue
		}

		done, err := g.cluster.CheckCompletion(ctx, unit.UniqueID)
		if err != nil {
			log.Warn("completion check failed", "stage", s.Name, "item", item, "unique_id", unit.UniqueID, "error", err)
			done = cluster.Unknown
		}

		switch done {
		case cluster.Running:
			log.Info("job is still running", "stage", s.Name, "item", item, "unique_id", unit.UniqueID)
			report.Running++
			g.skip(report, s, reasonRunning)
			continue
		case cluster.Finished:
		default:
			report.Unknown++
			g.skip(report, s, reasonUnknown)
			continue
		}

		dir := filepath.Join(root, item)
		a := g.extract(s, dir, item, unit)

		if err := g.commit(ctx, s, unit, a); err != nil {
			if errors.Is(err, errStale) {
				log.Warn("skipping changed work unit", "stage", s.Name, "item", item)
				g.skip(report, s, reasonStale)
				continue
			}
			log.Error("failed to record task", "stage", s.Name, "item", item, "error", err)
			return report, err
		}

		g.announce(s, unit, a)
		if a.task.Succeeded() {
			report.Succeeded = append(report.Succeeded, unit.ID)
		} else {
			report.Failed = append(report.Failed, unit.ID)
		}

		if g.reclaim {
			if err := os.RemoveAll(dir); err != nil {
				log.Error("failed to reclaim job directory", "stage", s.Name, "item", item, "error", err)
			}
		}
	}

	g.census(ctx, s)

	log.Info("gather pass finished",
		"stage", s.Name,
		"succeeded", len(report.Succeeded),
		"failed", len(report.Failed),
		"running", report.Running,
		"unknown", report.Unknown,
		"skipped", report.Skipped,
	)
	return report, nil
}

// index maps a job item identifier (the wu_id as text) to every
// submitted unit of the stage.
func (g *Gatherer) index(ctx context.Context, s *study.Stage) (map[string]*models.WorkUnit, error) {
	columns := models.WorkUnitColumns(nil, s.Dependent())
	rows, err := g.store.Select(ctx, s.UnitTable(), columns,
		query.Where(models.ColStatus, query.Eq, string(models.StatusSubmitted)))
	if err != nil {
		return nil, err
	}
	units, err := models.NewWorkUnits(columns, rows)
	if err != nil {
		return nil, err
	}

	index := make(map[string]*models.WorkUnit, len(units))
	for _, u := range units {
		index[strconv.FormatInt(u.ID, 10)] = u
	}
	return index, nil
}

func (g *Gatherer) skip(report *Report, s *study.Stage, reason string) {
	report.Skipped++
	metrics.GatherSkippedTotal.WithLabelValues(s.Name, reason).Inc()
}

func (g *Gatherer) announce(s *study.Stage, unit *models.WorkUnit, a *attempt) {
	typ := event.TypeTaskSucceeded
	if !a.task.Succeeded() {
		typ = event.TypeTaskFailed
	}

	e := event.NewEvent(typ, g.def.Name(), s.Name, unit.ID, map[string]any{
		"count":    a.task.Count,
		"problems": a.problems,
	})
	e.TaskID = a.task.ID
	g.bus.Publish(e)

	metrics.TasksGatheredTotal.WithLabelValues(s.Name, string(a.task.Status)).Inc()
	if len(a.rows) > 0 {
		metrics.ResultRowsTotal.WithLabelValues(s.Name, "valid").Add(float64(len(a.rows) - a.invalid))
		metrics.ResultRowsTotal.WithLabelValues(s.Name, "sentinel").Add(float64(a.invalid))
	}
}

// census refreshes the per-status unit gauge.
func (g *Gatherer) census(ctx context.Context, s *study.Stage) {
	for _, status := range []models.Status{models.StatusIncomplete, models.StatusSubmitted, models.StatusComplete} {
		n, err := g.store.Count(ctx, s.UnitTable(), query.Where(models.ColStatus, query.Eq, string(status)))
		if err != nil {
			log.Warn("failed to count work units", "stage", s.Name, "status", status, "error", err)
			return
		}
		metrics.Units.WithLabelValues(s.Name, string(status)).Set(float64(n))
	}
}
