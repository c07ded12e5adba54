package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caesium-cloud/sweep/internal/trigger"
	"github.com/caesium-cloud/sweep/pkg/log"
	"github.com/google/uuid"
	"github.com/robfig/cron"
)

type Cron struct {
	trigger.Trigger
	schedule cron.Schedule
	id       uuid.UUID
	location *time.Location
	fire     trigger.Func
}

// New parses a five field cron expression. An empty timezone uses
// the local clock.
func New(expr, timezone string, fire trigger.Func) (*Cron, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("cron trigger missing expression")
	}

	loc, err := extractLocation(timezone)
	if err != nil {
		return nil, err
	}

	parser := cron.NewParser(
		cron.Minute |
			cron.Hour |
			cron.Dom |
			cron.Month |
			cron.Dow,
	)

	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, err
	}

	return &Cron{schedule: sched, id: uuid.New(), location: loc, fire: fire}, nil
}

// Listen fires on every scheduled tick until ctx is cancelled.
func (c *Cron) Listen(ctx context.Context) {
	log.Info(
		"trigger listening",
		"id", c.id,
		"type", "cron",
		"next", c.nextTick(),
	)

	for {
		select {
		case <-time.After(time.Until(c.nextTick())):
			if err := c.Fire(ctx); err != nil {
				log.Error("trigger fire failure", "id", c.id, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Cron) Fire(ctx context.Context) error {
	log.Info(
		"trigger firing",
		"id", c.id,
		"type", "cron",
	)

	return c.fire(ctx)
}

func (c *Cron) ID() uuid.UUID {
	return c.id
}

func extractLocation(tz string) (*time.Location, error) {
	if strings.TrimSpace(tz) == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

func (c *Cron) nextTick() time.Time {
	base := time.Now()
	if c.location != nil {
		base = base.In(c.location)
	}
	return c.schedule.Next(base)
}
