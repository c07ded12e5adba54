package http

import (
	"context"

	"github.com/caesium-cloud/sweep/internal/trigger"
	"github.com/caesium-cloud/sweep/pkg/log"
	"github.com/google/uuid"
)

// HTTP fires a pass when the API receives a request for one.
type HTTP struct {
	trigger.Trigger
	id   uuid.UUID
	fire trigger.Func
}

func New(fire trigger.Func) *HTTP {
	return &HTTP{id: uuid.New(), fire: fire}
}

func (h *HTTP) Listen(ctx context.Context) {
	log.Info("trigger listening", "id", h.id, "type", "http")
	<-ctx.Done()
}

func (h *HTTP) Fire(ctx context.Context) error {
	log.Info("trigger firing", "id", h.id, "type", "http")
	return h.fire(ctx)
}

func (h *HTTP) ID() uuid.UUID {
	return h.id
}
