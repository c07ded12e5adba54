package bind

import (
	"github.com/caesium-cloud/sweep/api/rest/controller/event"
	"github.com/caesium-cloud/sweep/api/rest/controller/gather"
	"github.com/caesium-cloud/sweep/api/rest/controller/unit"
	ievent "github.com/caesium-cloud/sweep/internal/event"
	"github.com/caesium-cloud/sweep/internal/store"
	"github.com/caesium-cloud/sweep/internal/study"
	"github.com/caesium-cloud/sweep/internal/trigger"
	"github.com/labstack/echo/v4"
)

// Dependencies are shared by every controller.
type Dependencies struct {
	Definition *study.Definition
	Store      store.Store
	Bus        ievent.Bus
	// Triggers maps a stage name to the trigger that runs its gather
	// pass on demand.
	Triggers map[string]trigger.Trigger
}

func All(g *echo.Group, deps Dependencies) {
	Stages(g.Group("/stages"), deps)
	Events(g, deps)
}

func Stages(g *echo.Group, deps Dependencies) {
	units := unit.New(deps.Definition, deps.Store)

	g.GET("/:stage/units", units.List)
	g.GET("/:stage/units/:id", units.Get)
	g.GET("/:stage/units/:id/tasks", units.Tasks)

	g.POST("/:stage/gather", gather.New(deps.Triggers).Post)
}

func Events(g *echo.Group, deps Dependencies) {
	bus := deps.Bus
	if bus == nil {
		bus = ievent.Nop()
	}
	g.GET("/events", event.New(bus).Stream)
}
