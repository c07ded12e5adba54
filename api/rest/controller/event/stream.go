package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/caesium-cloud/sweep/internal/event"
	"github.com/caesium-cloud/sweep/pkg/log"
	"github.com/labstack/echo/v4"
)

var keepAlive = 15 * time.Second

type Controller struct {
	bus event.Bus
}

func New(bus event.Bus) *Controller {
	return &Controller{bus: bus}
}

func (ctrl *Controller) Stream(c echo.Context) error {
	ctx := c.Request().Context()

	filter := event.Filter{
		Study: c.QueryParam("study"),
		Stage: c.QueryParam("stage"),
	}

	if typesStr := c.QueryParam("types"); typesStr != "" {
		for _, s := range strings.Split(typesStr, ",") {
			filter.Types = append(filter.Types, event.Type(strings.TrimSpace(s)))
		}
	}

	ch, err := ctrl.bus.Subscribe(ctx, filter)
	if err != nil {
		return echo.NewHTTPError(500, err.Error())
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")

	if _, err := fmt.Fprintf(c.Response(), ": ping\n\n"); err != nil {
		return nil
	}
	c.Response().Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprintf(c.Response(), ": ping\n\n"); err != nil {
				return nil
			}
			c.Response().Flush()
		case e, ok := <-ch:
			if !ok {
				return nil
			}

			data, err := json.Marshal(e)
			if err != nil {
				log.Error("failed to marshal event for stream", "id", e.ID, "error", err)
				continue
			}

			if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
				return nil
			}
			c.Response().Flush()
		}
	}
}
