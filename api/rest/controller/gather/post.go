package gather

import (
	"errors"
	"net/http"

	"github.com/caesium-cloud/sweep/internal/trigger"
	"github.com/labstack/echo/v4"
)

type Controller struct {
	triggers map[string]trigger.Trigger
}

func New(triggers map[string]trigger.Trigger) *Controller {
	return &Controller{triggers: triggers}
}

// Post runs a gather pass for the stage and waits for it to finish.
func (ctrl *Controller) Post(c echo.Context) error {
	t, ok := ctrl.triggers[c.Param("stage")]
	if !ok {
		return echo.ErrNotFound
	}

	err := t.Fire(c.Request().Context())
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, trigger.ErrBusy):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.ErrInternalServerError.SetInternal(err)
	}
}
