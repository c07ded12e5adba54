package unit

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/caesium-cloud/sweep/api/rest/service/unit"
	"github.com/caesium-cloud/sweep/internal/models"
	"github.com/caesium-cloud/sweep/internal/store"
	"github.com/caesium-cloud/sweep/internal/study"
	"github.com/labstack/echo/v4"
)

type Controller struct {
	def   *study.Definition
	store store.Store
}

func New(def *study.Definition, st store.Store) *Controller {
	return &Controller{def: def, store: st}
}

func (ctrl *Controller) service(ctx context.Context, c echo.Context) (unit.Unit, error) {
	svc, err := unit.Service(ctx, ctrl.def, ctrl.store, c.Param("stage"))
	if errors.Is(err, study.ErrUnknownStage) {
		return nil, echo.ErrNotFound.SetInternal(err)
	}
	return svc, err
}

func (ctrl *Controller) List(c echo.Context) error {
	svc, err := ctrl.service(c.Request().Context(), c)
	if err != nil {
		return err
	}

	req := &unit.ListRequest{
		Status: models.Status(c.QueryParam("status")),
		Batch:  c.QueryParam("batch"),
	}
	switch req.Status {
	case "", models.StatusIncomplete, models.StatusSubmitted, models.StatusComplete:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	units, err := svc.List(req)
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, units)
}

func (ctrl *Controller) Get(c echo.Context) error {
	svc, err := ctrl.service(c.Request().Context(), c)
	if err != nil {
		return err
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	u, err := svc.Get(id)
	switch {
	case errors.Is(err, unit.ErrNotFound):
		return echo.ErrNotFound
	case err != nil:
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, u)
}

func (ctrl *Controller) Tasks(c echo.Context) error {
	svc, err := ctrl.service(c.Request().Context(), c)
	if err != nil {
		return err
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	tasks, err := svc.Tasks(id)
	switch {
	case errors.Is(err, unit.ErrNotFound):
		return echo.ErrNotFound
	case err != nil:
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, tasks)
}
