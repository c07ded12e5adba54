package api

import (
	"net/http"
	"time"

	"github.com/caesium-cloud/sweep/api/rest/bind"
	"github.com/labstack/echo/v4"
)

var startedAt = time.Now()

// HealthResponse reports whether the study database answers and which
// stages are missing their work unit table.
type HealthResponse struct {
	Status  Status        `json:"status"`
	Study   string        `json:"study,omitempty"`
	Uptime  time.Duration `json:"uptime"`
	Missing []string      `json:"missing,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Status enumerates the health statuses of sweep.
type Status string

const (
	// Healthy means every stage table is reachable.
	Healthy Status = "healthy"
	// Uninitialized means the store answers but `sweep init` has not
	// created every stage.
	Uninitialized Status = "uninitialized"
	// Unavailable means the store could not be queried.
	Unavailable Status = "unavailable"
)

// health checks the unit table of each stage. Anything short of
// Healthy answers 503 so orchestrators hold traffic back.
func health(deps bind.Dependencies) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := HealthResponse{
			Status: Healthy,
			Uptime: time.Since(startedAt),
		}

		if deps.Definition != nil && deps.Store != nil {
			resp.Study = deps.Definition.Name()

			for _, st := range deps.Definition.Stages {
				ok, err := deps.Store.HasTable(c.Request().Context(), st.UnitTable())
				if err != nil {
					resp.Status = Unavailable
					resp.Error = err.Error()
					break
				}
				if !ok {
					resp.Status = Uninitialized
					resp.Missing = append(resp.Missing, st.Name)
				}
			}
		}

		code := http.StatusOK
		if resp.Status != Healthy {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, resp)
	}
}
