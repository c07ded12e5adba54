package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/caesium-cloud/sweep/api/rest/bind"
	"github.com/caesium-cloud/sweep/pkg/env"
	"github.com/caesium-cloud/sweep/pkg/log"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
)

var server *echo.Echo

// New builds sweep's API without starting it.
func New(deps bind.Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// health
	e.GET("/health", health(deps))

	// metrics
	prometheus.NewPrometheus("sweep", nil).Use(e)

	// REST
	bind.All(e.Group("/v1"), deps)

	return e
}

// Start launches sweep's API and blocks until it stops.
func Start(ctx context.Context, deps bind.Dependencies) error {
	server = New(deps)

	go func() {
		<-ctx.Done()
		if err := Shutdown(); err != nil {
			log.Error("api shutdown failure", "error", err)
		}
	}()

	err := server.Start(fmt.Sprintf(":%v", env.Variables().Port))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the API if it is running.
func Shutdown() error {
	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Shutdown(ctx)
}
