package start

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/caesium-cloud/sweep/api"
	"github.com/caesium-cloud/sweep/api/rest/bind"
	"github.com/caesium-cloud/sweep/cmd/common"
	"github.com/caesium-cloud/sweep/internal/event"
	"github.com/caesium-cloud/sweep/internal/gather"
	"github.com/caesium-cloud/sweep/internal/metrics"
	"github.com/caesium-cloud/sweep/internal/trigger"
	"github.com/caesium-cloud/sweep/internal/trigger/cron"
	"github.com/caesium-cloud/sweep/internal/trigger/http"
	"github.com/caesium-cloud/sweep/pkg/env"
	"github.com/caesium-cloud/sweep/pkg/log"
	"github.com/spf13/cobra"
)

const (
	usage   = "start"
	short   = "Start a sweep gathering instance"
	long    = "This command serves the API and gathers every stage on the configured schedule"
	example = "sweep start --study ./study.yaml"
)

var (
	// Cmd is the start command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		Aliases:    []string{"s"},
		SuggestFor: []string{"serve", "up", "run"},
		Example:    example,
		RunE:       start,
	}
)

var cancel context.CancelFunc

func start(cmd *cobra.Command, args []string) error {
	signalChan := make(chan os.Signal, 1)

	go func() {
		for s := range signalChan {
			switch s {
			case syscall.SIGUSR1:
				log.Info("dumping stack traces due to SIGUSR1 signal")
				if profile := pprof.Lookup("goroutine"); profile != nil {
					if err := profile.WriteTo(os.Stdout, 1); err != nil {
						log.Error("write goroutine profile", "error", err)
					}
				}
			case syscall.SIGINT, syscall.SIGTERM:
				log.Info("gracefully shutting down", "signal", s.String())
				shutdown()
			}
		}
	}()

	signal.Notify(signalChan, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancelFunc := context.WithCancel(cmd.Context())
	cancel = cancelFunc
	defer shutdown()

	s, err := common.Open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	c, _, err := common.Cluster()
	if err != nil {
		return err
	}

	vars := env.Variables()
	bus := event.New()
	metrics.Register()

	g := gather.New(s.Definition, s.Store, c,
		gather.WithReclaim(vars.GatherReclaim),
		gather.WithBus(bus),
	)

	stages, err := s.Stages("")
	if err != nil {
		return err
	}

	triggers := make(map[string]trigger.Trigger, len(stages))
	for _, st := range stages {
		name := st.Name
		fire := trigger.Serial(func(ctx context.Context) error {
			_, err := g.Gather(ctx, name)
			if errors.Is(err, gather.ErrNoResults) {
				log.Debug("nothing to gather", "stage", name)
				return nil
			}
			return err
		})

		scheduled, err := cron.New(vars.GatherSchedule, vars.GatherTimezone, fire)
		if err != nil {
			return err
		}
		go scheduled.Listen(ctx)

		onDemand := http.New(fire)
		go onDemand.Listen(ctx)
		triggers[name] = onDemand
	}

	log.Info("spinning up api", "port", vars.Port, "stages", len(stages))
	return api.Start(ctx, bind.Dependencies{
		Definition: s.Definition,
		Store:      s.Store,
		Bus:        bus,
		Triggers:   triggers,
	})
}

func shutdown() {
	if cancel != nil {
		cancel()
	}
	if err := api.Shutdown(); err != nil {
		log.Error("api shutdown failure", "error", err)
	}
}
