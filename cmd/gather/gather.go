package gather

import (
	"errors"

	"github.com/caesium-cloud/sweep/cmd/common"
	"github.com/caesium-cloud/sweep/internal/gather"
	"github.com/caesium-cloud/sweep/pkg/env"
	"github.com/spf13/cobra"
)

var (
	stage string
	keep  bool
)

// Cmd is the gather command.
var Cmd = &cobra.Command{
	Use:     "gather",
	Short:   "Collect finished job results into the database",
	Example: "sweep gather --stage sixtrack --keep",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := common.Open(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		stages, err := s.Stages(stage)
		if err != nil {
			return err
		}

		c, _, err := common.Cluster()
		if err != nil {
			return err
		}

		g := gather.New(s.Definition, s.Store, c, gather.WithReclaim(env.Variables().GatherReclaim && !keep))
		for _, st := range stages {
			report, err := g.Gather(ctx, st.Name)
			if errors.Is(err, gather.ErrNoResults) && stage == "" {
				continue
			}
			if err != nil {
				return err
			}

			if err := common.Printf(cmd, "%s: %d succeeded, %d failed, %d running, %d unknown, %d skipped\n",
				st.Name, len(report.Succeeded), len(report.Failed), report.Running, report.Unknown, report.Skipped); err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	Cmd.Flags().StringVar(&stage, "stage", "", "Stage to gather (default: every stage with results)")
	Cmd.Flags().BoolVar(&keep, "keep", false, "Keep job directories after gathering")
}
