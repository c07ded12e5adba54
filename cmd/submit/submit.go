package submit

import (
	"github.com/caesium-cloud/sweep/cmd/common"
	"github.com/caesium-cloud/sweep/internal/submit"
	"github.com/spf13/cobra"
)

var stage string

// Cmd is the submit command.
var Cmd = &cobra.Command{
	Use:     "submit",
	Short:   "Submit incomplete work units to the cluster",
	Example: "sweep submit --stage preprocess",
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

		c, backend, err := common.Cluster()
		if err != nil {
			return err
		}

		sub := submit.New(s.Definition, s.Store, c, backend, submit.WithRetryPolicy(common.RetryPolicy()))
		for _, st := range stages {
			res, err := sub.Submit(ctx, st.Name)
			if err != nil {
				return err
			}

			if len(res.Submitted) == 0 {
				if err := common.Printf(cmd, "%s: nothing to submit\n", st.Name); err != nil {
					return err
				}
				continue
			}
			if err := common.Printf(cmd, "%s: submitted %d unit(s) as %s\n", st.Name, len(res.Submitted), res.Batch); err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	Cmd.Flags().StringVar(&stage, "stage", "", "Stage to submit (default: every stage, root first)")
}
