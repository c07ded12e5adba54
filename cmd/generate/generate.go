package generate

import (
	"github.com/caesium-cloud/sweep/cmd/common"
	"github.com/caesium-cloud/sweep/internal/sweep"
	"github.com/spf13/cobra"
)

var stage string

// Cmd is the generate command.
var Cmd = &cobra.Command{
	Use:     "generate",
	Short:   "Create work units for every parameter combination",
	Long:    "Expands the parameter space of the root stage and chains dependent stages onto complete parent units. Existing combinations are skipped.",
	Aliases: []string{"gen"},
	Example: "sweep generate --stage sixtrack",
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

		gen := sweep.NewGenerator(s.Definition, s.Store, nil)
		chain := sweep.NewChainer(s.Definition, s.Store, nil)

		for _, st := range stages {
			var res *sweep.Result
			if st.Dependent() {
				res, err = chain.Chain(ctx, st.Name)
			} else {
				res, err = gen.Generate(ctx, st.Name)
			}
			if err != nil {
				return err
			}

			if err := common.Printf(cmd, "%s: %d created, %d duplicate(s)\n", st.Name, len(res.Created), res.Duplicates); err != nil {
				return err
			}
		}

		return nil
	},
}

func init() {
	Cmd.Flags().StringVar(&stage, "stage", "", "Stage to generate (default: every stage, root first)")
}
