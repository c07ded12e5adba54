package initialize

import (
	"github.com/caesium-cloud/sweep/cmd/common"
	"github.com/spf13/cobra"
)

// Cmd is the init command.
var Cmd = &cobra.Command{
	Use:     "init",
	Short:   "Create the study tables and directories",
	Long:    "Validates the study definition, stores its templates and creates the per-stage tables and directories.",
	Example: "sweep init --study ./study.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := common.Open(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Definition.Init(cmd.Context(), s.DB); err != nil {
			return err
		}

		return common.Printf(cmd, "Initialized study %s with %d stage(s)\n", s.Definition.Name(), len(s.Definition.Stages))
	},
}
