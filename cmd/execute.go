package cmd

import (
	"github.com/caesium-cloud/sweep/cmd/common"
	"github.com/caesium-cloud/sweep/cmd/gather"
	"github.com/caesium-cloud/sweep/cmd/generate"
	"github.com/caesium-cloud/sweep/cmd/initialize"
	"github.com/caesium-cloud/sweep/cmd/start"
	"github.com/caesium-cloud/sweep/cmd/status"
	"github.com/caesium-cloud/sweep/cmd/submit"
	"github.com/spf13/cobra"

	_ "github.com/caesium-cloud/sweep/internal/cluster/docker"
	_ "github.com/caesium-cloud/sweep/internal/cluster/htcondor"
	_ "github.com/caesium-cloud/sweep/internal/cluster/kubernetes"
)

var cmds = []*cobra.Command{
	initialize.Cmd,
	generate.Cmd,
	submit.Cmd,
	gather.Cmd,
	status.Cmd,
	start.Cmd,
}

// Execute builds the command tree and executes commands.
func Execute() error {
	command := &cobra.Command{
		Use:           "sweep",
		Short:         "Generate, submit and gather parameter sweep studies",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}

	common.BindFlags(command)

	for _, c := range cmds {
		command.AddCommand(c)
	}

	return command.Execute()
}
