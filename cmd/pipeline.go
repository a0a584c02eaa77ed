package cmd

import (
	"github.com/mvc24/bibliopa/internal/pipelinecmd"
	"github.com/spf13/cobra"
)

func addPipelineCmds(cmd *cobra.Command) {
	cmd.AddCommand(pipelinecmd.NewReconcileCmd())
	cmd.AddCommand(pipelinecmd.NewResolveCmd())
	cmd.AddCommand(pipelinecmd.NewParseCmd())
	cmd.AddCommand(pipelinecmd.NewPeopleCmd())
	cmd.AddCommand(pipelinecmd.NewValidateCmd())
	cmd.AddCommand(pipelinecmd.NewLoadCmd())
	cmd.AddCommand(pipelinecmd.NewExportCmd())
	cmd.AddCommand(pipelinecmd.NewReportCmd())
	cmd.AddCommand(pipelinecmd.NewRunCmd())
}
