package internal

import (
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/s1lag/internal/middleware"
)

var defaultCommands = []middleware.CommandFactory{
	NewInitCmd,
	NewVersionCmd,
	middleware.UseMiddlewareChain(middleware.LoadConfig, middleware.OpenStore)(NewSampleCmd),
	middleware.UseMiddlewareChain(middleware.LoadConfig, middleware.OpenStore)(NewPlotCmd),
	middleware.UseMiddlewareChain(middleware.LoadConfig, middleware.OpenStore)(NewReportCmd),
}

func RegisterSubCommands(cmd *cobra.Command) {
	for _, factory := range defaultCommands {
		cmd.AddCommand(factory())
	}
}
