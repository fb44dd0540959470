package commands

import (
	"github.com/spf13/cobra"

	"github.com/mmynk/splitit/pkg/logging"
)

var logLevel string

func Execute() error {
	root := &cobra.Command{
		Use:          "splitctl",
		Short:        "Split restaurant bills from the command line",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(logLevel, "text")
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(allocateCmd(), extractCmd())
	return root.Execute()
}
