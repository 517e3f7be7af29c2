package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "bynight",
		Short:         "Imports events from partner sources into the By Night agenda",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newConsumeCommand())
	root.AddCommand(newImportCommand())
	root.AddCommand(newMigrateCommand())
	return root
}
