package main

import (
	"os"

	"github.com/grovetools/envmirror/cli"
	"github.com/grovetools/envmirror/cmd"
	"github.com/grovetools/envmirror/pkg/profiling"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"envmirror",
		"Mirror backend settings and environments, and follow their changes",
	)

	profiling.NewCobraProfiler().Attach(rootCmd)

	// Add subcommands
	rootCmd.AddCommand(cmd.NewSettingsCmd())
	rootCmd.AddCommand(cmd.NewEnvsCmd())
	rootCmd.AddCommand(cmd.NewFilesCmd())
	rootCmd.AddCommand(cmd.NewWatchCmd())
	rootCmd.AddCommand(cmd.NewBackendCmd())
	rootCmd.AddCommand(cmd.NewConfigCmd())
	rootCmd.AddCommand(cmd.NewPathsCmd())
	rootCmd.AddCommand(cli.NewVersionCommand("envmirror"))

	if err := rootCmd.Execute(); err != nil {
		verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
		cli.NewErrorHandler(verbose).Handle(err)
		os.Exit(1)
	}
}
