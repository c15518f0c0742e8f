package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ignacheck",
		Short:         "Run compliance analyses from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", os.Getenv("CONFIG_PATH"),
		"Path to the YAML config file (defaults plus IGNACHECK_* environment when empty)")
	root.AddCommand(newAnalyzeCmd(), newScoreCmd())
	return root
}
