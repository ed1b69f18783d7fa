package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "ragd",
		Short:         "Retrieval-augmented question answering over local datasets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/ragd/config.yaml)")

	root.AddCommand(
		newServeCmd(&cfgPath),
		newConsoleCmd(&cfgPath),
		newIndexCmd(&cfgPath),
		newDatasetsCmd(&cfgPath),
	)
	return root
}
