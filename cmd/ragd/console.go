package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ragd/internal/tui"
)

func newConsoleCmd(cfgPath *string) *cobra.Command {
	var (
		name  string
		topK  int
		noLLM bool
	)
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Query a dataset interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()
			defer a.close(time.Second)

			if name != "" {
				if err := a.svc.LoadDataset(cmd.Context(), name); err != nil {
					return fmt.Errorf("load dataset %s: %w", name, err)
				}
			}
			if topK <= 0 {
				topK = a.cfg.Query.DefaultTopK
			}
			useLLM := a.cfg.LLM.Enabled() && !noLLM
			_, err = tea.NewProgram(tui.New(a.svc, topK, useLLM), tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().StringVar(&name, "dataset", "", "dataset to load before querying")
	cmd.Flags().IntVar(&topK, "top-k", 0, "documents per answer (default query.default_top_k)")
	cmd.Flags().BoolVar(&noLLM, "no-llm", false, "start with answer generation off")
	return cmd
}
