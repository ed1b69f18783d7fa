package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragd/internal/domain"
)

func newIndexCmd(cfgPath *string) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "index --dataset NAME FILE...",
		Short: "Build a dataset index from .txt and .json files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, files []string) error {
			if name == "" {
				return errors.New("--dataset is required")
			}
			a, err := bootstrap(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()
			defer a.close(5 * time.Second)

			for _, f := range files {
				data, err := os.ReadFile(f)
				if err != nil {
					return err
				}
				up, err := a.uploads.Save(name, filepath.Base(f), data)
				if err != nil {
					return fmt.Errorf("%s: %w", f, err)
				}
				a.log.Info("file stored", zap.String("file", f), zap.Int("passages", up.Passages))
			}
			passages, err := a.uploads.Passages(name)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.svc.RegisterProgressObserver(func(s domain.ProgressState) error {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%3.0f%%] %s %s\n", s.Progress*100, s.CurrentStep, s.Message)
				return nil
			})
			task, err := a.svc.StartIndexing(ctx, passages, a.svc.EngineConfig(name))
			if err != nil {
				return err
			}
			if err := task.Wait(ctx); err != nil {
				task.Cancel()
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d passages into %s\n", len(passages), name)
			if s := a.svc.Summary(); s != "" {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "dataset", "", "dataset name")
	return cmd
}
