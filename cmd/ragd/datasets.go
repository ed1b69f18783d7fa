package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDatasetsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List indexed datasets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()
			defer a.release()

			names, err := a.svc.Datasets()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a dataset's index and uploads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()
			defer a.release()

			removed, err := a.svc.DeleteDataset(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s (index=%t uploads=%t)\n", args[0], removed.Index, removed.Uploads)
			return nil
		},
	})
	return cmd
}
