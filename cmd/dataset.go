package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/claimhawk/trajector/internal/observability"
)

// newDatasetCmd creates the `dataset` command group for managing datasets in
// the configured database.
func newDatasetCmd() *cobra.Command {
	datasetCmd := &cobra.Command{
		Use:   "dataset",
		Short: "Manages training datasets",
	}
	datasetCmd.AddCommand(newDatasetCreateCmd())
	datasetCmd.AddCommand(newDatasetListCmd())
	datasetCmd.AddCommand(newDatasetStatsCmd())
	datasetCmd.AddCommand(newDatasetDeleteCmd())
	return datasetCmd
}

func newDatasetCreateCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Creates a dataset (idempotent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, pool, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			id, err := st.CreateDataset(ctx, args[0], description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", args[0], id)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "dataset description")
	return cmd
}

func newDatasetListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists all datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, pool, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			datasets, err := st.ListDatasets(ctx)
			if err != nil {
				return err
			}
			if len(datasets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no datasets")
				return nil
			}
			for _, d := range datasets {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d samples\t%s\n",
					d.Name, d.SampleCount, d.CreatedAt.Format("2006-01-02"))
			}
			return nil
		},
	}
}

func newDatasetStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [name]",
		Short: "Shows one dataset's record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, pool, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			d, err := st.GetDatasetStats(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:         %s\n", d.Name)
			fmt.Fprintf(out, "id:           %s\n", d.ID)
			fmt.Fprintf(out, "description:  %s\n", d.Description)
			fmt.Fprintf(out, "samples:      %d\n", d.SampleCount)
			fmt.Fprintf(out, "created:      %s\n", d.CreatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newDatasetDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [name]",
		Short: "Deletes a dataset with all its samples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, pool, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := st.DeleteDataset(ctx, args[0]); err != nil {
				return err
			}
			observability.GetLogger().Info("Dataset removed", zap.String("name", args[0]))
			return nil
		},
	}
}
