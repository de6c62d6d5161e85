package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/claimhawk/trajector/internal/export"
	"github.com/claimhawk/trajector/internal/observability"
)

// newExportCmd creates the `export` command, rendering stored datasets as
// training annotation files.
func newExportCmd() *cobra.Command {
	var (
		datasetName string
		outputPath  string
		all         bool
	)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Exports stored datasets as training annotation JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			if all == (datasetName != "") {
				return fmt.Errorf("exactly one of --dataset or --all is required")
			}

			st, pool, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if !all {
				annotations, err := st.ExportDataset(ctx, datasetName)
				if err != nil {
					return err
				}
				rendered, err := export.MarshalIndented(annotations)
				if err != nil {
					return err
				}
				if outputPath == "" {
					fmt.Fprintln(cmd.OutOrStdout(), string(rendered))
					return nil
				}
				if err := os.WriteFile(outputPath, rendered, 0o644); err != nil {
					return fmt.Errorf("failed to write export: %w", err)
				}
				logger.Info("Dataset exported",
					zap.String("dataset", datasetName),
					zap.Int("annotations", len(annotations)),
					zap.String("output", outputPath))
				return nil
			}

			// --all writes one file per dataset into the output directory.
			if outputPath == "" {
				outputPath = "."
			}
			if err := os.MkdirAll(outputPath, 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			exports, err := st.ExportAll(ctx)
			if err != nil {
				return err
			}
			for name, annotations := range exports {
				rendered, err := export.MarshalIndented(annotations)
				if err != nil {
					return err
				}
				target := filepath.Join(outputPath, name+".json")
				if err := os.WriteFile(target, rendered, 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", target, err)
				}
				logger.Info("Dataset exported",
					zap.String("dataset", name),
					zap.Int("annotations", len(annotations)),
					zap.String("output", target))
			}
			return nil
		},
	}

	exportCmd.Flags().StringVarP(&datasetName, "dataset", "d", "", "dataset to export")
	exportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (or directory with --all)")
	exportCmd.Flags().BoolVar(&all, "all", false, "export every dataset")
	return exportCmd
}
