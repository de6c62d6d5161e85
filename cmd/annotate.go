package cmd

import (
	"fmt"
	"os"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/claimhawk/trajector/internal/action"
	"github.com/claimhawk/trajector/internal/annotator"
	"github.com/claimhawk/trajector/internal/export"
	"github.com/claimhawk/trajector/internal/observability"
	"github.com/claimhawk/trajector/internal/trajectory"
)

// annotationFile is the on-disk input for the annotate command: one task with
// its ordered steps. The image field holds the screenshot payload (a path or
// base64 blob, passed through verbatim).
type annotationFile struct {
	Task  string `json:"task"`
	Steps []struct {
		Image       string `json:"image"`
		Thought     string `json:"thought"`
		Action      string `json:"action"`
		Observation string `json:"observation,omitempty"`
	} `json:"steps"`
}

// newAnnotateCmd creates and configures the `annotate` command.
func newAnnotateCmd() *cobra.Command {
	var (
		inputFile   string
		outputFile  string
		datasetName string
		singles     bool
	)

	annotateCmd := &cobra.Command{
		Use:   "annotate",
		Short: "Builds training samples from an annotated trajectory file",
		Long: `Reads a task and its annotated steps from a JSON file, validates every
action string against the configured grammar, and emits the multi-turn
training sample. With --dataset and a configured database the sample is
persisted; with --singles each step is additionally exported as a
single-turn sample.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			raw, err := os.ReadFile(inputFile)
			if err != nil {
				return fmt.Errorf("failed to read annotation file: %w", err)
			}
			var input annotationFile
			if err := json.Unmarshal(raw, &input); err != nil {
				return fmt.Errorf("failed to parse annotation file: %w", err)
			}
			if input.Task == "" {
				return fmt.Errorf("annotation file has no task")
			}

			var persister annotator.Persister
			if datasetName != "" {
				st, pool, err := openStore(ctx)
				if err != nil {
					return err
				}
				defer pool.Close()
				persister = st
			}

			codec := action.NewCodec(action.Options{
				RequireTypeBox: appConfig.Annotation.NormalizedTypeRequiresBox,
			})
			exporter := export.NewExporter(appConfig.Export.InstructionTemplate, nil, logger)
			svc := annotator.NewService(trajectory.Config{
				MemoryCapacity: appConfig.Annotation.MemoryCapacity,
				SummaryBudget:  appConfig.Annotation.SummaryBudget,
				AllowEmpty:     appConfig.Annotation.AllowEmptyTrajectory,
				Variant:        action.Variant(appConfig.Export.CoordinateVariant),
			}, codec, exporter, persister, logger)

			sessionID := svc.OpenSession(input.Task)
			for i, step := range input.Steps {
				if err := svc.AddStep(sessionID, step.Image, step.Thought, step.Action, step.Observation); err != nil {
					return fmt.Errorf("step %d: %w", i, err)
				}
			}

			sample, err := svc.FinalizeSession(ctx, sessionID, datasetName)
			if err != nil {
				return err
			}

			if singles {
				for i, step := range input.Steps {
					if _, err := svc.AnnotateSingle(ctx, datasetName, input.Task,
						step.Image, step.Thought, step.Action); err != nil {
						return fmt.Errorf("single-turn export of step %d: %w", i, err)
					}
				}
			}

			rendered, err := export.MarshalIndented(sample)
			if err != nil {
				return err
			}
			if outputFile == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(rendered))
				return nil
			}
			if err := os.WriteFile(outputFile, rendered, 0o644); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			logger.Info("Annotation complete",
				zap.String("output", outputFile),
				zap.Int("total_steps", sample.TotalSteps))
			return nil
		},
	}

	annotateCmd.Flags().StringVarP(&inputFile, "file", "f", "", "annotated trajectory JSON file (required)")
	annotateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "write the multi-turn sample here instead of stdout")
	annotateCmd.Flags().StringVarP(&datasetName, "dataset", "d", "", "persist the sample into this dataset")
	annotateCmd.Flags().BoolVar(&singles, "singles", false, "also export each step as a single-turn sample")
	_ = annotateCmd.MarkFlagRequired("file")
	return annotateCmd
}
