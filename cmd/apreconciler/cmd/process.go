package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"invoice-reconciliation-service/internal/report"
)

var processOutputFormat string

// processCmd runs the reconciliation pipeline for one invoice
var processCmd = &cobra.Command{
	Use:   "process <invoice-id>",
	Short: "Run the reconciliation pipeline for one invoice",
	Long: `Process loads an extracted invoice, matches it against open purchase
orders, assesses fraud risk, and prints the decision.

The pipeline always produces a terminal result: input problems and stage
failures come back as a FAILED state routed to manual review, not as a
crash.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVarP(&processOutputFormat, "output-format", "o", "console", "output format (console, json)")
}

func runProcess(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	cfg, err := loadConfigAndLogger()
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	format := report.OutputFormat(processOutputFormat)
	if !format.IsValid() {
		return fmt.Errorf("unsupported output format: %s", processOutputFormat)
	}

	st, engine, err := buildPipeline(cfg)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer st.Close()

	state := engine.Process(cmd.Context(), args[0])

	if err := report.NewReporter(os.Stdout).Write(state, format); err != nil {
		os.Exit(handler.HandleError(err))
	}

	return nil
}
