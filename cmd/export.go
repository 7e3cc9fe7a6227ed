package main

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentiq/crm-engine/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Export a job's results to CSV or XLSX",
	Long:  "Writes results to --out; the extension picks the format (.csv or .xlsx).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		jobID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		results, err := st.ListResults(ctx, jobID)
		if err != nil {
			return eris.Wrap(err, "list results")
		}

		f, err := os.Create(exportOut)
		if err != nil {
			return eris.Wrap(err, "create output file")
		}
		defer f.Close()

		switch {
		case strings.HasSuffix(exportOut, ".csv"):
			err = export.WriteCSV(f, results)
		case strings.HasSuffix(exportOut, ".xlsx"):
			err = export.WriteXLSX(f, results)
		default:
			return eris.Errorf("unsupported output format: %s", exportOut)
		}
		if err != nil {
			return err
		}

		zap.L().Info("results exported",
			zap.String("job_id", jobID),
			zap.String("file", exportOut),
			zap.Int("rows", len(results)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file, .csv or .xlsx (required)")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}
