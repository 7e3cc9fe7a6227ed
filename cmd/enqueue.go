package main

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentiq/crm-engine/internal/model"
)

var (
	enqueueOrg       string
	enqueueName      string
	enqueueCompanies []string
	enqueueCSV       string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue a batch enrichment job",
	Long:  "Creates a queued job from --company flags or a CSV (company_name[,website]). A worker picks it up.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		input := model.JobInput{
			Companies: enqueueCompanies,
			Websites:  map[string]string{},
		}
		if enqueueCSV != "" {
			if err := readCompanyCSV(enqueueCSV, &input); err != nil {
				return err
			}
		}
		if len(input.Companies) == 0 {
			return eris.New("no companies given: use --company or --csv")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		job, err := st.CreateJob(ctx, enqueueOrg, enqueueName, input)
		if err != nil {
			return eris.Wrap(err, "create job")
		}

		zap.L().Info("job queued",
			zap.String("job_id", job.ID),
			zap.Int("total_items", job.TotalItems),
		)
		cmd.Println(job.ID)
		return nil
	},
}

// readCompanyCSV appends companies (and optional website hints) from a
// CSV file. A header row starting with "company" is skipped.
func readCompanyCSV(path string, input *model.JobInput) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrap(err, "open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return eris.Wrap(err, "read csv")
		}
		if len(rec) == 0 || rec[0] == "" {
			continue
		}
		if first {
			first = false
			if rec[0] == "company_name" || rec[0] == "company" || rec[0] == "name" {
				continue
			}
		}
		input.Companies = append(input.Companies, rec[0])
		if len(rec) > 1 && rec[1] != "" {
			input.Websites[rec[0]] = rec[1]
		}
	}
	return nil
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueOrg, "org", "", "organization ID (required)")
	enqueueCmd.Flags().StringVar(&enqueueName, "name", "", "job name")
	enqueueCmd.Flags().StringArrayVar(&enqueueCompanies, "company", nil, "company name (repeatable)")
	enqueueCmd.Flags().StringVar(&enqueueCSV, "csv", "", "CSV file of companies")
	_ = enqueueCmd.MarkFlagRequired("org")
	rootCmd.AddCommand(enqueueCmd)
}
