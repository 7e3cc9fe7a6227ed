package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentiq/crm-engine/internal/model"
)

var (
	enrichWebsite string
	enrichSave    bool
	enrichOrg     string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <company-name>",
	Short: "Enrich a single company outside any job",
	Long:  "Runs one enrichment and prints the profile as JSON. With --save the result is stored with no job attached; no job counters move.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		company := args[0]

		if enrichSave && enrichOrg == "" {
			return eris.New("--org is required with --save")
		}

		ag, err := initAgent()
		if err != nil {
			return err
		}

		profile, outcome, err := ag.Enrich(ctx, company, enrichWebsite)
		if err != nil {
			return eris.Wrapf(err, "enrich %s", company)
		}

		zap.L().Info("enrichment complete",
			zap.String("company", company),
			zap.Int("iterations", outcome.Iterations),
			zap.Int("tool_calls", outcome.ToolCalls),
			zap.Int64("tokens_used", outcome.TokensUsed),
		)

		if enrichSave {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}

			result := &model.EnrichmentResult{
				OrgID:        enrichOrg,
				InputName:    company,
				InputWebsite: enrichWebsite,
				Status:       model.ResultStatusCompleted,
				Profile:      profile,
				ModelUsed:    outcome.ModelUsed,
				TokensUsed:   int(outcome.TokensUsed),
				ToolCalls:    outcome.ToolCalls,
				ProcessingMS: int(outcome.ProcessingMS),
			}
			if err := st.RecordResult(ctx, result); err != nil {
				return eris.Wrap(err, "save result")
			}
			zap.L().Info("result saved", zap.String("result_id", result.ID))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichWebsite, "website", "", "known website, scraped directly")
	enrichCmd.Flags().BoolVar(&enrichSave, "save", false, "store the result (no job attached)")
	enrichCmd.Flags().StringVar(&enrichOrg, "org", "", "organization ID (required with --save)")
	rootCmd.AddCommand(enrichCmd)
}
