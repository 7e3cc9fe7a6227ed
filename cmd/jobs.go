package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/agentiq/crm-engine/internal/model"
	"github.com/agentiq/crm-engine/internal/store"
)

var (
	jobsOrg    string
	jobsStatus string
	jobsLimit  int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage enrichment jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		jobs, err := st.ListJobs(ctx, store.JobFilter{
			OrgID:  jobsOrg,
			Status: model.JobStatus(jobsStatus),
			Limit:  jobsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list jobs")
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPROGRESS\tFAILED\tCREATED")
		for i := range jobs {
			j := &jobs[i]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\t%s\n",
				j.ID, j.Name, j.Status, j.CompletedItems, j.TotalItems,
				j.FailedItems, j.CreatedAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job with its results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get job")
		}
		results, err := st.ListResults(ctx, job.ID)
		if err != nil {
			return eris.Wrap(err, "list results")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"job":          job,
			"progress_pct": job.ProgressPct(),
			"results":      results,
		})
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Request cancellation of a queued or running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.RequestCancel(ctx, args[0]); err != nil {
			return eris.Wrap(err, "request cancel")
		}
		cmd.Printf("cancel requested for %s\n", args[0])
		return nil
	},
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsOrg, "org", "", "filter by organization ID")
	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 50, "maximum rows")
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsCancelCmd)
	rootCmd.AddCommand(jobsCmd)
}
