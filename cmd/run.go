package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run [job-id]",
	Short: "Claim and run one enrichment job in the foreground",
	Long:  "With a job ID, claims that specific queued job; without, claims the oldest queued job. Runs it to a terminal status.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		jr, err := initJobRunner(st)
		if err != nil {
			return err
		}

		var jobID string
		if len(args) == 1 {
			jobID = args[0]
			if err := st.StartJob(ctx, jobID); err != nil {
				return eris.Wrap(err, "claim job")
			}
		} else {
			job, err := st.ClaimQueuedJob(ctx)
			if err != nil {
				return eris.Wrap(err, "claim job")
			}
			if job == nil {
				zap.L().Info("queue is empty")
				return nil
			}
			jobID = job.ID
		}

		job, err := st.GetJob(ctx, jobID)
		if err != nil {
			return eris.Wrap(err, "load job")
		}

		status, err := jr.Run(ctx, job)
		if err != nil {
			return eris.Wrapf(err, "job %s ended %s", jobID, status)
		}

		zap.L().Info("job finished",
			zap.String("job_id", jobID),
			zap.String("status", string(status)),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
