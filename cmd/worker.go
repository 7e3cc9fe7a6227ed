package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentiq/crm-engine/internal/runner"
	"github.com/agentiq/crm-engine/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background worker",
	Long:  "Claims queued jobs and orphaned running campaigns, runs them concurrently, and sweeps stale work on an interval. Stops cleanly on SIGINT/SIGTERM.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

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
		cr, err := initCampaignRunner(st)
		if err != nil {
			// Campaigns need SMTP; a worker without it still runs jobs.
			zap.L().Warn("campaign runner unavailable, jobs only", zap.Error(err))
		}

		w := worker.New(st, jr, campaignRunnerOrNoop(cr), worker.Config{
			MaxConcurrentRuns: cfg.Worker.MaxConcurrentRuns,
			PollInterval:      time.Duration(cfg.Worker.PollIntervalSecs) * time.Second,
		})
		sweeper := runner.NewSweeper(st, cfg.Sweeper.StaleAfter())

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return w.Run(gctx) })
		g.Go(func() error { return sweeper.Loop(gctx, cfg.Sweeper.StaleAfter()/4) })

		if err := g.Wait(); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	},
}

// campaignRunnerOrNoop avoids handing the worker a typed-nil interface
// when SMTP is not configured; a nil interface disables campaign claims.
func campaignRunnerOrNoop(cr *runner.CampaignRunner) worker.CampaignRunner {
	if cr != nil {
		return cr
	}
	return nil
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
