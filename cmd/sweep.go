package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentiq/crm-engine/internal/runner"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one recovery pass over stale jobs and campaigns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := runner.NewSweeper(st, cfg.Sweeper.StaleAfter()).Sweep(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("sweep complete", zap.Int("recovered", n))
		cmd.Printf("recovered %d stale records\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
