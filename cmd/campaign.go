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
	campaignOrg      string
	campaignName     string
	campaignSubject  string
	campaignBodyFile string
	campaignFrom     string
	campaignReplyTo  string
	campaignRate     int
	campaignLeadIDs  []string
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Manage email campaigns",
}

var campaignCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a draft campaign",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		body, err := os.ReadFile(campaignBodyFile)
		if err != nil {
			return eris.Wrap(err, "read body template")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		campaign, err := st.CreateCampaign(ctx, &model.Campaign{
			OrgID:        campaignOrg,
			Name:         campaignName,
			Subject:      campaignSubject,
			BodyTemplate: string(body),
			FromName:     campaignFrom,
			ReplyTo:      campaignReplyTo,
			SendRate:     campaignRate,
		})
		if err != nil {
			return eris.Wrap(err, "create campaign")
		}

		if len(campaignLeadIDs) > 0 {
			added, err := st.AddCampaignLeads(ctx, campaign.ID, campaignLeadIDs)
			if err != nil {
				return eris.Wrap(err, "attach leads")
			}
			zap.L().Info("leads attached", zap.Int("added", added))
		}

		cmd.Println(campaign.ID)
		return nil
	},
}

var campaignSendCmd = &cobra.Command{
	Use:   "send <campaign-id>",
	Short: "Start a campaign and drive it in the foreground",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		campaignID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		cr, err := initCampaignRunner(st)
		if err != nil {
			return err
		}

		if err := st.StartCampaign(ctx, campaignID); err != nil {
			return eris.Wrap(err, "start campaign")
		}

		status, err := cr.Run(ctx, campaignID)
		if err != nil {
			return eris.Wrapf(err, "campaign %s ended %s", campaignID, status)
		}

		zap.L().Info("campaign run finished",
			zap.String("campaign_id", campaignID),
			zap.String("status", string(status)),
		)
		return nil
	},
}

var campaignPauseCmd = &cobra.Command{
	Use:   "pause <campaign-id>",
	Short: "Pause a running campaign at the next send boundary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.PauseCampaign(ctx, args[0]); err != nil {
			return eris.Wrap(err, "pause campaign")
		}
		cmd.Printf("campaign %s paused\n", args[0])
		return nil
	},
}

var campaignResumeCmd = &cobra.Command{
	Use:   "resume <campaign-id>",
	Short: "Resume a paused campaign and drive it in the foreground",
	Args:  cobra.ExactArgs(1),
	RunE:  campaignSendCmd.RunE,
}

var campaignStatusCmd = &cobra.Command{
	Use:   "status <campaign-id>",
	Short: "Show a campaign's progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		campaign, err := st.GetCampaign(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get campaign")
		}
		pending, err := st.CountPendingLeads(ctx, campaign.ID)
		if err != nil {
			return eris.Wrap(err, "count pending")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"campaign":      campaign,
			"progress_pct":  campaign.ProgressPct(),
			"pending_leads": pending,
		})
	},
}

func init() {
	campaignCreateCmd.Flags().StringVar(&campaignOrg, "org", "", "organization ID (required)")
	campaignCreateCmd.Flags().StringVar(&campaignName, "name", "", "campaign name")
	campaignCreateCmd.Flags().StringVar(&campaignSubject, "subject", "", "subject template (required)")
	campaignCreateCmd.Flags().StringVar(&campaignBodyFile, "body", "", "HTML body template file (required)")
	campaignCreateCmd.Flags().StringVar(&campaignFrom, "from-name", "", "sender display name")
	campaignCreateCmd.Flags().StringVar(&campaignReplyTo, "reply-to", "", "reply-to address")
	campaignCreateCmd.Flags().IntVar(&campaignRate, "rate", 10, "sends per minute")
	campaignCreateCmd.Flags().StringArrayVar(&campaignLeadIDs, "lead", nil, "lead ID to attach (repeatable)")
	_ = campaignCreateCmd.MarkFlagRequired("org")
	_ = campaignCreateCmd.MarkFlagRequired("subject")
	_ = campaignCreateCmd.MarkFlagRequired("body")

	campaignCmd.AddCommand(campaignCreateCmd, campaignSendCmd, campaignPauseCmd, campaignResumeCmd, campaignStatusCmd)
	rootCmd.AddCommand(campaignCmd)
}
