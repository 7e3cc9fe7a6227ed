package main

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentiq/crm-engine/internal/model"
	"github.com/agentiq/crm-engine/internal/store"
)

var leadsOrg string

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Manage CRM leads",
}

var leadsImportCmd = &cobra.Command{
	Use:   "import <csv-file>",
	Short: "Bulk import leads from CSV",
	Long:  "Imports leads from a CSV with header company_name,contact_name,email,website,industry,headquarters. Uses COPY for speed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		leads, err := readLeadCSV(args[0], leadsOrg)
		if err != nil {
			return err
		}
		if len(leads) == 0 {
			return eris.New("no leads found in file")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := st.ImportLeads(ctx, leads)
		if err != nil {
			return eris.Wrap(err, "import leads")
		}

		zap.L().Info("leads imported", zap.Int64("count", n))
		return nil
	},
}

func readLeadCSV(path, orgID string) ([]model.Lead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read csv header")
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	if _, ok := col["company_name"]; !ok {
		return nil, eris.New("csv must have a company_name column")
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var leads []model.Lead
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read csv")
		}
		if field(rec, "company_name") == "" {
			continue
		}
		leads = append(leads, model.Lead{
			OrgID:        orgID,
			CompanyName:  field(rec, "company_name"),
			ContactName:  field(rec, "contact_name"),
			Email:        field(rec, "email"),
			Website:      field(rec, "website"),
			Industry:     field(rec, "industry"),
			Headquarters: field(rec, "headquarters"),
		})
	}
	return leads, nil
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		leads, err := st.ListLeads(ctx, store.LeadFilter{OrgID: leadsOrg})
		if err != nil {
			return eris.Wrap(err, "list leads")
		}

		for i := range leads {
			l := &leads[i]
			cmd.Printf("%s\t%s\t%s\t%s\t%s\n", l.ID, l.CompanyName, l.ContactName, l.Email, l.Status)
		}
		return nil
	},
}

func init() {
	leadsImportCmd.Flags().StringVar(&leadsOrg, "org", "", "organization ID (required)")
	_ = leadsImportCmd.MarkFlagRequired("org")
	leadsListCmd.Flags().StringVar(&leadsOrg, "org", "", "filter by organization ID")
	leadsCmd.AddCommand(leadsImportCmd, leadsListCmd)
	rootCmd.AddCommand(leadsCmd)
}
