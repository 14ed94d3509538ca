package main

import (
	"io"

	"github.com/JonMunkholm/leadflow/internal/core"
	"github.com/spf13/cobra"
)

func newCampaignCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Manage the campaigns leads are imported into",
	}
	cmd.AddCommand(newCampaignCreateCommand(root))
	cmd.AddCommand(newCampaignListCommand(root))
	return cmd
}

func newCampaignCreateCommand(root *rootOptions) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a campaign for the tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := root.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			c, err := st.CreateCampaign(cmd.Context(), root.tenant, name)
			if err != nil {
				return err
			}
			return newPrinter(cmd.OutOrStdout(), root.format).emit(c, func(w io.Writer) error {
				row(w, c.ID, c.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "campaign name (required)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newCampaignListCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tenant's campaigns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := root.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			campaigns, err := st.ListCampaigns(cmd.Context(), root.tenant)
			if err != nil {
				return err
			}
			return newPrinter(cmd.OutOrStdout(), root.format).emit(campaigns, func(w io.Writer) error {
				row(w, "ID", "NAME", "CREATED")
				for _, c := range campaigns {
					row(w, c.ID, c.Name, c.CreatedAt.Format("2006-01-02 15:04"))
				}
				return nil
			})
		},
	}
}

func newHistoryCommand(root *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent imports for the tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := root.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if limit <= 0 {
				limit = core.DefaultHistoryLimit
			}
			entries, err := st.ListImports(cmd.Context(), root.tenant, limit)
			if err != nil {
				return err
			}
			return newPrinter(cmd.OutOrStdout(), root.format).emit(entries, func(w io.Writer) error {
				row(w, "WHEN", "FILE", "ACTION", "IMPORTED", "FAILED")
				for _, e := range entries {
					row(w, e.CreatedAt.Format("2006-01-02 15:04"), orDash(e.FileName), e.Action, e.Succeeded, e.Failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", core.DefaultHistoryLimit, "number of entries to show")
	return cmd
}
