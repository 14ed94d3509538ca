package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/leadflow/internal/core"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newTemplateCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage saved column mappings",
	}
	cmd.AddCommand(newTemplateListCommand(root))
	cmd.AddCommand(newTemplateDeleteCommand(root))
	return cmd
}

func newTemplateListCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tenant's saved mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := root.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			templates, err := st.ListTemplates(cmd.Context(), root.tenant)
			if err != nil {
				return err
			}
			return newPrinter(cmd.OutOrStdout(), root.format).emit(templates, func(w io.Writer) error {
				row(w, "ID", "NAME", "PHONE COLUMN", "COLUMNS")
				for _, t := range templates {
					phone, _ := t.Mapping.Header(core.FieldPhoneNumber)
					row(w, t.ID, t.Name, orDash(phone), strings.Join(t.Headers, ", "))
				}
				return nil
			})
		},
	}
}

func newTemplateDeleteCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a saved mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid template id %q", args[0])
			}

			st, err := root.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DeleteTemplate(cmd.Context(), root.tenant, id); err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			return nil
		},
	}
}

// findTemplate looks a template up by name, ignoring case.
func findTemplate(cmd *cobra.Command, svc *core.Service, tenant, name string) (core.MappingTemplate, error) {
	templates, err := svc.ListTemplates(cmd.Context(), tenant)
	if err != nil {
		return core.MappingTemplate{}, userError(err)
	}
	for _, t := range templates {
		if strings.EqualFold(t.Name, strings.TrimSpace(name)) {
			return t, nil
		}
	}
	return core.MappingTemplate{}, userError(fmt.Errorf("%w: %q", core.ErrTemplateNotFound, name))
}
