package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/leadflow/internal/core"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type importOptions struct {
	file       string
	mappings   []string
	campaign   string
	dryRun     bool
	invalidOut string
	maxRows    int
	template   string
	saveAs     string
}

// importReport is the JSON output of the import command.
type importReport struct {
	SessionID string              `json:"session_id"`
	File      string              `json:"file"`
	Mapping   core.ColumnMapping  `json:"mapping"`
	Summary   core.PreviewSummary `json:"summary"`
	DryRun    bool                `json:"dry_run"`
	Result    *core.ImportResult  `json:"result,omitempty"`
}

func newImportCommand(root *rootOptions) *cobra.Command {
	opts := &importOptions{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Validate a lead file and commit its valid rows",
		Long: `Runs a file through the import pipeline: parse, detect the column
mapping, apply --map overrides, normalize and validate every row, then
commit the valid rows to the lead store.

With --dry-run nothing is written and only the preview summary is printed.`,
		Example: `  leadctl import --file leads.csv
  leadctl import --file leads.xlsx --map email=E-mail --map company=
  leadctl import --file leads.csv --db postgres://localhost/leads --dry-run
  leadctl import --file may.csv --template "Trade show" --save-template "Trade show v2"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "CSV or XLSX file to import (required)")
	cmd.Flags().StringArrayVar(&opts.mappings, "map", nil, "override a column mapping as field=Header; an empty header unmaps the field")
	cmd.Flags().StringVar(&opts.campaign, "campaign", "", "campaign id to attach leads to")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "validate only, do not commit")
	cmd.Flags().StringVar(&opts.invalidOut, "invalid-out", "", "write invalid rows with their errors to this CSV file")
	cmd.Flags().IntVar(&opts.maxRows, "max-rows", 0, "reject files with more data rows (0 means no limit)")
	cmd.Flags().StringVar(&opts.template, "template", "", "apply the saved mapping with this name before --map overrides")
	cmd.Flags().StringVar(&opts.saveAs, "save-template", "", "save the final mapping under this name")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(cmd *cobra.Command, root *rootOptions, opts *importOptions) error {
	ctx := cmd.Context()

	overrides, err := parseMappings(opts.mappings)
	if err != nil {
		return err
	}
	campaignID, err := parseCampaign(opts.campaign)
	if err != nil {
		return err
	}

	st, err := root.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open lead store: %w", err)
	}
	defer st.Close()

	svc, err := core.NewService(st, core.Options{MaxRows: opts.maxRows})
	if err != nil {
		return err
	}

	f, err := os.Open(opts.file)
	if err != nil {
		return err
	}
	defer f.Close()

	sess, err := svc.StartImport(ctx, root.tenant, filepath.Base(opts.file), f, campaignID)
	if err != nil {
		return userError(err)
	}
	if opts.template != "" {
		tpl, err := findTemplate(cmd, svc, root.tenant, opts.template)
		if err != nil {
			return err
		}
		if sess, err = svc.ApplyTemplate(ctx, sess.ID, root.tenant, tpl.ID); err != nil {
			return userError(err)
		}
	}
	if len(overrides) > 0 {
		if sess, err = svc.UpdateMapping(ctx, sess.ID, root.tenant, overrides); err != nil {
			return userError(err)
		}
	}
	if sess, err = svc.ConfirmMapping(ctx, sess.ID, root.tenant); err != nil {
		return userError(err)
	}

	if opts.saveAs != "" {
		if _, err := svc.SaveTemplate(ctx, sess.ID, root.tenant, opts.saveAs); err != nil {
			return userError(err)
		}
	}

	preview, err := svc.Preview(ctx, sess.ID, root.tenant)
	if err != nil {
		return userError(err)
	}

	if opts.invalidOut != "" && preview.Summary.InvalidCount > 0 {
		if err := writeInvalidRows(cmd, svc, sess, root.tenant, opts.invalidOut); err != nil {
			return err
		}
	}

	report := importReport{
		SessionID: sess.ID,
		File:      opts.file,
		Mapping:   sess.Mapping,
		Summary:   preview.Summary,
		DryRun:    opts.dryRun,
	}

	if !opts.dryRun {
		done, err := svc.Commit(ctx, sess.ID, root.tenant, nil)
		if err != nil {
			return userError(err)
		}
		report.Result = done.Result
	}

	p := newPrinter(cmd.OutOrStdout(), root.format)
	if err := p.emit(report, func(w io.Writer) error {
		printImportReport(w, report)
		return nil
	}); err != nil {
		return err
	}

	if report.Result != nil && report.Result.Error != "" {
		return fmt.Errorf("commit failed: %s", report.Result.Error)
	}
	return nil
}

func writeInvalidRows(cmd *cobra.Command, svc *core.Service, sess core.ImportSession, tenant, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := svc.WriteInvalidRows(cmd.Context(), sess.ID, tenant, out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func printImportReport(w io.Writer, r importReport) {
	row(w, "File", r.File)
	for _, spec := range core.Fields() {
		header, _ := r.Mapping.Header(spec.Field)
		row(w, "  "+spec.Label, orDash(header))
	}
	row(w, "Rows", r.Summary.TotalRows)
	row(w, "Valid", r.Summary.ValidCount)
	row(w, "Invalid", r.Summary.InvalidCount)
	if r.Summary.DuplicatePhones > 0 {
		row(w, "Duplicate phones", r.Summary.DuplicatePhones)
	}

	switch {
	case r.DryRun:
		row(w, "Committed", "no (dry run)")
	case r.Result != nil:
		row(w, "Imported", r.Result.Succeeded)
		row(w, "Failed", r.Result.Failed)
		for _, rej := range r.Result.Rejected {
			row(w, fmt.Sprintf("  row %d", rej.Row), rej.Reason)
		}
	}
}

// parseMappings turns field=Header flags into mapping overrides.
func parseMappings(values []string) (map[core.Field]string, error) {
	overrides := make(map[core.Field]string, len(values))
	for _, v := range values {
		name, header, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --map %q: want field=Header", v)
		}
		f, err := core.ParseField(name)
		if err != nil {
			return nil, fmt.Errorf("invalid --map %q: %w", v, err)
		}
		overrides[f] = strings.TrimSpace(header)
	}
	return overrides, nil
}

func parseCampaign(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid campaign id %q: %w", s, err)
	}
	return &id, nil
}

// userError appends the support message to err.
func userError(err error) error {
	return fmt.Errorf("%w\n%s", err, core.FormatUserError(err))
}
