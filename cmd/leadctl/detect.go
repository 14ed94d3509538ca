package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/leadflow/internal/core"
	"github.com/spf13/cobra"
)

type detectReport struct {
	File            string                `json:"file"`
	Headers         []string              `json:"headers"`
	Rows            int                   `json:"rows"`
	Mapping         core.ColumnMapping    `json:"mapping"`
	PhoneCandidates []core.PhoneCandidate `json:"phone_candidates,omitempty"`
}

func newDetectCommand(root *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Print the column mapping proposed for a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			pf, err := core.ParseFile(filepath.Base(file), f, core.ParseOptions{})
			if err != nil {
				return userError(err)
			}
			analysis, err := core.Analyze(cmd.Context(), pf)
			if err != nil {
				return err
			}

			report := detectReport{
				File:            file,
				Headers:         pf.Headers,
				Rows:            len(pf.Rows),
				Mapping:         analysis.Mapping,
				PhoneCandidates: analysis.PhoneCandidates,
			}
			return newPrinter(cmd.OutOrStdout(), root.format).emit(report, func(w io.Writer) error {
				printDetectReport(w, report)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV or XLSX file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printDetectReport(w io.Writer, r detectReport) {
	row(w, "FIELD", "COLUMN")
	for _, spec := range core.Fields() {
		header, ok := r.Mapping.Header(spec.Field)
		if !ok {
			header = "(unmapped)"
		}
		label := spec.Label
		if spec.Required {
			label += " *"
		}
		row(w, label, header)
	}
	row(w, "")
	row(w, "Rows", r.Rows)
	for _, c := range r.PhoneCandidates {
		row(w, "Phone candidate", fmt.Sprintf("%s (%.0f%% of sampled cells)", c.Header, c.ValidShare*100))
	}
}
