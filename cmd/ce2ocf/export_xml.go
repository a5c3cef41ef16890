package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wehubfusion/ce2ocf/pkg/logging"
	"github.com/wehubfusion/ce2ocf/pkg/record"
)

func newExportXMLCmd(a *app) *cobra.Command {
	var (
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export-xml INPUT",
		Short: "Write answers as a vendor answers XML export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(args[0], format)
			if err != nil {
				return err
			}
			records, err := req.SourceRecords()
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			if err := record.ToAnswersXML(w, records); err != nil {
				return err
			}
			a.logger.Debug("Exported answers", logging.F("records", len(records)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "input format: auto, records or envelope")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}
