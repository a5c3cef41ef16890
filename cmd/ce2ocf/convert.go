package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/wehubfusion/ce2ocf/pkg/ocf"
	"github.com/wehubfusion/ce2ocf/pkg/record"
	"github.com/wehubfusion/ce2ocf/pkg/service"
	"github.com/wehubfusion/ce2ocf/pkg/storage"
)

// Input formats accepted by convert and export-xml
const (
	formatAuto     = "auto"
	formatRecords  = "records"
	formatEnvelope = "envelope"
	formatXML      = "xml"
)

// readRequest loads the answers in path into a conversion request.
func readRequest(path, format string) (*service.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if format == formatAuto || format == "" {
		format = detectFormat(path, data)
	}
	switch format {
	case formatRecords:
		records, err := record.FromJSON(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return &service.Request{Records: records}, nil
	case formatEnvelope:
		return &service.Request{Envelope: data}, nil
	case formatXML:
		return &service.Request{AnswersXML: string(data)}, nil
	default:
		return nil, fmt.Errorf("unknown input format %q", format)
	}
}

func detectFormat(path string, data []byte) string {
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return formatXML
	}
	if gjson.ParseBytes(data).IsArray() {
		return formatRecords
	}
	return formatEnvelope
}

// newConverter builds a converter from the loaded configuration.
func (a *app) newConverter(upload bool) (*service.Converter, error) {
	opts, err := a.cfg.PipelineOptions()
	if err != nil {
		return nil, err
	}

	converterOpts := []service.ConverterOption{
		service.WithOptions(opts),
		service.WithComments(a.cfg.Pipeline.Comments...),
		service.WithLogger(a.logger),
	}
	if a.cfg.Pipeline.Validate {
		v, err := ocf.NewValidator()
		if err != nil {
			return nil, err
		}
		converterOpts = append(converterOpts, service.WithValidator(v))
	}
	if upload && a.cfg.Storage.Enabled() {
		store, err := storage.NewAzureStore(a.cfg.Storage.ConnectionString, a.cfg.Storage.Container, a.logger)
		if err != nil {
			return nil, err
		}
		converterOpts = append(converterOpts, service.WithStore(store))
	}

	pipeline := ocf.NewPipeline(
		ocf.WithConcurrency(a.cfg.Pipeline.Parallelism),
		ocf.WithPipelineLogger(a.logger),
	)
	return service.NewConverter(pipeline, converterOpts...), nil
}

func newConvertCmd(a *app) *cobra.Command {
	var (
		format        string
		outDir        string
		zipPath       string
		formationDate string
		currency      string
		comments      []string
		upload        bool
	)

	cmd := &cobra.Command{
		Use:   "convert INPUT",
		Short: "Convert answers into an OCF package",
		Long: `Reads questionnaire answers and writes the OCF files and manifest.

INPUT is a flat records JSON list, a contract envelope with a datasheetItems
array, or an answers XML export. The format is detected unless --format is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" && zipPath == "" && !upload {
				return fmt.Errorf("one of --out, --zip or --upload is required")
			}

			req, err := readRequest(args[0], format)
			if err != nil {
				return err
			}
			req.FormationDate = formationDate
			req.Currency = currency
			req.Comments = comments
			req.Upload = upload

			converter, err := a.newConverter(upload)
			if err != nil {
				return err
			}
			conv, err := converter.Convert(cmd.Context(), req)
			if err != nil {
				printValidation(cmd, conv)
				return err
			}

			if outDir != "" {
				if err := writeDir(outDir, conv.Package); err != nil {
					return err
				}
			}
			if zipPath != "" {
				if err := writeZip(zipPath, conv.Package); err != nil {
					return err
				}
			}

			a.zap.Info("Converted cap table",
				zap.String("request_id", conv.RequestID),
				zap.Int("files", len(conv.Package.Files)),
				zap.String("archive_url", conv.ArchiveURL))
			for _, ft := range sortedTypes(conv.Package) {
				f := conv.Package.Files[ft]
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", f.MD5, f.FileName)
			}
			if conv.ArchiveURL != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s\n", conv.ArchiveURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "input format: auto, records, envelope or xml")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory to write the OCF files to")
	cmd.Flags().StringVar(&zipPath, "zip", "", "path of a zip archive to write")
	cmd.Flags().StringVar(&formationDate, "formation-date", "", "issuer formation date (default today)")
	cmd.Flags().StringVar(&currency, "currency", "", "currency code for monetary values")
	cmd.Flags().StringArrayVar(&comments, "comment", nil, "manifest comment, may be repeated")
	cmd.Flags().BoolVar(&upload, "upload", false, "upload the zipped package to the configured store")
	return cmd
}

func printValidation(cmd *cobra.Command, conv *service.Conversion) {
	if conv == nil {
		return
	}
	for ft, r := range conv.Validation {
		for _, e := range r.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", ft, e)
		}
	}
}

func sortedTypes(p *ocf.Packaged) []ocf.FileType {
	out := make([]ocf.FileType, 0, len(p.Files))
	for ft := range p.Files {
		out = append(out, ft)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func writeDir(dir string, p *ocf.Packaged) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	for name, contents := range p.Names() {
		if err := os.WriteFile(filepath.Join(dir, name), contents, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

func writeZip(path string, p *ocf.Packaged) error {
	data, err := ocf.Archive(p.Names())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

