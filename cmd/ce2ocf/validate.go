package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wehubfusion/ce2ocf/pkg/ocf"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate OCF files against the OCF schemas",
		Long: `Validates OCF JSON files, picking each schema by the file's file_type.
A .zip argument validates every .json entry of the archive.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := ocf.NewValidator()
			if err != nil {
				return err
			}

			files, err := collectFiles(args)
			if err != nil {
				return err
			}

			names := make([]string, 0, len(files))
			for name := range files {
				names = append(names, name)
			}
			sort.Strings(names)

			failed := 0
			for _, name := range names {
				result, err := v.Validate(files[name])
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", name, err)
					continue
				}
				if result.Valid() {
					fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%s)\n", name, result.FileType)
					continue
				}
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s (%s)\n", name, result.FileType)
				for _, e := range result.Errors {
					fmt.Fprintf(cmd.OutOrStdout(), "     %s\n", e)
				}
			}

			a.logger.Debug("Validated OCF files")
			if failed > 0 {
				return fmt.Errorf("%d of %d file(s) failed validation", failed, len(names))
			}
			return nil
		},
	}
}

// collectFiles reads plain files and the .json entries of zip archives.
func collectFiles(paths []string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if !strings.EqualFold(filepath.Ext(path), ".zip") {
			out[path] = data
			continue
		}
		entries, err := ocf.ReadArchive(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for name, contents := range entries {
			if strings.HasSuffix(name, ".json") {
				out[path+":"+name] = contents
			}
		}
	}
	return out, nil
}
