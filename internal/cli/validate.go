package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/testmaster-ai/testmaster/internal/config"
)

// NewValidateCmd creates a new validate command
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file_or_directory]",
		Short: "Validate TestMaster session files against the JSON schema",
		Long: `Validate one or more TestMaster session files against the JSON schema.
This command checks session file syntax, structure, and configuration without running anything.

Examples:
  testmaster validate session.yaml                 # Validate a single file
  testmaster validate ./sessions/                  # Validate all YAML files in a directory
  testmaster validate a.yaml b.yaml                # Validate multiple files`,
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("please specify at least one file or directory to validate")
	}

	var files []string
	totalValid := 0
	totalInvalid := 0

	for _, arg := range args {
		stat, err := os.Stat(arg)
		if err != nil {
			Logger.Error("failed to access path", "path", arg, "error", err)
			totalInvalid++
			continue
		}

		if stat.IsDir() {
			err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && (filepath.Ext(path) == ".yaml" || filepath.Ext(path) == ".yml") {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				Logger.Error("failed to scan directory", "path", arg, "error", err)
				totalInvalid++
				continue
			}
		} else {
			files = append(files, arg)
		}
	}

	if len(files) == 0 {
		return fmt.Errorf("no YAML files found to validate")
	}

	Logger.Info("validating files", "count", len(files))

	for _, file := range files {
		if _, err := config.Load(file); err != nil {
			Logger.Error("validation failed", "file", file, "error", err)
			totalInvalid++
		} else {
			Logger.Info("validation passed", "file", file)
			totalValid++
		}
	}

	Logger.Info("validation complete", "valid", totalValid, "invalid", totalInvalid)

	if totalInvalid > 0 {
		return fmt.Errorf("%d file(s) failed validation", totalInvalid)
	}
	return nil
}
