package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/config"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/log"
	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/portable"
)

func importCmd() *cobra.Command {
	var (
		input       string
		skipOnError bool
		move        bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import challenges from a manifest on disk",
		Long: `Import every challenge of a YAML manifest into the configured repository.

Attachment paths in the manifest are relative to the manifest's directory.
A challenge whose name already exists is updated in place.

Examples:
  portable import
  portable import -i ctf/challenges.yaml --skip-on-error
  portable import -i ctf/challenges.yaml --move`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), input, skipOnError, move)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "export.yaml", "Manifest to import")
	cmd.Flags().BoolVar(&skipOnError, "skip-on-error", false, "Skip invalid challenges instead of stopping")
	cmd.Flags().BoolVar(&move, "move", false, "Move attachments into storage instead of copying them")

	return cmd
}

func runImport(ctx context.Context, input string, skipOnError, move bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := log.NewLogger(cfg.Log.Level, cfg.Log.Format)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	importer := portable.NewImporter(a.repo, a.store, a.publisher, logger)
	report, err := importer.ImportFile(ctx, input, portable.ImportOptions{
		SkipOnError: skipOnError,
		Move:        move,
		Source:      "cli",
	})

	for _, name := range report.Created {
		info("created %s", name)
	}
	for _, name := range report.Updated {
		info("updated %s", name)
	}
	for _, name := range report.Skipped {
		warn("skipped %s", name)
	}

	if err != nil {
		return fmt.Errorf("import of %s stopped: %w", input, err)
	}

	success("Imported %d challenges from %s", report.Total(), input)
	return nil
}
