package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/promote/domain/config"
	infraconfig "github.com/felixgeelhaar/promote/infrastructure/config"
)

// validateOptions holds options for the validate command.
type validateOptions struct {
	configPath string
	strict     bool
}

// newValidateCmd creates the validate command.
func (a *App) newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate a promote configuration file.

This command checks:
  - File format (YAML or JSON) and unknown keys
  - Required fields (name, version)
  - Storage, publish and telemetry settings for the selected drivers
  - Escalation mode and reviewer roster
  - Environment variable references (in strict mode)

Examples:
  promote validate -c promote.yaml
  promote validate -c promote.yaml --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validateConfig(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail on unset environment variables")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

// loadConfig reads and validates the configuration file at path.
func loadConfig(path string, strict bool) (*config.Config, error) {
	loader := infraconfig.NewLoaderWithOptions(
		infraconfig.WithValidation(true),
		infraconfig.WithStrictEnv(strict),
	)
	return loader.LoadFile(path)
}

func (a *App) validateConfig(opts *validateOptions) error {
	cfg, err := loadConfig(opts.configPath, opts.strict)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if _, err := infraconfig.NewBuilder(cfg).Build(); err != nil {
		return fmt.Errorf("configuration build failed: %w", err)
	}

	out := a.stdout
	_, _ = fmt.Fprintf(out, "✓ Configuration is valid\n")
	_, _ = fmt.Fprintf(out, "  Name: %s\n", cfg.Name)
	_, _ = fmt.Fprintf(out, "  Version: %s\n", cfg.Version)

	w := cfg.Workflow
	_, _ = fmt.Fprintf(out, "\nWorkflow:\n")
	_, _ = fmt.Fprintf(out, "  Router: %s\n", w.Router)
	_, _ = fmt.Fprintf(out, "  Completeness threshold: %d%%\n", w.CompletenessThreshold)
	if w.Escalation.Mode == config.EscalateAmount {
		_, _ = fmt.Fprintf(out, "  Escalation: %s (>= %d)\n", w.Escalation.Mode, w.Escalation.AmountThreshold)
	} else {
		_, _ = fmt.Fprintf(out, "  Escalation: %s\n", w.Escalation.Mode)
	}

	if cfg.Reviewers.IsEmpty() {
		_, _ = fmt.Fprintf(out, "  Reviewers: anyone but the applicant\n")
	} else {
		_, _ = fmt.Fprintf(out, "  Reviewers: %d level1, %d level2\n", len(cfg.Reviewers.Level1), len(cfg.Reviewers.Level2))
	}

	_, _ = fmt.Fprintf(out, "\nStorage: %s", cfg.Storage.Driver)
	if cfg.Resilience.Enabled {
		_, _ = fmt.Fprintf(out, " (resilient)")
	}
	_, _ = fmt.Fprintln(out)

	if cfg.Snapshot.URL != "" {
		_, _ = fmt.Fprintf(out, "Snapshots: %s\n", cfg.Snapshot.URL)
	}
	if cfg.Notification.Enabled {
		_, _ = fmt.Fprintf(out, "Notifications: enabled (%d endpoints)\n", len(cfg.Notification.Endpoints))
	}
	_, _ = fmt.Fprintf(out, "Publish: %s\n", cfg.Publish.Driver)
	_, _ = fmt.Fprintf(out, "Telemetry: %s\n", cfg.Telemetry.Exporter)

	return nil
}

type schemaOptions struct {
	outputPath string
}

// newSchemaCmd creates the schema command.
func (a *App) newSchemaCmd() *cobra.Command {
	opts := &schemaOptions{}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Export the configuration JSON schema",
		Long: `Export the JSON Schema (draft 2020-12) for promote configuration files,
for editor validation and CI checks.

Examples:
  promote schema
  promote schema -o promote.schema.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.exportSchema(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Output file path (default: stdout)")

	return cmd
}

func (a *App) exportSchema(opts *schemaOptions) error {
	schemaJSON, err := infraconfig.SchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if opts.outputPath == "" {
		_, _ = fmt.Fprintln(a.stdout, schemaJSON)
		return nil
	}

	if err := os.WriteFile(opts.outputPath, []byte(schemaJSON), 0600); err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}

	_, _ = fmt.Fprintf(a.stdout, "Schema exported to %s\n", opts.outputPath)
	return nil
}
