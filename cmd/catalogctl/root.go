package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nirvana-iot/catalog-api/internal/di"
	"github.com/nirvana-iot/catalog-api/internal/platform/config"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

type rootOptions struct {
	envFile  string
	driver   string
	boltPath string
	output   string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "catalogctl",
		Short: "Inspect and maintain the IoT catalog store",
		Long: `catalogctl talks directly to the catalog store configured through CATALOG_* variables.

Available subcommands:
  categories - List categories and their products
  featured   - Show or replace the homepage featured categories
  audit      - Report dangling catalog references
  jobs       - Run a maintenance job once`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case outputTable, outputJSON, outputYAML:
				return nil
			default:
				return fmt.Errorf("unknown output format %q", opts.output)
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with CATALOG_* settings")
	flags.StringVar(&opts.driver, "store", "", "store driver override (firestore|bolt)")
	flags.StringVar(&opts.boltPath, "bolt-path", "", "bolt database path override")
	flags.StringVarP(&opts.output, "output", "o", outputTable, "output format (table|json|yaml)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log store activity to stderr")

	root.AddCommand(
		newCategoriesCmd(opts),
		newFeaturedCmd(opts),
		newAuditCmd(opts),
		newJobsCmd(opts),
	)
	return root
}

// loadConfig reads the API configuration with CLI overrides. Uploads are switched off: the CLI never
// signs URLs and has no secret resolver.
func (o *rootOptions) loadConfig(ctx context.Context) (config.Config, error) {
	overrides := map[string]string{
		"CATALOG_STORAGE_IMAGES_BUCKET": "",
		"CATALOG_STORAGE_SIGNER_KEY":    "",
	}
	if driver := strings.TrimSpace(o.driver); driver != "" {
		overrides["CATALOG_STORE_DRIVER"] = driver
	}
	if path := strings.TrimSpace(o.boltPath); path != "" {
		overrides["CATALOG_STORE_BOLT_PATH"] = path
	}

	loadOpts := []config.Option{config.WithEnvFile(o.envFile), config.WithEnvMap(overrides)}
	env, err := config.EnvironmentValues(loadOpts...)
	if err != nil {
		return config.Config{}, err
	}
	if strings.TrimSpace(env["CATALOG_FIREBASE_PROJECT_ID"]) == "" && strings.EqualFold(strings.TrimSpace(env["CATALOG_STORE_DRIVER"]), config.StoreDriverBolt) {
		overrides["CATALOG_FIREBASE_PROJECT_ID"] = "local"
	}
	return config.Load(ctx, loadOpts...)
}

// withContainer builds the dependency graph for one command and tears it down afterwards.
func (o *rootOptions) withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *di.Container) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := o.loadConfig(ctx)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if o.verbose {
		if logger, err = stderrLogger(cfg.Logging.Level); err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
	}

	container, err := di.NewContainer(ctx, cfg, logger.Named("catalogctl"))
	if err != nil {
		return err
	}
	defer func() { _ = container.Close(context.Background()) }()
	return fn(ctx, container)
}

// stderrLogger keeps stdout free for command output.
func stderrLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.Sampling = nil
	if parsed, err := zap.ParseAtomicLevel(strings.ToLower(strings.TrimSpace(level))); err == nil {
		zcfg.Level = parsed
	}
	return zcfg.Build()
}

// render writes structured output, or calls table for the default format.
func (o *rootOptions) render(w io.Writer, value any, table func(io.Writer) error) error {
	switch o.output {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return err
		}
		return enc.Close()
	default:
		return table(w)
	}
}
