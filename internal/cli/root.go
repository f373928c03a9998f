package cli

import (
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/otri/internal/config"
	"github.com/roach88/otri/internal/logging"
	"github.com/roach88/otri/internal/metrics"
)

// RootOptions holds global flags for all commands, and the configuration
// and logger resolved from them before any subcommand runs.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigFile  string
	EnvFile     string
	Database    string
	Driver      string
	MetricsFile string

	Config  *config.Config
	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the OTRI CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "otri",
		Short: "OTRI - market data atom store",
		Long: `OTRI stores market data from many providers as schema-less atoms,
deduplicates them safely, and aggregates per-ticker metadata into one
canonical record per instrument.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Setup errors go to stderr; there is no result to print.
			setup := &OutputFormatter{Format: opts.Format, Writer: cmd.ErrOrStderr()}

			// Validate format flag
			if !isValidFormat(opts.Format) {
				setup.Format = "text"
				return commandError(setup, ErrCodeConfig,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			if err := opts.resolve(cmd); err != nil {
				return commandError(setup, ErrCodeConfig, err.Error(), err)
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (YAML)")
	flags.StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded into the environment if present")
	flags.StringVar(&opts.Database, "db", "", "SQLite database path (database.path)")
	flags.StringVar(&opts.Driver, "driver", "", "store driver: sqlite3|postgres (database.driver)")
	flags.StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")

	// Add subcommands
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewDedupCommand(opts))
	cmd.AddCommand(NewMetadataCommand(opts))
	cmd.AddCommand(NewChecksCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))

	return cmd
}

// resolve loads configuration and builds the logger. Flags override the
// environment, which overrides the config file.
func (opts *RootOptions) resolve(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	v := config.New()
	flags := cmd.Flags()
	for key, name := range map[string]string{
		"database.path":   "db",
		"database.driver": "driver",
		"metrics_file":    "metrics-file",
	} {
		if err := config.BindFlag(v, key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind flags: %w", err)
		}
	}

	cfg, err := config.Load(v, opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	opts.Config = cfg

	logger, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Verbose: opts.Verbose,
		Output:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	opts.Logger = logger

	if cfg.MetricsFile != "" {
		opts.Metrics = metrics.New()
	}
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
