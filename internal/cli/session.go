package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/otri/internal/pipeline"
	"github.com/roach88/otri/internal/store"
)

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// openStore opens the configured store. The caller closes it.
func openStore(opts *RootOptions, f *OutputFormatter) (*store.Store, error) {
	db := opts.Config.Database
	f.VerboseLog("Opening %s store %s", db.Driver, db.Path)

	st, err := store.OpenDriver(db.Driver, db.DSN())
	if err != nil {
		return nil, commandError(f, ErrCodeStore, "failed to open database", err)
	}
	return st, nil
}

func closeStore(opts *RootOptions, st *store.Store) {
	if err := st.Close(); err != nil {
		opts.Logger.WithError(err).Error("error closing database")
	}
}

// loadPipeline loads the pipeline file named by flag, falling back to the
// configured one. No file at all yields an empty pipeline.
func loadPipeline(opts *RootOptions, flag string, f *OutputFormatter) (*pipeline.File, error) {
	path := flag
	if path == "" {
		path = opts.Config.Pipeline
	}
	if path == "" {
		return &pipeline.File{}, nil
	}

	f.VerboseLog("Loading pipeline %s", path)
	pf, err := pipeline.Load(path)
	if err != nil {
		return nil, commandError(f, ErrCodePipeline, "invalid pipeline file", err)
	}
	return pf, nil
}

// writeMetrics writes the metrics file when one is configured. A failure is
// logged and does not change the outcome of the command.
func writeMetrics(opts *RootOptions) {
	if err := opts.Metrics.WriteFile(opts.Config.MetricsFile); err != nil {
		opts.Logger.WithError(err).Warn("failed to write metrics file")
	}
}
