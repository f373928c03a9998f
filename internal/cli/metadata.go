package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/otri/internal/atom"
	"github.com/roach88/otri/internal/metadata"
	"github.com/roach88/otri/internal/store"
)

// MetadataOptions holds flags for the metadata commands.
type MetadataOptions struct {
	*RootOptions
	Pipeline string
	Workers  int
	Retries  int
}

type reportOutput struct {
	metadata.Report
}

func (o reportOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "atoms: %d, tickers: %d, upserted: %d", o.Atoms, o.Tickers, o.Upserted)
	for _, m := range o.Malformed {
		fmt.Fprintf(&b, "\nskipped atom %d: %s", m.ID, m.Reason)
	}
	for _, f := range o.Failures {
		fmt.Fprintf(&b, "\nFAILED %s after %d attempt(s): %s", f.Ticker, f.Attempts, f.Error)
	}
	return b.String()
}

type recordsOutput struct {
	Records []atom.Atom `json:"records"`
}

func (o recordsOutput) String() string {
	var b strings.Builder
	for i, r := range o.Records {
		if i > 0 {
			b.WriteByte('\n')
		}
		ticker, _ := r.Value.GetString(atom.TickerKey)
		text, err := atom.MarshalCanonical(r.Value)
		if err != nil {
			text = []byte("<" + err.Error() + ">")
		}
		fmt.Fprintf(&b, "%s\t%s", ticker, text)
	}
	return b.String()
}

// NewMetadataCommand creates the metadata command group.
func NewMetadataCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Aggregate and inspect canonical metadata records",
	}

	cmd.AddCommand(newMetadataGenerateCommand(rootOpts))
	cmd.AddCommand(newMetadataListCommand(rootOpts))
	cmd.AddCommand(newMetadataShowCommand(rootOpts))

	return cmd
}

func newMetadataGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MetadataOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Merge metadata atoms into one canonical record per ticker",
		Long: `Read every metadata atom, group them by ticker, merge each group with
the pipeline's merge policy, and upsert one canonical record per ticker.

Tickers are processed concurrently. A ticker that cannot be written does not
stop the others; it is reported and the command exits with code 1.

Example:
  otri metadata generate --pipeline pipeline.yaml --workers 8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetadataGenerate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Pipeline, "pipeline", "", "pipeline file with the merge policy")
	cmd.Flags().IntVar(&opts.Workers, "workers", 4, "tickers upserted concurrently")
	cmd.Flags().IntVar(&opts.Retries, "retries", 3, "retries after a write conflict")

	return cmd
}

func runMetadataGenerate(opts *MetadataOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Workers < 1 {
		return commandError(formatter, ErrCodeConfig, "--workers must be at least 1", nil)
	}
	if opts.Retries < 0 {
		return commandError(formatter, ErrCodeConfig, "--retries must not be negative", nil)
	}

	pf, err := loadPipeline(opts.RootOptions, opts.Pipeline, formatter)
	if err != nil {
		return err
	}

	st, err := openStore(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer closeStore(opts.RootOptions, st)
	defer writeMetrics(opts.RootOptions)

	agg := metadata.NewAggregator(st,
		metadata.WithPolicy(pf.Merge),
		metadata.WithWorkers(opts.Workers),
		metadata.WithRetries(opts.Retries),
		metadata.WithLogger(opts.Logger),
		metadata.WithMetrics(opts.Metrics),
	)

	report, err := agg.Run(cmd.Context())
	if err != nil {
		return commandError(formatter, ErrCodeStore, "aggregation failed", err)
	}

	out := reportOutput{Report: report}
	if !report.OK() {
		msg := fmt.Sprintf("%d ticker(s) failed to upsert", len(report.Failures))
		_ = formatter.Failure(ErrCodeUpsertFailed, msg, out)
		return NewExitError(ExitFailure, msg)
	}
	return formatter.Success(out)
}

func newMetadataListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List canonical metadata records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			st, err := openStore(rootOpts, formatter)
			if err != nil {
				return err
			}
			defer closeStore(rootOpts, st)

			records, err := st.ReadAllCanonicalMetadata(cmd.Context())
			if err != nil {
				return commandError(formatter, ErrCodeStore, "failed to read canonical metadata", err)
			}
			return formatter.Success(recordsOutput{Records: records})
		},
	}
}

func newMetadataShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <ticker>",
		Short: "Show the canonical metadata record of one ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			st, err := openStore(rootOpts, formatter)
			if err != nil {
				return err
			}
			defer closeStore(rootOpts, st)

			rec, err := st.ReadCanonicalMetadata(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("no canonical record for %s", args[0]), nil)
				return WrapExitError(ExitFailure, "not found", err)
			}
			if err != nil {
				return commandError(formatter, ErrCodeStore, "failed to read canonical metadata", err)
			}
			return formatter.Success(recordsOutput{Records: []atom.Atom{rec}})
		},
	}
}
