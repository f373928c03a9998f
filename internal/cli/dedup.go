package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/otri/internal/dedup"
	"github.com/roach88/otri/internal/store"
)

// DedupOptions holds flags for the dedup command.
type DedupOptions struct {
	*RootOptions
	DryRun bool
}

// dedupOutput renders a dedup.Result for text output.
type dedupOutput struct {
	dedup.Result
}

func (o dedupOutput) String() string {
	head := fmt.Sprintf("rows: %d, distinct before: %d, distinct after: %d, deleted: %d",
		o.RowsBefore, o.DistinctBefore, o.DistinctAfter, o.Deleted)
	switch o.Outcome() {
	case store.OutcomeCommitted:
		return head + "\ncommitted"
	case store.OutcomeDryRun:
		if len(o.DeletedIDs) > 0 {
			head += fmt.Sprintf("\nwould delete ids: %v", o.DeletedIDs)
		}
		return head + "\ndry run: rolled back"
	default:
		return head + "\nrolled back: table unchanged"
	}
}

// NewDedupCommand creates the dedup command.
func NewDedupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DedupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Remove duplicate raw atoms",
		Long: `Delete every raw atom whose value already exists under a lower id.

The run holds an exclusive transaction over the raw table. If the number of
distinct values changes, the whole deletion is rolled back, a safety
violation is reported, and the command exits with code 1.

Example:
  otri dedup --dry-run
  otri dedup --metrics-file /var/lib/node_exporter/otri.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDedup(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would be deleted and roll back")

	return cmd
}

func runDedup(opts *DedupOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer closeStore(opts.RootOptions, st)
	defer writeMetrics(opts.RootOptions)

	procOpts := []dedup.Option{
		dedup.WithLogger(opts.Logger),
		dedup.WithMetrics(opts.Metrics),
	}
	if opts.DryRun {
		procOpts = append(procOpts, dedup.WithDryRun())
	}

	res, err := dedup.New(st, procOpts...).Run(cmd.Context())
	if err != nil {
		_ = formatter.Error(ErrCodeStore, "dedup failed", err.Error())
		return WrapExitError(ExitFailure, "dedup failed", err)
	}

	out := dedupOutput{Result: res}
	if res.Violation != nil {
		_ = formatter.Failure(ErrCodeSafety, res.Violation.Error(), out)
		return WrapExitError(ExitFailure, "dedup rolled back", res.Violation)
	}
	return formatter.Success(out)
}
