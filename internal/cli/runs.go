package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/otri/internal/store"
)

type runsOutput struct {
	Runs []store.Run `json:"runs"`
}

func (o runsOutput) String() string {
	if len(o.Runs) == 0 {
		return "no runs recorded"
	}
	var b strings.Builder
	for i, r := range o.Runs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s  %-8s  %-11s  %s  (%s)", r.ID, r.Operation, r.Outcome,
			r.StartedAt.Format(time.RFC3339), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	return b.String()
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded dedup and aggregation runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			st, err := openStore(rootOpts, formatter)
			if err != nil {
				return err
			}
			defer closeStore(rootOpts, st)

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return commandError(formatter, ErrCodeStore, "failed to list runs", err)
			}
			return formatter.Success(runsOutput{Runs: runs})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")

	return cmd
}
