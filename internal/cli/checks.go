package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/otri/internal/atom"
	"github.com/roach88/otri/internal/metadata"
)

type checksOutput struct {
	Raw      []string `json:"raw"`
	Metadata []string `json:"metadata"`
	Merge    string   `json:"merge_default"`
}

func (o checksOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "raw (%d):", len(o.Raw))
	for _, name := range o.Raw {
		b.WriteString("\n  " + name)
	}
	fmt.Fprintf(&b, "\nmetadata (%d):", len(o.Metadata))
	for _, name := range o.Metadata {
		b.WriteString("\n  " + name)
	}
	fmt.Fprintf(&b, "\nmerge default: %s", o.Merge)
	return b.String()
}

// NewChecksCommand creates the checks command.
func NewChecksCommand(rootOpts *RootOptions) *cobra.Command {
	var pipelinePath string

	cmd := &cobra.Command{
		Use:   "checks",
		Short: "Load a pipeline file and list its checks per atom kind",
		Long: `Load and validate a pipeline file without touching the database.
Every check is compiled, so a bad pattern or CUE schema is reported here.

Example:
  otri checks --pipeline pipeline.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			pf, err := loadPipeline(rootOpts, pipelinePath, formatter)
			if err != nil {
				return err
			}

			out := checksOutput{Merge: string(pf.Merge.Default)}
			if out.Merge == "" {
				out.Merge = string(metadata.LastWins)
			}
			for _, kind := range []atom.Kind{atom.KindRaw, atom.KindMetadata} {
				v, err := pf.Validator(kind)
				if err != nil {
					return commandError(formatter, ErrCodePipeline, "invalid pipeline file", err)
				}
				names := []string{}
				for _, c := range v.Checks() {
					names = append(names, c.Name())
				}
				if kind == atom.KindRaw {
					out.Raw = names
				} else {
					out.Metadata = names
				}
			}
			return formatter.Success(out)
		},
	}

	cmd.Flags().StringVar(&pipelinePath, "pipeline", "", "pipeline file to load")

	return cmd
}
