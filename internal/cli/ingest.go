package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/otri/internal/atom"
	"github.com/roach88/otri/internal/pipeline"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Kind     string
	Pipeline string
}

// IngestResult is the outcome of one ingest invocation.
type IngestResult struct {
	Files []IngestFileResult `json:"files"`
}

// IngestFileResult is the summary for one input file.
type IngestFileResult struct {
	File string `json:"file"`
	pipeline.Summary
}

func (r IngestResult) rejected() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Rejected)
	}
	return n
}

func (r IngestResult) String() string {
	var b strings.Builder
	for i, f := range r.Files {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %d read, %d admitted, %d rejected", f.File, f.Read, f.Admitted, len(f.Rejected))
		for _, rej := range f.Rejected {
			fmt.Fprintf(&b, "\n  #%d: %s", rej.Index, strings.Join(rej.Reasons, "; "))
		}
	}
	return b.String()
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <file.json>...",
		Short: "Validate and store candidate atoms",
		Long: `Read candidate atom values produced by a downloader, validate each one
against the checks of the pipeline file, and insert the admitted ones.

Input files may hold a JSON object, a JSON array of objects, or JSON lines.
Use "-" to read from standard input. Rejected candidates are reported with
every failing check and make the command exit with code 1.

Example:
  otri ingest --pipeline pipeline.yaml bars.jsonl
  otri ingest --kind metadata profiles.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", string(atom.KindRaw), "atom kind: raw|metadata")
	cmd.Flags().StringVar(&opts.Pipeline, "pipeline", "", "pipeline file with validation checks")

	return cmd
}

func runIngest(opts *IngestOptions, files []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	kind, err := atom.ParseKind(opts.Kind)
	if err != nil {
		return commandError(formatter, ErrCodeGeneric, "invalid --kind", err)
	}

	pf, err := loadPipeline(opts.RootOptions, opts.Pipeline, formatter)
	if err != nil {
		return err
	}
	v, err := pf.Validator(kind)
	if err != nil {
		return commandError(formatter, ErrCodePipeline, "invalid pipeline file", err)
	}
	formatter.VerboseLog("%d check(s) registered for %s atoms", v.Len(), kind)

	// Read everything first so a malformed file inserts nothing.
	inputs := make([][]atom.Object, len(files))
	for i, file := range files {
		values, err := readInput(cmd.InOrStdin(), file)
		if err != nil {
			return commandError(formatter, ErrCodeInput, fmt.Sprintf("failed to read %s", file), err)
		}
		inputs[i] = values
	}

	st, err := openStore(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer closeStore(opts.RootOptions, st)
	defer writeMetrics(opts.RootOptions)

	ingestor := pipeline.NewIngestor(st,
		pipeline.WithValidator(kind, v),
		pipeline.WithLogger(opts.Logger),
		pipeline.WithMetrics(opts.Metrics),
	)

	result := IngestResult{Files: make([]IngestFileResult, 0, len(files))}
	for i, file := range files {
		sum, err := ingestor.IngestAll(cmd.Context(), kind, inputs[i])
		result.Files = append(result.Files, IngestFileResult{File: file, Summary: sum})
		if err != nil {
			_ = formatter.Failure(ErrCodeStore, "storage error during ingestion", result)
			return WrapExitError(ExitFailure, "ingestion aborted", err)
		}
	}

	if n := result.rejected(); n > 0 {
		msg := fmt.Sprintf("%d candidate atom(s) rejected", n)
		_ = formatter.Failure(ErrCodeRejected, msg, result)
		return NewExitError(ExitFailure, msg)
	}
	return formatter.Success(result)
}

func readInput(stdin io.Reader, file string) ([]atom.Object, error) {
	if file == "-" {
		return pipeline.ReadValues(stdin)
	}

	fh, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return pipeline.ReadValues(fh)
}
