package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/nestc/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
}

// HistoryRun is one recorded invocation.
type HistoryRun struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
	Seq       int64  `json:"seq"`
}

// HistoryEntry is one artifact and its runs.
type HistoryEntry struct {
	ArtifactID string       `json:"artifact_id"`
	PipelineID string       `json:"pipeline_id"`
	Pipeline   string       `json:"pipeline"`
	Seq        int64        `json:"seq"`
	Failed     int          `json:"failed"`
	Runs       []HistoryRun `json:"runs"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded artifacts and runs",
		Long: `List every artifact in the registry in the order it was recorded, with the
runs made with it.

Example:
  nestc history --db nestc.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "registry to read (default from config)")
	return cmd
}

func runHistory(ctx context.Context, opts *HistoryOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	db := opts.dbPath(opts.Database)
	if db == "" {
		return formatter.Fail("no registry", &FlagError{Flag: "db", Message: "required (or set store.db in the config file)"})
	}
	st, err := store.Open(db)
	if err != nil {
		return formatter.FailCode(ErrCodeStore, ExitCommandError, fmt.Sprintf("opening registry: %v", err))
	}
	defer st.Close()

	history, err := st.ReadHistory(ctx)
	if err != nil {
		return formatter.FailCode(ErrCodeStore, ExitCommandError, fmt.Sprintf("reading registry: %v", err))
	}

	entries := make([]HistoryEntry, len(history))
	for i, h := range history {
		e := HistoryEntry{
			ArtifactID: h.Artifact.ID,
			PipelineID: h.Artifact.PipelineID,
			Pipeline:   h.Artifact.Name,
			Seq:        h.Artifact.Seq,
			Failed:     h.Failed,
			Runs:       make([]HistoryRun, len(h.Runs)),
		}
		for j, r := range h.Runs {
			e.Runs[j] = HistoryRun{ID: r.ID, Status: string(r.Status), ErrorKind: r.ErrorKind, Error: r.Error, Seq: r.Seq}
		}
		entries[i] = e
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}

	w := formatter.Writer
	if len(entries) == 0 {
		fmt.Fprintln(w, "No artifacts recorded.")
		return nil
	}
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	for _, e := range entries {
		fmt.Fprintf(w, "#%d %s artifact %s (%d run(s), %d failed)\n",
			e.Seq, e.Pipeline, shortID(e.ArtifactID), len(e.Runs), e.Failed)
		for _, r := range e.Runs {
			if r.Status == string(store.RunOK) {
				fmt.Fprintf(w, "  #%d %s %s\n", r.Seq, ok(r.Status), r.ID)
				continue
			}
			fmt.Fprintf(w, "  #%d %s %s %s: %s\n", r.Seq, bad(r.Status), r.ID, r.ErrorKind, r.Error)
		}
	}
	return nil
}
