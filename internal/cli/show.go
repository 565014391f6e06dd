package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/approval/internal/ir"
	"github.com/roach88/approval/internal/store"
)

// RecordState is the output of show and resolve.
type RecordState struct {
	Ref       ir.RecordRef      `json:"ref"`
	Live      ir.Fields         `json:"live,omitempty"`
	Effective ir.Fields         `json:"effective,omitempty"`
	Approved  bool              `json:"approved"`
	Version   int64             `json:"version"`
	Sandbox   *ir.SandboxRecord `json:"sandbox,omitempty"`
}

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	EngineOptions
	Type string
	ID   string
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{EngineOptions: EngineOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a record's live and effective state",
		Long: `Show the live values of a record, the effective values its authors see
with pending changes overlaid, and its open sandbox if any.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), opts, cmd)
		},
	}

	addEngineFlags(cmd, &opts.EngineOptions)
	cmd.Flags().StringVar(&opts.Type, "type", "", "record type (required)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "record id (required)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func runShow(ctx context.Context, opts *ShowOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	s, err := openEngine(ctx, &opts.EngineOptions, cmd)
	if err != nil {
		return reportError(formatter, err)
	}
	defer s.Close()

	ref := ir.RecordRef{Type: opts.Type, ID: opts.ID}
	state := RecordState{Ref: ref}

	live, err := s.engine.GetLive(ctx, ref)
	if err != nil {
		return reportError(formatter, err)
	}
	if live != nil {
		state.Live = live.Fields
		state.Approved = live.Approved
		state.Version = live.Version
	}
	if state.Effective, err = s.engine.GetEffectiveState(ctx, ref); err != nil {
		return reportError(formatter, err)
	}
	if state.Sandbox, err = s.engine.GetPending(ctx, ref); err != nil {
		return reportError(formatter, err)
	}
	return outputRecordState(formatter, state)
}

// PendingOptions holds flags for the pending command.
type PendingOptions struct {
	EngineOptions
	Type  string
	All   bool
	Limit int
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PendingOptions{EngineOptions: EngineOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List sandboxes awaiting moderation",
		Long: `List pending sandboxes, oldest first. With --all, drafts and retained
resolved sandboxes are listed too.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(cmd.Context(), opts, cmd)
		},
	}

	addEngineFlags(cmd, &opts.EngineOptions)
	cmd.Flags().StringVar(&opts.Type, "type", "", "only list this record type")
	cmd.Flags().BoolVar(&opts.All, "all", false, "include drafts and resolved sandboxes")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of sandboxes (0 = no limit)")

	return cmd
}

func runPending(ctx context.Context, opts *PendingOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	s, err := openEngine(ctx, &opts.EngineOptions, cmd)
	if err != nil {
		return reportError(formatter, err)
	}
	defer s.Close()

	filter := store.Filter{Type: opts.Type, Limit: opts.Limit}
	if !opts.All {
		filter.Statuses = []ir.Status{ir.StatusPending}
	}
	sandboxes, err := s.store.ListSandboxes(ctx, filter)
	if err != nil {
		return reportError(formatter, &SetupError{Code: ErrCodeCommitFailure, Err: err})
	}
	return outputSandboxList(formatter, sandboxes)
}
