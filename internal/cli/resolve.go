package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/approval/internal/ir"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	EngineOptions
	Approve  bool
	Deny     bool
	Resolver string
	Reason   string
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{EngineOptions: EngineOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "resolve <sandbox-id>",
		Short: "Approve or deny a pending sandbox",
		Long: `Resolve a pending sandbox as a moderator.

Approving merges the staged values into the live record. Denying discards
them. Either way the sandbox is retained or deleted as its model's retention
says.

Examples:
  approval resolve 0191c7a2-... --approve --resolver mod
  approval resolve 0191c7a2-... --deny --resolver mod --reason "off topic"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args[0], cmd)
		},
	}

	addEngineFlags(cmd, &opts.EngineOptions)
	cmd.Flags().BoolVar(&opts.Approve, "approve", false, "approve the sandbox")
	cmd.Flags().BoolVar(&opts.Deny, "deny", false, "deny the sandbox")
	cmd.Flags().StringVar(&opts.Resolver, "resolver", "", "moderator identity (required)")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "reason recorded on the sandbox")
	cmd.MarkFlagsMutuallyExclusive("approve", "deny")
	cmd.MarkFlagsOneRequired("approve", "deny")
	_ = cmd.MarkFlagRequired("resolver")

	return cmd
}

func runResolve(opts *ResolveOptions, sandboxID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	decision := ir.DecisionApprove
	if opts.Deny {
		decision = ir.DecisionDeny
	}
	if opts.Resolver == "" {
		return reportError(formatter, &SetupError{Code: ErrCodeBadInput, Err: errors.New("--resolver must not be empty")})
	}

	s, err := openEngine(cmd.Context(), &opts.EngineOptions, cmd)
	if err != nil {
		return reportError(formatter, err)
	}
	defer s.Close()
	defer s.logMetrics()

	live, err := s.engine.Resolve(cmd.Context(), sandboxID, decision, ir.Identity(opts.Resolver), opts.Reason)
	if err != nil {
		return reportError(formatter, err)
	}
	return outputRecordState(formatter, RecordState{
		Ref:      live.Ref,
		Live:     live.Fields,
		Approved: live.Approved,
		Version:  live.Version,
	})
}
