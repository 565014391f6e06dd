package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/approval/internal/approval"
	"github.com/roach88/approval/internal/ir"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	EngineOptions
	Type  string
	ID    string
	Set   []string // field=value pairs
	Actor string
	Draft bool
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{EngineOptions: EngineOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a change to a record",
		Long: `Submit candidate field values for a record.

Values are JSON; anything that is not valid JSON is taken as a string.
Fields not named are left alone. Tracked fields are staged in the record's
sandbox and the policy runs when the sandbox enters pending.

Examples:
  approval submit --type post --id 42 --set title=Hello --actor alice
  approval submit --type post --id 42 --set 'tags=["a","b"]' --draft`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), opts, cmd)
		},
	}

	addEngineFlags(cmd, &opts.EngineOptions)
	cmd.Flags().StringVar(&opts.Type, "type", "", "record type (required)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "record id (required)")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "field=value, repeatable")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "identity making the change")
	cmd.Flags().BoolVar(&opts.Draft, "draft", false, "stage the change as a draft")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func runSubmit(ctx context.Context, opts *SubmitOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	candidate, err := parseAssignments(opts.Set)
	if err != nil {
		return reportError(formatter, &SetupError{Code: ErrCodeBadInput, Err: err})
	}

	s, err := openEngine(ctx, &opts.EngineOptions, cmd)
	if err != nil {
		return reportError(formatter, err)
	}
	defer s.Close()
	defer s.logMetrics()

	var submitOpts []approval.SubmitOption
	if opts.Draft {
		submitOpts = append(submitOpts, approval.AsDraft())
	}

	ref := ir.RecordRef{Type: opts.Type, ID: opts.ID}
	sb, err := s.engine.SubmitChange(withActor(ctx, opts.Actor), ref, candidate, submitOpts...)
	if sb != nil {
		if outErr := outputSandbox(formatter, sb); outErr != nil {
			return outErr
		}
	} else if err == nil {
		if outErr := outputMessage(formatter, fmt.Sprintf("%s: no pending changes", ref)); outErr != nil {
			return outErr
		}
	}
	if err != nil {
		return reportError(formatter, err)
	}
	return nil
}

// NewSubmitDraftCommand creates the submit-draft command.
func NewSubmitDraftCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EngineOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "submit-draft <sandbox-id>",
		Short:         "Move a draft sandbox to pending",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts.RootOptions, cmd)
			s, err := openEngine(cmd.Context(), opts, cmd)
			if err != nil {
				return reportError(formatter, err)
			}
			defer s.Close()
			defer s.logMetrics()

			sb, err := s.engine.Submit(cmd.Context(), args[0])
			if sb != nil {
				if outErr := outputSandbox(formatter, sb); outErr != nil {
					return outErr
				}
			}
			if err != nil {
				return reportError(formatter, err)
			}
			return nil
		},
	}

	addEngineFlags(cmd, opts)
	return cmd
}

// parseAssignments turns field=value pairs into a candidate.
func parseAssignments(pairs []string) (ir.Fields, error) {
	out := make(ir.Fields, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q: want field=value", pair)
		}
		v, err := parseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", pair, err)
		}
		out[name] = v
	}
	return out, nil
}

// parseValue decodes raw as JSON, or takes it verbatim as a string when it
// is not JSON.
func parseValue(raw string) (ir.IRValue, error) {
	if !json.Valid([]byte(raw)) {
		return ir.IRString(raw), nil
	}
	return ir.UnmarshalIRValue([]byte(raw))
}

func withActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return approval.WithActor(ctx, ir.Identity(actor))
}
