package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/roach88/approval/internal/ir"
)

// outputMessage prints a one-line result.
func outputMessage(formatter *OutputFormatter, msg string) error {
	if formatter.JSON() {
		return formatter.Success(map[string]string{"message": msg})
	}
	fmt.Fprintln(formatter.Writer, msg)
	return nil
}

// outputSandbox prints one sandbox.
func outputSandbox(formatter *OutputFormatter, sb *ir.SandboxRecord) error {
	if formatter.JSON() {
		return formatter.Success(sb)
	}
	writeSandbox(formatter.Writer, sb)
	return nil
}

// outputSandboxList prints sandboxes, one block each.
func outputSandboxList(formatter *OutputFormatter, sandboxes []*ir.SandboxRecord) error {
	if formatter.JSON() {
		if sandboxes == nil {
			sandboxes = []*ir.SandboxRecord{}
		}
		return formatter.Success(sandboxes)
	}
	if len(sandboxes) == 0 {
		fmt.Fprintln(formatter.Writer, "No sandboxes.")
		return nil
	}
	for i, sb := range sandboxes {
		if i > 0 {
			fmt.Fprintln(formatter.Writer)
		}
		writeSandbox(formatter.Writer, sb)
	}
	return nil
}

// outputRecordState prints a record's live and effective values.
func outputRecordState(formatter *OutputFormatter, state RecordState) error {
	if formatter.JSON() {
		return formatter.Success(state)
	}
	w := formatter.Writer
	fmt.Fprintf(w, "record    %s\n", state.Ref)
	fmt.Fprintf(w, "approved  %t\n", state.Approved)
	fmt.Fprintf(w, "version   %d\n", state.Version)
	if state.Live != nil {
		fmt.Fprintf(w, "live      %s\n", renderFields(state.Live))
	}
	if state.Effective != nil {
		fmt.Fprintf(w, "effective %s\n", renderFields(state.Effective))
	}
	if state.Sandbox != nil {
		fmt.Fprintln(w)
		writeSandbox(w, state.Sandbox)
	}
	return nil
}

func writeSandbox(w io.Writer, sb *ir.SandboxRecord) {
	fmt.Fprintf(w, "sandbox   %s (%s)\n", sb.ID, sb.Status)
	fmt.Fprintf(w, "record    %s\n", sb.Ref)
	if len(sb.Pending) > 0 {
		fmt.Fprintf(w, "pending   %s\n", renderFields(sb.Pending))
	}
	if len(sb.Stored) > 0 {
		fmt.Fprintf(w, "stored    %s\n", renderFields(sb.Stored))
	}
	if len(sb.Authors) > 0 {
		authors := make([]string, len(sb.Authors))
		for i, a := range sb.Authors {
			authors[i] = string(a)
		}
		fmt.Fprintf(w, "authors   %s\n", strings.Join(authors, ", "))
	}
	if sb.IsNew {
		fmt.Fprintln(w, "new       true")
	}
	if sb.ResolvedAt != nil {
		fmt.Fprintf(w, "resolved  %s by %s\n", sb.ResolvedAt.Format(time.RFC3339), sb.ResolvedBy)
	}
	if sb.Rule != "" {
		fmt.Fprintf(w, "rule      %s\n", sb.Rule)
	}
	if sb.Reason != "" {
		fmt.Fprintf(w, "reason    %s\n", sb.Reason)
	}
}

// renderFields renders fields as canonical JSON.
func renderFields(f ir.Fields) string {
	data, err := ir.MarshalCanonical(ir.IRObject(f))
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}
