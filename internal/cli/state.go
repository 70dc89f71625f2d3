package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// StateOptions holds flags for the state command.
type StateOptions struct {
	*RootOptions
	Engine EngineOptions
}

// SegmentReport describes one segment's settled state.
type SegmentReport struct {
	Segment string   `json:"segment"`
	Starred []string `json:"starred"`
	Order   []string `json:"order"`
}

// StateReport holds the state command output.
type StateReport struct {
	User     string          `json:"user"`
	Source   string          `json:"source"`
	Capacity int             `json:"capacity"`
	Segments []SegmentReport `json:"segments"`
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{RootOptions: rootOpts}
	opts.Engine.RootOptions = rootOpts

	cmd := &cobra.Command{
		Use:   "state <page.html>",
		Short: "Show settled star state for a grid page",
		Long: `State resolves the user, hydrates starred state from the slot store,
settles the page, and reports per-segment star sets and card order
without changing anything.

Examples:
  stargrid state ./grid.html --data-dir ./slots
  stargrid state ./grid.html --page-url 'https://example.com/grid?user=alice' --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(opts, args[0], cmd)
		},
	}

	addEngineFlags(cmd, &opts.Engine)
	return cmd
}

func runState(opts *StateOptions, pagePath string, cmd *cobra.Command) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	env, err := setupEngine(ctx, &opts.Engine, pagePath, false)
	if err != nil {
		return err
	}
	defer env.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- env.Engine.Run(ctx) }()

	if err := env.Engine.Settle(ctx); err != nil {
		return WrapExitError(ExitCommandError, "settling engine", err)
	}
	snap, err := env.Engine.State(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading state", err)
	}

	env.Engine.Stop()
	<-runErr

	ident := env.Engine.Identity()
	report := StateReport{
		User:     ident.User,
		Source:   ident.Source.String(),
		Capacity: env.Engine.Capacity(),
	}

	for _, seg := range env.Engine.Index().Segments() {
		order, err := env.Engine.Index().CardOrder(seg.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("reading order for segment %s", seg.ID), err)
		}
		starred := snap.Segments[seg.ID]
		if starred == nil {
			starred = []string{}
		}
		report.Segments = append(report.Segments, SegmentReport{
			Segment: seg.ID,
			Starred: starred,
			Order:   order,
		})
	}

	if opts.Format == "json" {
		return outputStateJSON(cmd, report)
	}
	return outputStateText(cmd, report)
}

func outputStateJSON(cmd *cobra.Command, report StateReport) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: "ok", Data: report})
}

func outputStateText(cmd *cobra.Command, report StateReport) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "User: %s (%s)\n", report.User, report.Source)
	fmt.Fprintf(w, "Capacity: %d per segment\n", report.Capacity)
	fmt.Fprintln(w)

	for _, seg := range report.Segments {
		fmt.Fprintf(w, "=== %s ===\n", seg.Segment)
		fmt.Fprintf(w, "  starred: %v\n", seg.Starred)
		fmt.Fprintf(w, "  order:   %v\n", seg.Order)
	}

	return nil
}
