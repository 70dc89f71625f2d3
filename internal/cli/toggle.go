package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/COMEONSOM/stargrid/internal/engine"
)

// ToggleOptions holds flags for the toggle command.
type ToggleOptions struct {
	*RootOptions
	Engine EngineOptions
	Yes    bool   // approve evictions without prompting
	Write  bool   // rewrite the page file in place
	Out    string // write the rendered page here instead
}

// ToggleOutcome reports one toggle for output.
type ToggleOutcome struct {
	Card    string `json:"card"`
	Segment string `json:"segment,omitempty"`
	Status  string `json:"status"`
	Evicted string `json:"evicted,omitempty"`
	Token   string `json:"token"`
	Seq     uint64 `json:"seq"`
}

// ToggleReport holds the overall toggle result.
type ToggleReport struct {
	User     string              `json:"user"`
	Results  []ToggleOutcome     `json:"results"`
	Starred  map[string][]string `json:"starred"`
	Rejected int                 `json:"rejected"`
}

// NewToggleCommand creates the toggle command.
func NewToggleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ToggleOptions{RootOptions: rootOpts}
	opts.Engine.RootOptions = rootOpts

	cmd := &cobra.Command{
		Use:   "toggle <page.html> <card-id>...",
		Short: "Toggle star state for one or more cards",
		Long: `Toggle flips the star state of each named card in order, then settles
and reports the resulting star sets. Starred cards unstar; everything
else stars. Starring into a full segment prompts before evicting the
oldest star unless --yes is given.

Unknown card ids are rejected and reported; the command still processes
the rest and exits 1.

Examples:
  stargrid toggle ./grid.html card_2
  stargrid toggle ./grid.html card_2 card_4 --yes --write
  stargrid toggle ./grid.html card_2 --out ./grid.out.html --format json`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToggle(opts, args[0], args[1:], cmd)
		},
	}

	addEngineFlags(cmd, &opts.Engine)
	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "approve evictions without prompting")
	cmd.Flags().BoolVar(&opts.Write, "write", false, "rewrite the page file with the settled order")
	cmd.Flags().StringVar(&opts.Out, "out", "", "write the settled page to this path")

	return cmd
}

func runToggle(opts *ToggleOptions, pagePath string, cardIDs []string, cmd *cobra.Command) error {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	// The prompt goes to stderr so JSON on stdout stays parseable.
	var confirmer engine.Confirmer = engine.AutoConfirmer{Approve: true}
	if !opts.Yes {
		confirmer = newPromptConfirmer(cmd.InOrStdin(), cmd.ErrOrStderr())
	}

	env, err := setupEngine(ctx, &opts.Engine, pagePath, false, engine.WithConfirmer(confirmer))
	if err != nil {
		return err
	}
	defer env.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- env.Engine.Run(ctx) }()

	w := cmd.OutOrStdout()
	report := ToggleReport{
		User:    env.Engine.Identity().User,
		Results: make([]ToggleOutcome, 0, len(cardIDs)),
	}

	for _, cardID := range cardIDs {
		res, err := env.Engine.Toggle(ctx, cardID)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("toggling %s", cardID), err)
		}

		outcome := ToggleOutcome{
			Card:    res.Card,
			Segment: res.Segment,
			Status:  string(res.Status),
			Evicted: res.Evicted,
			Token:   res.Token,
			Seq:     res.Seq,
		}
		report.Results = append(report.Results, outcome)
		if res.Status == engine.StatusRejected {
			report.Rejected++
		}

		if opts.Format != "json" {
			printToggleOutcome(w, outcome)
		}
	}

	if err := env.Engine.Settle(ctx); err != nil {
		return WrapExitError(ExitCommandError, "settling engine", err)
	}
	snap, err := env.Engine.State(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading state", err)
	}
	report.Starred = snap.Segments

	env.Engine.Stop()
	<-runErr

	if err := writeSettledPage(env, pagePath, opts); err != nil {
		return err
	}

	if opts.Format == "json" {
		return outputToggleJSON(cmd, report)
	}
	return outputToggleText(cmd, report)
}

func printToggleOutcome(w io.Writer, o ToggleOutcome) {
	switch o.Status {
	case string(engine.StatusRejected):
		fmt.Fprintf(w, "✗ %s rejected (unknown card)\n", o.Card)
	case string(engine.StatusDeclined):
		fmt.Fprintf(w, "- %s declined (segment %s kept as is)\n", o.Card, o.Segment)
	default:
		line := fmt.Sprintf("✓ %s %s in %s", o.Card, o.Status, o.Segment)
		if o.Evicted != "" {
			line += fmt.Sprintf(" (evicted %s)", o.Evicted)
		}
		fmt.Fprintf(w, "%s [seq %d]\n", line, o.Seq)
	}
}

// writeSettledPage renders the mutated document when --write or --out
// asked for it. Runs after Stop, so the document is quiescent.
func writeSettledPage(env *environment, pagePath string, opts *ToggleOptions) error {
	target := opts.Out
	if target == "" {
		if !opts.Write {
			return nil
		}
		target = pagePath
	}

	f, err := os.Create(target)
	if err != nil {
		return WrapExitError(ExitCommandError, "creating output page", err)
	}
	if err := env.Doc.Render(f); err != nil {
		f.Close()
		return WrapExitError(ExitCommandError, "rendering page", err)
	}
	if err := f.Close(); err != nil {
		return WrapExitError(ExitCommandError, "writing output page", err)
	}
	return nil
}

func outputToggleJSON(cmd *cobra.Command, report ToggleReport) error {
	response := CLIResponse{Status: "ok", Data: report}
	if report.Rejected > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_UNKNOWN_CARD",
			Message: fmt.Sprintf("%d toggle(s) rejected", report.Rejected),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if report.Rejected > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d toggle(s) rejected", report.Rejected))
	}
	return nil
}

func outputToggleText(cmd *cobra.Command, report ToggleReport) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Starred for %s:\n", report.User)
	if len(report.Starred) == 0 {
		fmt.Fprintln(w, "  (nothing starred)")
	} else {
		segIDs := make([]string, 0, len(report.Starred))
		for segID := range report.Starred {
			segIDs = append(segIDs, segID)
		}
		sort.Strings(segIDs)
		for _, segID := range segIDs {
			fmt.Fprintf(w, "  %s: %v\n", segID, report.Starred[segID])
		}
	}

	if report.Rejected > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d toggle(s) rejected", report.Rejected))
	}
	return nil
}
